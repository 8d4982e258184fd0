package domain

import (
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is a price reported by an external source.
// Price is expressed in units of 10^-Decimals of the common currency per whole
// unit of the asset.
type PriceQuote struct {
	Price     decimal.Decimal
	Decimals  int32
	UpdatedAt time.Time
}

// IsStale reports whether the quote is older than maxAge at now.
// A zero maxAge or an unknown timestamp never counts as stale.
func (q PriceQuote) IsStale(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 || q.UpdatedAt.IsZero() {
		return false
	}
	return now.Sub(q.UpdatedAt) > maxAge
}

// Validate checks the quote is usable for valuation.
func (q PriceQuote) Validate() error {
	if !q.Price.IsPositive() || !q.Price.IsInteger() {
		return fmt.Errorf("%w: non-positive price %s", ErrOracleUnavailable, q.Price)
	}
	if err := ValidateDecimals(q.Decimals); err != nil {
		return fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	return nil
}

// FeedKind selects the adapter that talks to a price source.
type FeedKind string

const (
	FeedKindStatic    FeedKind = "static"
	FeedKindHTTP      FeedKind = "http"
	FeedKindRedis     FeedKind = "redis"
	FeedKindWebsocket FeedKind = "websocket"
)

var validFeedKinds = map[FeedKind]bool{
	FeedKindStatic:    true,
	FeedKindHTTP:      true,
	FeedKindRedis:     true,
	FeedKindWebsocket: true,
}

// Feed describes where the price of one asset comes from.
type Feed struct {
	Asset    string
	Kind     FeedKind
	Endpoint string
	// Price and Decimals are only used by static feeds.
	Price     decimal.Decimal
	Decimals  int32
	MaxAge    time.Duration
	UpdatedAt time.Time
}

// Validate checks the feed descriptor.
func (f *Feed) Validate() error {
	if err := ValidateAsset(f.Asset); err != nil {
		return err
	}

	if !validFeedKinds[f.Kind] {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidFeed, f.Kind)
	}

	if f.MaxAge < 0 {
		return fmt.Errorf("%w: negative max age", ErrInvalidFeed)
	}

	switch f.Kind {
	case FeedKindStatic:
		if !f.Price.IsPositive() || !f.Price.IsInteger() {
			return fmt.Errorf("%w: static feed requires a positive integer price", ErrInvalidFeed)
		}
		if err := ValidateDecimals(f.Decimals); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFeed, err)
		}
	case FeedKindHTTP, FeedKindWebsocket:
		u, err := url.Parse(f.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: endpoint %q is not an absolute URL", ErrInvalidFeed, f.Endpoint)
		}
	case FeedKindRedis:
		if f.Endpoint == "" {
			return fmt.Errorf("%w: redis feed requires a key", ErrInvalidFeed)
		}
	}

	return nil
}

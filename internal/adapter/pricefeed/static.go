package pricefeed

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/iho/govault/internal/domain"
)

// StaticSource reports a fixed price.
type StaticSource struct {
	quote domain.PriceQuote
}

// NewStaticSource creates a source that always reports price at decimals.
func NewStaticSource(price decimal.Decimal, decimals int32) *StaticSource {
	return &StaticSource{quote: domain.PriceQuote{Price: price, Decimals: decimals}}
}

// LatestPrice returns the configured price.
func (s *StaticSource) LatestPrice(_ context.Context) (domain.PriceQuote, error) {
	if err := s.quote.Validate(); err != nil {
		return domain.PriceQuote{}, err
	}
	return s.quote, nil
}

package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPriceQuote_IsStale(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	fresh := PriceQuote{UpdatedAt: now.Add(-30 * time.Second)}
	if fresh.IsStale(now, time.Minute) {
		t.Error("quote within max age reported stale")
	}

	old := PriceQuote{UpdatedAt: now.Add(-2 * time.Minute)}
	if !old.IsStale(now, time.Minute) {
		t.Error("quote older than max age not reported stale")
	}

	if old.IsStale(now, 0) {
		t.Error("zero max age disables staleness")
	}
}

func TestPriceQuote_Validate(t *testing.T) {
	if err := (PriceQuote{Price: decimal.NewFromInt(1), Decimals: 8}).Validate(); err != nil {
		t.Fatalf("expected valid quote, got %v", err)
	}

	if err := (PriceQuote{Price: decimal.Zero, Decimals: 8}).Validate(); !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable for zero price, got %v", err)
	}

	if err := (PriceQuote{Price: decimal.NewFromInt(1), Decimals: -1}).Validate(); !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable for bad decimals, got %v", err)
	}
}

func TestFeed_Validate(t *testing.T) {
	tests := []struct {
		name     string
		feed     Feed
		expected error
	}{
		{
			name: "static feed",
			feed: Feed{Asset: "usdc", Kind: FeedKindStatic, Price: decimal.NewFromInt(100000000), Decimals: 8},
		},
		{
			name:     "static feed without price",
			feed:     Feed{Asset: "usdc", Kind: FeedKindStatic, Decimals: 8},
			expected: ErrInvalidFeed,
		},
		{
			name: "http feed",
			feed: Feed{Asset: "weth", Kind: FeedKindHTTP, Endpoint: "https://oracle.example/weth"},
		},
		{
			name:     "http feed relative endpoint",
			feed:     Feed{Asset: "weth", Kind: FeedKindHTTP, Endpoint: "/weth"},
			expected: ErrInvalidFeed,
		},
		{
			name: "redis feed",
			feed: Feed{Asset: "wbtc", Kind: FeedKindRedis, Endpoint: "prices:wbtc"},
		},
		{
			name:     "redis feed without key",
			feed:     Feed{Asset: "wbtc", Kind: FeedKindRedis},
			expected: ErrInvalidFeed,
		},
		{
			name:     "unknown kind",
			feed:     Feed{Asset: "wbtc", Kind: "carrier-pigeon"},
			expected: ErrInvalidFeed,
		},
		{
			name:     "missing asset",
			feed:     Feed{Kind: FeedKindRedis, Endpoint: "k"},
			expected: ErrInvalidAsset,
		},
		{
			name:     "negative max age",
			feed:     Feed{Asset: "wbtc", Kind: FeedKindRedis, Endpoint: "k", MaxAge: -time.Second},
			expected: ErrInvalidFeed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.feed.Validate()
			if tt.expected == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.expected != nil && !errors.Is(err, tt.expected) {
				t.Errorf("expected error %v, got %v", tt.expected, err)
			}
		})
	}
}

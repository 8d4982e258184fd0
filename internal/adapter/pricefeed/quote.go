// Package pricefeed implements price sources for the oracle registry.
package pricefeed

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/govault/internal/domain"
)

// quoteMessage is the wire shape shared by the HTTP and websocket sources.
//
//	{"price": "200000000000", "decimals": 8, "updated_at": "2024-01-01T00:00:00Z"}
type quoteMessage struct {
	Price     decimal.Decimal `json:"price"`
	Decimals  *int32          `json:"decimals"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func (m quoteMessage) quote() (domain.PriceQuote, error) {
	if m.Error != "" {
		return domain.PriceQuote{}, fmt.Errorf("%w: %s", domain.ErrOracleUnavailable, m.Error)
	}
	if m.Decimals == nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: quote without decimals", domain.ErrOracleUnavailable)
	}

	q := domain.PriceQuote{
		Price:    m.Price,
		Decimals: *m.Decimals,
	}
	if m.UpdatedAt != nil {
		q.UpdatedAt = m.UpdatedAt.UTC()
	}

	if err := domain.ValidateDecimals(q.Decimals); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: %w", domain.ErrOracleUnavailable, err)
	}
	if err := q.Validate(); err != nil {
		return domain.PriceQuote{}, err
	}

	return q, nil
}

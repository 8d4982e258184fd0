package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/iho/govault/internal/domain"
)

const maxResponseBytes = 1 << 16

// HTTPSource fetches the price from a JSON endpoint on every call.
type HTTPSource struct {
	client   *http.Client
	endpoint string
}

// NewHTTPSource creates a source reading endpoint with client.
func NewHTTPSource(client *http.Client, endpoint string) *HTTPSource {
	return &HTTPSource{client: client, endpoint: endpoint}
}

// LatestPrice performs a GET request and decodes the quote.
func (s *HTTPSource) LatestPrice(ctx context.Context) (domain.PriceQuote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: %w", domain.ErrOracleUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: %w", domain.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.PriceQuote{}, fmt.Errorf("%w: %s returned %d", domain.ErrOracleUnavailable, s.endpoint, resp.StatusCode)
	}

	var msg quoteMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&msg); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: decode quote: %w", domain.ErrOracleUnavailable, err)
	}

	return msg.quote()
}

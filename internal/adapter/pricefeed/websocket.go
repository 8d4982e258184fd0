package pricefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iho/govault/internal/domain"
)

const defaultWebsocketTimeout = 5 * time.Second

type quoteRequest struct {
	Asset string `json:"asset"`
}

// WebsocketSource asks a websocket price server for a quote on every call:
// it dials, sends {"asset": ...}, reads one quote message and disconnects.
type WebsocketSource struct {
	dialer   *websocket.Dialer
	endpoint string
	asset    string
	timeout  time.Duration
}

// NewWebsocketSource creates a source for asset served at endpoint.
func NewWebsocketSource(dialer *websocket.Dialer, endpoint, asset string, timeout time.Duration) *WebsocketSource {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if timeout <= 0 {
		timeout = defaultWebsocketTimeout
	}

	return &WebsocketSource{
		dialer:   dialer,
		endpoint: endpoint,
		asset:    asset,
		timeout:  timeout,
	}
}

// LatestPrice requests one quote.
func (s *WebsocketSource) LatestPrice(ctx context.Context) (domain.PriceQuote, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, _, err := s.dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: dial %s: %w", domain.ErrOracleUnavailable, s.endpoint, err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	if err := conn.WriteJSON(quoteRequest{Asset: s.asset}); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: request quote: %w", domain.ErrOracleUnavailable, err)
	}

	var msg quoteMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: read quote: %w", domain.ErrOracleUnavailable, err)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	return msg.quote()
}

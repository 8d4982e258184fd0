package pricefeed

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/usecase"
)

// Factory builds price sources from feed registrations.
type Factory struct {
	httpClient *http.Client
	redis      redis.Cmdable
	dialer     *websocket.Dialer
	timeout    time.Duration
}

// Option configures a Factory.
type Option func(*Factory)

// WithHTTPClient sets the client used by HTTP feeds.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Factory) { f.httpClient = client }
}

// WithRedis enables redis feeds.
func WithRedis(client redis.Cmdable) Option {
	return func(f *Factory) { f.redis = client }
}

// WithDialer sets the dialer used by websocket feeds.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(f *Factory) { f.dialer = dialer }
}

// NewFactory creates a Factory. timeout bounds each network lookup.
func NewFactory(timeout time.Duration, opts ...Option) *Factory {
	f := &Factory{
		httpClient: &http.Client{Timeout: timeout},
		dialer:     &websocket.Dialer{HandshakeTimeout: timeout},
		timeout:    timeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Source implements usecase.PriceSourceFactory.
func (f *Factory) Source(feed *domain.Feed) (usecase.PriceSource, error) {
	switch feed.Kind {
	case domain.FeedKindStatic:
		return NewStaticSource(feed.Price, feed.Decimals), nil
	case domain.FeedKindHTTP:
		return NewHTTPSource(f.httpClient, feed.Endpoint), nil
	case domain.FeedKindRedis:
		if f.redis == nil {
			return nil, fmt.Errorf("%w: redis feeds are not enabled", domain.ErrInvalidFeed)
		}
		return NewRedisSource(f.redis, feed.Endpoint), nil
	case domain.FeedKindWebsocket:
		return NewWebsocketSource(f.dialer, feed.Endpoint, feed.Asset, f.timeout), nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidFeed, feed.Kind)
	}
}

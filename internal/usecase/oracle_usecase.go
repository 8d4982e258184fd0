package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/infrastructure/metrics"
)

// OracleUseCase is the price oracle registry: one feed per asset plus one for
// the native currency. Prices are read synchronously on every call and never
// cached.
type OracleUseCase struct {
	feedRepo FeedRepository
	factory  PriceSourceFactory
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewOracleUseCase creates a new OracleUseCase.
func NewOracleUseCase(feedRepo FeedRepository, factory PriceSourceFactory, metrics *metrics.Metrics) *OracleUseCase {
	return &OracleUseCase{
		feedRepo: feedRepo,
		factory:  factory,
		metrics:  metrics,
		now:      time.Now,
	}
}

// GetPrice returns the current price of asset and its precision.
func (uc *OracleUseCase) GetPrice(ctx context.Context, asset string) (domain.PriceQuote, error) {
	quote, err := uc.getPrice(ctx, asset)

	if uc.metrics != nil {
		status := "ok"
		if err != nil {
			status = "unavailable"
		}
		uc.metrics.OracleLookups.WithLabelValues(asset, status).Inc()
	}

	return quote, err
}

func (uc *OracleUseCase) getPrice(ctx context.Context, asset string) (domain.PriceQuote, error) {
	feed, err := uc.feedRepo.Get(ctx, asset)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: asset %s: %w", domain.ErrOracleUnavailable, asset, err)
	}

	source, err := uc.factory.Source(feed)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: asset %s: %w", domain.ErrOracleUnavailable, asset, err)
	}

	quote, err := source.LatestPrice(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrOracleUnavailable) {
			return domain.PriceQuote{}, err
		}
		return domain.PriceQuote{}, fmt.Errorf("%w: asset %s: %w", domain.ErrOracleUnavailable, asset, err)
	}

	if quote.IsStale(uc.now(), feed.MaxAge) {
		return domain.PriceQuote{}, fmt.Errorf("%w: asset %s: price updated at %s is stale",
			domain.ErrOracleUnavailable, asset, quote.UpdatedAt.Format(time.RFC3339))
	}

	if err := quote.Validate(); err != nil {
		return domain.PriceQuote{}, err
	}

	return quote, nil
}

// Register replaces the feed of feed.Asset within tx.
// Authorization is the caller's concern.
func (uc *OracleUseCase) Register(ctx context.Context, tx Transaction, feed *domain.Feed) error {
	if err := feed.Validate(); err != nil {
		return err
	}

	if _, err := uc.factory.Source(feed); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidFeed, err)
	}

	feed.UpdatedAt = uc.now().UTC()

	return uc.feedRepo.Upsert(ctx, tx, feed)
}

// GetFeed returns the registered feed of asset.
func (uc *OracleUseCase) GetFeed(ctx context.Context, asset string) (*domain.Feed, error) {
	return uc.feedRepo.Get(ctx, asset)
}

// ListFeeds returns all registered feeds.
func (uc *OracleUseCase) ListFeeds(ctx context.Context) ([]*domain.Feed, error) {
	return uc.feedRepo.List(ctx)
}

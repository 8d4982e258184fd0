package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/usecase"
)

const (
	upsertFeedSQL = `
		INSERT INTO price_feeds (asset, kind, endpoint, price, decimals, max_age_seconds, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		ON CONFLICT (asset) DO UPDATE SET
			kind = EXCLUDED.kind,
			endpoint = EXCLUDED.endpoint,
			price = EXCLUDED.price,
			decimals = EXCLUDED.decimals,
			max_age_seconds = EXCLUDED.max_age_seconds,
			updated_at = EXCLUDED.updated_at`

	selectFeedColumns = `SELECT asset, kind, endpoint, price::text, decimals, max_age_seconds, updated_at FROM price_feeds`
)

// FeedRepository implements usecase.FeedRepository.
type FeedRepository struct {
	db DBTX
}

// NewFeedRepository creates a new FeedRepository.
func NewFeedRepository(pool *pgxpool.Pool) *FeedRepository {
	return newFeedRepositoryWithDB(pool)
}

func newFeedRepositoryWithDB(db DBTX) *FeedRepository {
	return &FeedRepository{db: db}
}

// Upsert replaces the registration of feed.Asset within tx.
func (r *FeedRepository) Upsert(ctx context.Context, tx usecase.Transaction, feed *domain.Feed) error {
	q, err := pgxTxOf(tx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, upsertFeedSQL,
		feed.Asset,
		string(feed.Kind),
		feed.Endpoint,
		feed.Price.String(),
		feed.Decimals,
		int64(feed.MaxAge/time.Second),
		feed.UpdatedAt,
	)

	return err
}

// Get returns the feed registered for asset.
func (r *FeedRepository) Get(ctx context.Context, asset string) (*domain.Feed, error) {
	feed, err := scanFeed(r.db.QueryRow(ctx, selectFeedColumns+` WHERE asset = $1`, asset))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFeedNotFound
		}
		return nil, err
	}

	return feed, nil
}

// List returns all feeds ordered by asset.
func (r *FeedRepository) List(ctx context.Context) ([]*domain.Feed, error) {
	rows, err := r.db.Query(ctx, selectFeedColumns+` ORDER BY asset`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feeds []*domain.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, feed)
	}

	return feeds, rows.Err()
}

func scanFeed(row pgx.Row) (*domain.Feed, error) {
	var (
		feed          domain.Feed
		kind, price   string
		maxAgeSeconds int64
	)

	if err := row.Scan(&feed.Asset, &kind, &feed.Endpoint, &price, &feed.Decimals, &maxAgeSeconds, &feed.UpdatedAt); err != nil {
		return nil, err
	}

	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid feed price %q: %w", price, err)
	}

	feed.Kind = domain.FeedKind(kind)
	feed.Price = p
	feed.MaxAge = time.Duration(maxAgeSeconds) * time.Second

	return &feed, nil
}

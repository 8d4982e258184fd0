package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/usecase"
)

const (
	insertOutboxSQL = `
		INSERT INTO outbox_events (id, aggregate_id, aggregate_type, event_type, payload, created_at, published)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	selectUnpublishedSQL = `
		SELECT id, aggregate_id, aggregate_type, event_type, payload, created_at, published, published_at
		FROM outbox_events
		WHERE published = FALSE
		ORDER BY created_at
		LIMIT $1`

	markPublishedSQL = `
		UPDATE outbox_events SET published = TRUE, published_at = $2 WHERE id = $1`
)

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	db      DBTX
	retrier *Retrier
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(pool *pgxpool.Pool, retrier *Retrier) *OutboxRepository {
	return newOutboxRepositoryWithDB(pool, retrier)
}

func newOutboxRepositoryWithDB(db DBTX, retrier *Retrier) *OutboxRepository {
	return &OutboxRepository{db: db, retrier: retrier}
}

// Create creates a new outbox event within a transaction.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	q, err := pgxTxOf(tx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, insertOutboxSQL,
		event.ID,
		event.AggregateID,
		event.AggregateType,
		event.EventType,
		payload,
		event.CreatedAt,
		event.Published,
	)

	return err
}

// GetUnpublished retrieves unpublished events, oldest first.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	var events []*domain.OutboxEvent

	err := r.retry(ctx, func() error {
		events = events[:0]

		rows, err := r.db.Query(ctx, selectUnpublishedSQL, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				event       domain.OutboxEvent
				payload     []byte
				publishedAt *time.Time
			)
			if err := rows.Scan(
				&event.ID,
				&event.AggregateID,
				&event.AggregateType,
				&event.EventType,
				&payload,
				&event.CreatedAt,
				&event.Published,
				&publishedAt,
			); err != nil {
				return err
			}

			if payload != nil {
				_ = json.Unmarshal(payload, &event.Payload)
			}
			event.PublishedAt = publishedAt

			events = append(events, &event)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return events, nil
}

// MarkPublished marks an event as published.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	return r.retry(ctx, func() error {
		_, err := r.db.Exec(ctx, markPublishedSQL, id, publishedAt)
		return err
	})
}

func (r *OutboxRepository) retry(ctx context.Context, op func() error) error {
	if r.retrier == nil {
		return op()
	}
	return r.retrier.Retry(ctx, op)
}

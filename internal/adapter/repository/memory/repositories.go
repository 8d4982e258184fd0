package memory

import (
	"context"
	"sort"
	"time"

	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/usecase"
)

// FeedRepository implements usecase.FeedRepository.
type FeedRepository struct {
	store *Store
}

// NewFeedRepository creates a feed repository over store.
func NewFeedRepository(store *Store) *FeedRepository {
	return &FeedRepository{store: store}
}

// Upsert replaces the feed of feed.Asset.
func (r *FeedRepository) Upsert(_ context.Context, tx usecase.Transaction, feed *domain.Feed) error {
	memTx, err := r.store.txOf(tx)
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	prev, ok := r.store.feeds[feed.Asset]
	next := *feed
	r.store.feeds[feed.Asset] = &next

	memTx.record(func() {
		if ok {
			r.store.feeds[feed.Asset] = prev
		} else {
			delete(r.store.feeds, feed.Asset)
		}
	})

	return nil
}

// Get returns the feed of asset.
func (r *FeedRepository) Get(_ context.Context, asset string) (*domain.Feed, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	feed, ok := r.store.feeds[asset]
	if !ok {
		return nil, domain.ErrFeedNotFound
	}

	c := *feed
	return &c, nil
}

// List returns all feeds ordered by asset.
func (r *FeedRepository) List(_ context.Context) ([]*domain.Feed, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	feeds := make([]*domain.Feed, 0, len(r.store.feeds))
	for _, feed := range r.store.feeds {
		c := *feed
		feeds = append(feeds, &c)
	}
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].Asset < feeds[j].Asset })

	return feeds, nil
}

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	store *Store
}

// NewOutboxRepository creates an outbox over store.
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{store: store}
}

// Create appends event to the outbox.
func (r *OutboxRepository) Create(_ context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	memTx, err := r.store.txOf(tx)
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	n := len(r.store.outbox)
	c := *event
	r.store.outbox = append(r.store.outbox, &c)
	memTx.record(func() { r.store.outbox = r.store.outbox[:n] })

	return nil
}

// GetUnpublished returns up to limit unpublished events, oldest first.
func (r *OutboxRepository) GetUnpublished(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	events := make([]*domain.OutboxEvent, 0, limit)
	for _, event := range r.store.outbox {
		if len(events) == limit {
			break
		}
		if !event.Published {
			c := *event
			events = append(events, &c)
		}
	}

	return events, nil
}

// MarkPublished marks the event id as published.
func (r *OutboxRepository) MarkPublished(_ context.Context, id string, publishedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, event := range r.store.outbox {
		if event.ID == id {
			event.Published = true
			event.PublishedAt = &publishedAt
			return nil
		}
	}

	return nil
}

// Events returns a snapshot of all events, published or not.
func (r *OutboxRepository) Events() []*domain.OutboxEvent {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	events := make([]*domain.OutboxEvent, len(r.store.outbox))
	for i, event := range r.store.outbox {
		c := *event
		events[i] = &c
	}

	return events
}

// AuditRepository implements usecase.AuditRepository.
type AuditRepository struct {
	store *Store
}

// NewAuditRepository creates an audit log over store.
func NewAuditRepository(store *Store) *AuditRepository {
	return &AuditRepository{store: store}
}

// CreateTx appends log to the audit trail.
func (r *AuditRepository) CreateTx(_ context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	memTx, err := r.store.txOf(tx)
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	n := len(r.store.audit)
	c := *log
	r.store.audit = append(r.store.audit, &c)
	memTx.record(func() { r.store.audit = r.store.audit[:n] })

	return nil
}

// List returns audit logs matching filter, newest first.
func (r *AuditRepository) List(_ context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var logs []*domain.AuditLog
	for i := len(r.store.audit) - 1; i >= 0; i-- {
		log := r.store.audit[i]
		if filter.UserID != "" && log.UserID != filter.UserID {
			continue
		}
		if filter.Action != "" && log.Action != filter.Action {
			continue
		}
		if filter.ResourceType != "" && log.ResourceType != filter.ResourceType {
			continue
		}
		if filter.ResourceID != "" && log.ResourceID != filter.ResourceID {
			continue
		}
		c := *log
		logs = append(logs, &c)
	}

	if filter.Offset >= len(logs) {
		return []*domain.AuditLog{}, nil
	}
	logs = logs[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(logs) {
		logs = logs[:filter.Limit]
	}

	return logs, nil
}

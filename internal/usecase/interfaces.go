package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/govault/internal/domain"
)

// LedgerStore is the only path to the balance table and the vault-state
// accumulator. Mutations always run inside a Transaction.
type LedgerStore interface {
	// InitState creates the singleton vault state if it does not exist yet and
	// returns the stored state.
	InitState(ctx context.Context, tx Transaction, state *domain.VaultState) (*domain.VaultState, error)
	// LockState returns the vault state, serializing all other transactions
	// that lock it until tx ends.
	LockState(ctx context.Context, tx Transaction) (*domain.VaultState, error)
	Credit(ctx context.Context, tx Transaction, account, asset string, amount decimal.Decimal) (*domain.Balance, error)
	Debit(ctx context.Context, tx Transaction, account, asset string, amount decimal.Decimal) (*domain.Balance, error)
	// AdjustTotal adds delta to TotalValue, floored at zero, and returns the
	// delta actually applied.
	AdjustTotal(ctx context.Context, tx Transaction, delta decimal.Decimal) (decimal.Decimal, error)

	GetBalance(ctx context.Context, account, asset string) (*domain.Balance, error)
	GetState(ctx context.Context) (*domain.VaultState, error)
	// AssetTotals sums balances across accounts for each asset.
	AssetTotals(ctx context.Context) (map[string]decimal.Decimal, error)
}

// FeedRepository persists price feed registrations.
type FeedRepository interface {
	Upsert(ctx context.Context, tx Transaction, feed *domain.Feed) error
	Get(ctx context.Context, asset string) (*domain.Feed, error)
	List(ctx context.Context) ([]*domain.Feed, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
}

// AuditRepository defines data access for audit logs.
type AuditRepository interface {
	CreateTx(ctx context.Context, tx Transaction, log *domain.AuditLog) error
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error)
}

// Custodian moves custody of assets in and out of the vault.
type Custodian interface {
	// Decimals reports the smallest-unit granularity of a non-native asset.
	Decimals(ctx context.Context, asset string) (int32, error)
	// Pull moves amount of asset from account into vault custody.
	Pull(ctx context.Context, account, asset string, amount decimal.Decimal) error
	// Push moves amount of asset from vault custody to account.
	Push(ctx context.Context, account, asset string, amount decimal.Decimal) error
	// PushNative moves native currency from vault custody to account.
	PushNative(ctx context.Context, account string, amount decimal.Decimal) error
	// Holdings reports what the vault actually custodies of asset.
	Holdings(ctx context.Context, asset string) (decimal.Decimal, error)
}

// NativeReceiver is implemented by custodians that must be told about native
// currency sent along with a deposit.
type NativeReceiver interface {
	ReceiveNative(ctx context.Context, account string, amount decimal.Decimal) error
}

// PriceSource is an external price oracle for one asset.
type PriceSource interface {
	LatestPrice(ctx context.Context) (domain.PriceQuote, error)
}

// PriceOracle returns the current price of an asset.
type PriceOracle interface {
	GetPrice(ctx context.Context, asset string) (domain.PriceQuote, error)
}

// FeedRegistrar registers price feeds inside a store transaction.
type FeedRegistrar interface {
	Register(ctx context.Context, tx Transaction, feed *domain.Feed) error
	GetFeed(ctx context.Context, asset string) (*domain.Feed, error)
}

// PriceSourceFactory builds a PriceSource from a registered feed.
type PriceSourceFactory interface {
	Source(feed *domain.Feed) (PriceSource, error)
}

// Transaction represents a store transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a key whose request did not complete, so it can be retried.
	Release(ctx context.Context, key string) error
}

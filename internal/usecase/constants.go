package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a store transaction.
	DefaultTransactionTimeout = 10 * time.Second

	// MaxValuationAssets bounds the asset list of a single balance-value query.
	MaxValuationAssets = 100

	// maxAuditPageSize caps a single audit log listing.
	maxAuditPageSize = 500

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour
)

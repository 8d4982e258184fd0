package domain

import "time"

// Event types
const (
	EventTypeDeposited          = "vault.deposited"
	EventTypeWithdrawn          = "vault.withdrawn"
	EventTypeDepositRefunded    = "vault.deposit_refunded"
	EventTypeWithdrawalReverted = "vault.withdrawal_reverted"
	EventTypeFeedReplaced       = "feed.replaced"
	EventTypeAssetRecovered     = "asset.recovered"
)

// Aggregate types
const (
	AggregateTypeBalance = "balance"
	AggregateTypeFeed    = "feed"
	AggregateTypeCustody = "custody"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// DepositedEvent payload
type DepositedEvent struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
	Value   string `json:"value"`
}

// WithdrawnEvent payload
type WithdrawnEvent struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
	Value   string `json:"value"`
}

// FeedReplacedEvent payload
type FeedReplacedEvent struct {
	Asset    string `json:"asset"`
	Kind     string `json:"kind"`
	Endpoint string `json:"endpoint,omitempty"`
}

// AssetRecoveredEvent payload
type AssetRecoveredEvent struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// BalanceAggregateID identifies the (account, asset) pair an event belongs to.
func BalanceAggregateID(account, asset string) string {
	return account + "/" + asset
}

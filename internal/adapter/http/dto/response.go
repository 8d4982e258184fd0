package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/usecase"
)

// OperationResponse is the outcome of a deposit or withdrawal.
type OperationResponse struct {
	Account    string          `json:"account"`
	Asset      string          `json:"asset"`
	Amount     decimal.Decimal `json:"amount"`
	Value      decimal.Decimal `json:"value"`
	Balance    decimal.Decimal `json:"balance"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// OperationFromResult converts a use case result to response.
func OperationFromResult(r *usecase.OperationResult) *OperationResponse {
	return &OperationResponse{
		Account:    r.Account,
		Asset:      r.Asset,
		Amount:     r.Amount,
		Value:      r.Value,
		Balance:    r.Balance,
		TotalValue: r.TotalValue,
	}
}

// BalanceResponse represents one ledger balance.
type BalanceResponse struct {
	Account   string          `json:"account"`
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

// BalanceFromDomain converts domain balance to response.
func BalanceFromDomain(b *domain.Balance) *BalanceResponse {
	resp := &BalanceResponse{Account: b.Account, Asset: b.Asset, Amount: b.Amount}
	if !b.UpdatedAt.IsZero() {
		t := b.UpdatedAt
		resp.UpdatedAt = &t
	}
	return resp
}

// HoldingResponse is the value of one holding.
type HoldingResponse struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
	Value  decimal.Decimal `json:"value"`
}

// ValuationResponse is the value of an account's holdings.
type ValuationResponse struct {
	Account  string             `json:"account"`
	Total    decimal.Decimal    `json:"total"`
	Holdings []*HoldingResponse `json:"holdings"`
}

// ValuationFromResult converts a use case valuation to response.
func ValuationFromResult(v *usecase.Valuation) *ValuationResponse {
	holdings := make([]*HoldingResponse, len(v.Holdings))
	for i, h := range v.Holdings {
		holdings[i] = &HoldingResponse{Asset: h.Asset, Amount: h.Amount, Value: h.Value}
	}
	return &ValuationResponse{Account: v.Account, Total: v.Total, Holdings: holdings}
}

// StateResponse represents the vault-wide accumulator.
type StateResponse struct {
	CommonAsset string          `json:"common_asset"`
	TotalValue  decimal.Decimal `json:"total_value"`
	BankCap     decimal.Decimal `json:"bank_cap"`
	Headroom    decimal.Decimal `json:"headroom"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// StateFromDomain converts domain state to response.
func StateFromDomain(s *domain.VaultState) *StateResponse {
	return &StateResponse{
		CommonAsset: s.CommonAsset,
		TotalValue:  s.TotalValue,
		BankCap:     s.BankCap,
		Headroom:    s.Headroom(),
		UpdatedAt:   s.UpdatedAt,
	}
}

// AssetReconciliationResponse compares ledger and custody for one asset.
type AssetReconciliationResponse struct {
	Asset      string          `json:"asset"`
	Ledger     decimal.Decimal `json:"ledger"`
	Custody    decimal.Decimal `json:"custody"`
	Surplus    decimal.Decimal `json:"surplus"`
	Shortfall  decimal.Decimal `json:"shortfall"`
	Value      decimal.Decimal `json:"value"`
	PriceError string          `json:"price_error,omitempty"`
}

// ReconciliationResponse is a full custody reconciliation report.
type ReconciliationResponse struct {
	Assets      []*AssetReconciliationResponse `json:"assets"`
	TotalValue  decimal.Decimal                `json:"total_value"`
	MarketValue decimal.Decimal                `json:"market_value"`
	Drift       decimal.Decimal                `json:"drift"`
	Consistent  bool                           `json:"consistent"`
	CheckedAt   time.Time                      `json:"checked_at"`
}

// ReconciliationFromReport converts a use case report to response.
func ReconciliationFromReport(r *usecase.ReconciliationReport) *ReconciliationResponse {
	assets := make([]*AssetReconciliationResponse, len(r.Assets))
	for i, a := range r.Assets {
		assets[i] = &AssetReconciliationResponse{
			Asset:      a.Asset,
			Ledger:     a.Ledger,
			Custody:    a.Custody,
			Surplus:    a.Surplus,
			Shortfall:  a.Shortfall,
			Value:      a.Value,
			PriceError: a.PriceError,
		}
	}
	return &ReconciliationResponse{
		Assets:      assets,
		TotalValue:  r.TotalValue,
		MarketValue: r.MarketValue,
		Drift:       r.Drift,
		Consistent:  r.Consistent,
		CheckedAt:   r.CheckedAt,
	}
}

// FeedResponse represents a registered price feed.
type FeedResponse struct {
	Asset         string           `json:"asset"`
	Kind          string           `json:"kind"`
	Endpoint      string           `json:"endpoint,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	Decimals      int32            `json:"decimals"`
	MaxAgeSeconds int64            `json:"max_age_seconds"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// FeedFromDomain converts domain feed to response.
func FeedFromDomain(f *domain.Feed) *FeedResponse {
	resp := &FeedResponse{
		Asset:         f.Asset,
		Kind:          string(f.Kind),
		Endpoint:      f.Endpoint,
		Decimals:      f.Decimals,
		MaxAgeSeconds: int64(f.MaxAge / time.Second),
		UpdatedAt:     f.UpdatedAt,
	}
	if f.Kind == domain.FeedKindStatic {
		p := f.Price
		resp.Price = &p
	}
	return resp
}

// FeedsFromDomain converts domain feeds to responses.
func FeedsFromDomain(feeds []*domain.Feed) []*FeedResponse {
	result := make([]*FeedResponse, len(feeds))
	for i, f := range feeds {
		result[i] = FeedFromDomain(f)
	}
	return result
}

// AuditLogResponse represents an audit trail entry.
type AuditLogResponse struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	Action       string      `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id"`
	RequestID    string      `json:"request_id,omitempty"`
	BeforeState  domain.JSON `json:"before_state,omitempty"`
	AfterState   domain.JSON `json:"after_state,omitempty"`
	Status       string      `json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// AuditLogsFromDomain converts audit entries to responses.
func AuditLogsFromDomain(logs []*domain.AuditLog) []*AuditLogResponse {
	result := make([]*AuditLogResponse, len(logs))
	for i, l := range logs {
		result[i] = &AuditLogResponse{
			ID:           l.ID,
			UserID:       l.UserID,
			Action:       l.Action,
			ResourceType: l.ResourceType,
			ResourceID:   l.ResourceID,
			RequestID:    l.RequestID,
			BeforeState:  l.BeforeState,
			AfterState:   l.AfterState,
			Status:       l.Status,
			ErrorMessage: l.ErrorMessage,
			CreatedAt:    l.CreatedAt,
		}
	}
	return result
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

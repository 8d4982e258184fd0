package dto

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/usecase"
)

// NativeDepositRequest represents a deposit of the native currency.
type NativeDepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// DepositRequest represents a deposit of an external asset.
type DepositRequest struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

// ToUseCaseInput converts to use case input for account.
func (r *DepositRequest) ToUseCaseInput(account string) usecase.DepositInput {
	return usecase.DepositInput{Account: account, Asset: r.Asset, Amount: r.Amount}
}

// WithdrawRequest represents a withdrawal of any asset, native included.
type WithdrawRequest struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

// ToUseCaseInput converts to use case input for account.
func (r *WithdrawRequest) ToUseCaseInput(account string) usecase.WithdrawInput {
	return usecase.WithdrawInput{Account: account, Asset: r.Asset, Amount: r.Amount}
}

// ValueRequest asks for the common-currency value of an account's holdings.
type ValueRequest struct {
	Account string   `json:"account"`
	Assets  []string `json:"assets"`
}

// ToUseCaseInput converts to use case input.
func (r *ValueRequest) ToUseCaseInput() usecase.ValuationInput {
	return usecase.ValuationInput{Account: r.Account, Assets: r.Assets}
}

// FeedRequest registers or replaces a price feed.
type FeedRequest struct {
	Kind          string          `json:"kind"`
	Endpoint      string          `json:"endpoint,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Decimals      int32           `json:"decimals,omitempty"`
	MaxAgeSeconds int64           `json:"max_age_seconds,omitempty"`
}

// ToDomain converts to a feed descriptor for asset.
func (r *FeedRequest) ToDomain(asset string) (*domain.Feed, error) {
	if r.MaxAgeSeconds < 0 {
		return nil, fmt.Errorf("%w: negative max_age_seconds", domain.ErrInvalidFeed)
	}

	return &domain.Feed{
		Asset:    asset,
		Kind:     domain.FeedKind(r.Kind),
		Endpoint: r.Endpoint,
		Price:    r.Price,
		Decimals: r.Decimals,
		MaxAge:   time.Duration(r.MaxAgeSeconds) * time.Second,
	}, nil
}

// RecoverRequest moves custody of an external asset held outside the ledger.
type RecoverRequest struct {
	Asset  string          `json:"asset"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// RecoverNativeRequest moves native currency held outside the ledger.
type RecoverNativeRequest struct {
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

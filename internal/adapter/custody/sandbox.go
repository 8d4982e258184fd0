// Package custody provides custody adapters for the vault.
package custody

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/iho/govault/internal/domain"
)

var (
	// ErrUnknownAsset is returned for assets the custodian does not list.
	ErrUnknownAsset = errors.New("custody: unknown asset")
	// ErrInsufficientFunds is returned when a holder cannot cover a transfer.
	ErrInsufficientFunds = errors.New("custody: insufficient funds")
)

// VaultHolder is the holder name of the vault's own custody.
const VaultHolder = "vault"

// Sandbox is a book-entry custodian: it tracks holdings per holder and
// asset in memory. It is meant for development and tests.
type Sandbox struct {
	mu       sync.Mutex
	decimals map[string]int32
	holdings map[string]map[string]decimal.Decimal
}

// NewSandbox creates a custodian listing the given assets and their decimals.
func NewSandbox(assets map[string]int32) *Sandbox {
	decimals := make(map[string]int32, len(assets))
	for asset, d := range assets {
		decimals[asset] = d
	}

	return &Sandbox{
		decimals: decimals,
		holdings: make(map[string]map[string]decimal.Decimal),
	}
}

// ListAsset adds or replaces an asset listing.
func (s *Sandbox) ListAsset(asset string, decimals int32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decimals[asset] = decimals
}

// Fund mints amount of asset to holder.
func (s *Sandbox) Fund(holder, asset string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.add(holder, asset, amount)
}

// BalanceOf returns what holder holds of asset.
func (s *Sandbox) BalanceOf(holder, asset string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.holdings[holder][asset]
}

// Decimals implements usecase.Custodian.
func (s *Sandbox) Decimals(_ context.Context, asset string) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.decimals[asset]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	return d, nil
}

// Pull implements usecase.Custodian.
func (s *Sandbox) Pull(_ context.Context, account, asset string, amount decimal.Decimal) error {
	if err := s.listed(asset); err != nil {
		return err
	}
	return s.move(account, VaultHolder, asset, amount)
}

// Push implements usecase.Custodian.
func (s *Sandbox) Push(_ context.Context, account, asset string, amount decimal.Decimal) error {
	if err := s.listed(asset); err != nil {
		return err
	}
	return s.move(VaultHolder, account, asset, amount)
}

// PushNative implements usecase.Custodian.
func (s *Sandbox) PushNative(_ context.Context, account string, amount decimal.Decimal) error {
	return s.move(VaultHolder, account, domain.NativeAsset, amount)
}

// ReceiveNative implements usecase.NativeReceiver.
func (s *Sandbox) ReceiveNative(_ context.Context, account string, amount decimal.Decimal) error {
	return s.move(account, VaultHolder, domain.NativeAsset, amount)
}

// Holdings implements usecase.Custodian.
func (s *Sandbox) Holdings(_ context.Context, asset string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.holdings[VaultHolder][asset], nil
}

func (s *Sandbox) listed(asset string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.decimals[asset]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	return nil
}

func (s *Sandbox) move(from, to, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("custody: non-positive amount %s", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holdings[from][asset].LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s %s, needs %s",
			ErrInsufficientFunds, from, s.holdings[from][asset], asset, amount)
	}

	s.add(from, asset, amount.Neg())
	s.add(to, asset, amount)

	return nil
}

func (s *Sandbox) add(holder, asset string, amount decimal.Decimal) {
	wallet, ok := s.holdings[holder]
	if !ok {
		wallet = make(map[string]decimal.Decimal)
		s.holdings[holder] = wallet
	}
	wallet[asset] = wallet[asset].Add(amount)
}

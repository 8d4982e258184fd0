package memory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/usecase"
)

// LedgerStore implements usecase.LedgerStore.
type LedgerStore struct {
	store *Store
}

// NewLedgerStore creates a ledger over store.
func NewLedgerStore(store *Store) *LedgerStore {
	return &LedgerStore{store: store}
}

// InitState creates the vault state if absent and returns the stored state.
func (l *LedgerStore) InitState(_ context.Context, tx usecase.Transaction, state *domain.VaultState) (*domain.VaultState, error) {
	memTx, err := l.store.txOf(tx)
	if err != nil {
		return nil, err
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	if l.store.state == nil {
		l.store.state = copyState(state)
		memTx.record(func() { l.store.state = nil })
	}

	return copyState(l.store.state), nil
}

// LockState returns the vault state. The transaction already holds the
// store exclusively.
func (l *LedgerStore) LockState(_ context.Context, tx usecase.Transaction) (*domain.VaultState, error) {
	if _, err := l.store.txOf(tx); err != nil {
		return nil, err
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	if l.store.state == nil {
		return nil, domain.ErrVaultNotReady
	}

	return copyState(l.store.state), nil
}

// Credit increases the balance of (account, asset).
func (l *LedgerStore) Credit(_ context.Context, tx usecase.Transaction, account, asset string, amount decimal.Decimal) (*domain.Balance, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	memTx, err := l.store.txOf(tx)
	if err != nil {
		return nil, err
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	key := balanceKey{account: account, asset: asset}
	balance, ok := l.store.balances[key]
	if !ok {
		balance = zeroBalance(account, asset)
	}

	amountAfter := balance.ApplyCredit(amount)
	if err := domain.ValidateUnsigned(amountAfter); err != nil {
		return nil, err
	}

	next := copyBalance(balance)
	next.Amount = amountAfter
	next.UpdatedAt = time.Now().UTC()

	l.store.balances[key] = next
	memTx.record(func() {
		if ok {
			l.store.balances[key] = balance
		} else {
			delete(l.store.balances, key)
		}
	})

	return copyBalance(next), nil
}

// Debit decreases the balance of (account, asset).
func (l *LedgerStore) Debit(_ context.Context, tx usecase.Transaction, account, asset string, amount decimal.Decimal) (*domain.Balance, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	memTx, err := l.store.txOf(tx)
	if err != nil {
		return nil, err
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	key := balanceKey{account: account, asset: asset}
	balance, ok := l.store.balances[key]
	if !ok {
		balance = zeroBalance(account, asset)
	}

	if err := balance.ValidateDebit(amount); err != nil {
		return nil, err
	}

	next := copyBalance(balance)
	next.Amount = balance.ApplyDebit(amount)
	next.UpdatedAt = time.Now().UTC()

	l.store.balances[key] = next
	memTx.record(func() { l.store.balances[key] = balance })

	return copyBalance(next), nil
}

// AdjustTotal adds delta to TotalValue, floored at zero.
func (l *LedgerStore) AdjustTotal(_ context.Context, tx usecase.Transaction, delta decimal.Decimal) (decimal.Decimal, error) {
	memTx, err := l.store.txOf(tx)
	if err != nil {
		return decimal.Zero, err
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	if l.store.state == nil {
		return decimal.Zero, domain.ErrVaultNotReady
	}

	prev := l.store.state
	next := copyState(prev)
	total, applied := next.ApplyAdjustment(delta)
	if err := domain.ValidateUnsigned(total); err != nil {
		return decimal.Zero, err
	}
	next.TotalValue = total
	next.UpdatedAt = time.Now().UTC()

	l.store.state = next
	memTx.record(func() { l.store.state = prev })

	return applied, nil
}

// GetBalance returns the balance of (account, asset), zero if never credited.
func (l *LedgerStore) GetBalance(_ context.Context, account, asset string) (*domain.Balance, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	balance, ok := l.store.balances[balanceKey{account: account, asset: asset}]
	if !ok {
		return zeroBalance(account, asset), nil
	}

	return copyBalance(balance), nil
}

// GetState returns the vault state.
func (l *LedgerStore) GetState(_ context.Context) (*domain.VaultState, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	if l.store.state == nil {
		return nil, domain.ErrVaultNotReady
	}

	return copyState(l.store.state), nil
}

// AssetTotals sums balances per asset.
func (l *LedgerStore) AssetTotals(_ context.Context) (map[string]decimal.Decimal, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	totals := make(map[string]decimal.Decimal)
	for key, balance := range l.store.balances {
		totals[key.asset] = totals[key.asset].Add(balance.Amount)
	}

	return totals, nil
}

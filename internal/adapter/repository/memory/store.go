// Package memory implements the vault stores in process memory.
//
// Transactions are serialized: Begin blocks until the previous transaction
// ends. Writes are applied immediately and undone on rollback, so readers
// outside a transaction may observe uncommitted writes.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/usecase"
)

// ErrTxDone is returned when a finished transaction is used.
var ErrTxDone = errors.New("memory: transaction already finished")

type balanceKey struct {
	account string
	asset   string
}

// Store holds all vault data.
type Store struct {
	mu       sync.Mutex
	txSlot   chan struct{}
	balances map[balanceKey]*domain.Balance
	state    *domain.VaultState
	feeds    map[string]*domain.Feed
	outbox   []*domain.OutboxEvent
	audit    []*domain.AuditLog
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		txSlot:   make(chan struct{}, 1),
		balances: make(map[balanceKey]*domain.Balance),
		feeds:    make(map[string]*domain.Feed),
	}
}

// Tx is a store transaction.
type Tx struct {
	store *Store
	undo  []func()
	done  bool
}

// TxManager begins memory transactions.
type TxManager struct {
	store *Store
}

// NewTxManager creates a transaction manager for store.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Begin waits for the running transaction to end and starts a new one.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case m.store.txSlot <- struct{}{}:
		return &Tx{store: m.store}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Commit keeps the transaction's writes.
func (t *Tx) Commit(_ context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.undo = nil
	<-t.store.txSlot
	return nil
}

// Rollback reverts the transaction's writes. Rolling back a finished
// transaction is a no-op.
func (t *Tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true

	t.store.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.store.mu.Unlock()

	t.undo = nil
	<-t.store.txSlot
	return nil
}

// record registers fn to run on rollback. Callers hold store.mu.
func (t *Tx) record(fn func()) {
	t.undo = append(t.undo, fn)
}

func (s *Store) txOf(tx usecase.Transaction) (*Tx, error) {
	memTx, ok := tx.(*Tx)
	if !ok || memTx.store != s {
		return nil, errors.New("memory: foreign transaction")
	}
	if memTx.done {
		return nil, ErrTxDone
	}
	return memTx, nil
}

func copyBalance(b *domain.Balance) *domain.Balance {
	c := *b
	return &c
}

func copyState(s *domain.VaultState) *domain.VaultState {
	c := *s
	return &c
}

func zeroBalance(account, asset string) *domain.Balance {
	return &domain.Balance{Account: account, Asset: asset, Amount: decimal.Zero}
}

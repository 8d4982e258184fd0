package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/govault/internal/domain"
)

func newInitializedStore(t *testing.T, bankCap int64) (*Store, *TxManager, *LedgerStore) {
	t.Helper()

	store := NewStore()
	txManager := NewTxManager(store)
	ledger := NewLedgerStore(store)

	ctx := context.Background()
	tx, err := txManager.Begin(ctx)
	require.NoError(t, err)
	_, err = ledger.InitState(ctx, tx, &domain.VaultState{
		CommonAsset: "usdc",
		BankCap:     decimal.NewFromInt(bankCap),
		TotalValue:  decimal.Zero,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	return store, txManager, ledger
}

func TestInitStateKeepsExistingState(t *testing.T) {
	ctx := context.Background()
	_, txManager, ledger := newInitializedStore(t, 100)

	tx, err := txManager.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	state, err := ledger.InitState(ctx, tx, &domain.VaultState{CommonAsset: "dai", BankCap: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.Equal(t, "usdc", state.CommonAsset)
	assert.True(t, state.BankCap.Equal(decimal.NewFromInt(100)))
}

func TestGetStateBeforeInit(t *testing.T) {
	ledger := NewLedgerStore(NewStore())

	_, err := ledger.GetState(context.Background())
	assert.ErrorIs(t, err, domain.ErrVaultNotReady)
}

func TestCreditDebitCommit(t *testing.T) {
	ctx := context.Background()
	_, txManager, ledger := newInitializedStore(t, 100)

	tx, err := txManager.Begin(ctx)
	require.NoError(t, err)

	balance, err := ledger.Credit(ctx, tx, "alice", "usdc", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, balance.Amount.Equal(decimal.NewFromInt(10)))

	balance, err = ledger.Debit(ctx, tx, "alice", "usdc", decimal.NewFromInt(4))
	require.NoError(t, err)
	assert.True(t, balance.Amount.Equal(decimal.NewFromInt(6)))

	require.NoError(t, tx.Commit(ctx))

	balance, err = ledger.GetBalance(ctx, "alice", "usdc")
	require.NoError(t, err)
	assert.True(t, balance.Amount.Equal(decimal.NewFromInt(6)))
}

func TestDebitInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	_, txManager, ledger := newInitializedStore(t, 100)

	tx, err := txManager.Begin(ctx)
	require.NoError(t, err)
	_, err = ledger.Credit(ctx, tx, "alice", "usdc", decimal.NewFromInt(5))
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	tx, err = txManager.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = ledger.Debit(ctx, tx, "alice", "usdc", decimal.NewFromInt(6))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	balance, err := ledger.GetBalance(ctx, "alice", "usdc")
	require.NoError(t, err)
	assert.True(t, balance.Amount.Equal(decimal.NewFromInt(5)))
}

func TestRollbackRestoresEverything(t *testing.T) {
	ctx := context.Background()
	store, txManager, ledger := newInitializedStore(t, 100)
	feeds := NewFeedRepository(store)
	outbox := NewOutboxRepository(store)
	audit := NewAuditRepository(store)

	tx, err := txManager.Begin(ctx)
	require.NoError(t, err)

	_, err = ledger.Credit(ctx, tx, "alice", "usdc", decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = ledger.AdjustTotal(ctx, tx, decimal.NewFromInt(10))
	require.NoError(t, err)
	require.NoError(t, feeds.Upsert(ctx, tx, &domain.Feed{Asset: "weth", Kind: domain.FeedKindStatic}))
	require.NoError(t, outbox.Create(ctx, tx, &domain.OutboxEvent{ID: "e1"}))
	require.NoError(t, audit.CreateTx(ctx, tx, &domain.AuditLog{ID: "a1"}))

	require.NoError(t, tx.Rollback(ctx))

	balance, err := ledger.GetBalance(ctx, "alice", "usdc")
	require.NoError(t, err)
	assert.True(t, balance.Amount.IsZero())

	state, err := ledger.GetState(ctx)
	require.NoError(t, err)
	assert.True(t, state.TotalValue.IsZero())

	_, err = feeds.Get(ctx, "weth")
	assert.ErrorIs(t, err, domain.ErrFeedNotFound)
	assert.Empty(t, outbox.Events())

	logs, err := audit.List(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestAdjustTotalFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	_, txManager, ledger := newInitializedStore(t, 100)

	tx, err := txManager.Begin(ctx)
	require.NoError(t, err)

	applied, err := ledger.AdjustTotal(ctx, tx, decimal.NewFromInt(30))
	require.NoError(t, err)
	assert.True(t, applied.Equal(decimal.NewFromInt(30)))

	applied, err = ledger.AdjustTotal(ctx, tx, decimal.NewFromInt(-50))
	require.NoError(t, err)
	assert.True(t, applied.Equal(decimal.NewFromInt(-30)))
	require.NoError(t, tx.Commit(ctx))

	state, err := ledger.GetState(ctx)
	require.NoError(t, err)
	assert.True(t, state.TotalValue.IsZero())
}

func TestBeginWaitsForRunningTransaction(t *testing.T) {
	ctx := context.Background()
	txManager := NewTxManager(NewStore())

	tx, err := txManager.Begin(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	_, err = txManager.Begin(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, tx.Commit(ctx))

	next, err := txManager.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, next.Rollback(ctx))
}

func TestBeginRejectsCancelledContext(t *testing.T) {
	txManager := NewTxManager(NewStore())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The slot is free; a cancelled context must still lose every time.
	for i := 0; i < 50; i++ {
		_, err := txManager.Begin(ctx)
		require.ErrorIs(t, err, context.Canceled)
	}

	tx, err := txManager.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(context.Background()))
}

func TestFinishedTransactionIsRejected(t *testing.T) {
	ctx := context.Background()
	_, txManager, ledger := newInitializedStore(t, 100)

	tx, err := txManager.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	_, err = ledger.Credit(ctx, tx, "alice", "usdc", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrTxDone)
	assert.ErrorIs(t, tx.Commit(ctx), ErrTxDone)
	assert.NoError(t, tx.Rollback(ctx))
}

func TestAssetTotals(t *testing.T) {
	ctx := context.Background()
	_, txManager, ledger := newInitializedStore(t, 100)

	tx, err := txManager.Begin(ctx)
	require.NoError(t, err)
	_, err = ledger.Credit(ctx, tx, "alice", "usdc", decimal.NewFromInt(3))
	require.NoError(t, err)
	_, err = ledger.Credit(ctx, tx, "bob", "usdc", decimal.NewFromInt(4))
	require.NoError(t, err)
	_, err = ledger.Credit(ctx, tx, "bob", "native", decimal.NewFromInt(9))
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	totals, err := ledger.AssetTotals(ctx)
	require.NoError(t, err)
	assert.True(t, totals["usdc"].Equal(decimal.NewFromInt(7)))
	assert.True(t, totals["native"].Equal(decimal.NewFromInt(9)))
}

func TestOutboxPublishing(t *testing.T) {
	ctx := context.Background()
	store, txManager, _ := newInitializedStore(t, 100)
	outbox := NewOutboxRepository(store)

	tx, err := txManager.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, outbox.Create(ctx, tx, &domain.OutboxEvent{ID: "e1"}))
	require.NoError(t, outbox.Create(ctx, tx, &domain.OutboxEvent{ID: "e2"}))
	require.NoError(t, tx.Commit(ctx))

	require.NoError(t, outbox.MarkPublished(ctx, "e1", time.Now()))

	events, err := outbox.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e2", events[0].ID)
}

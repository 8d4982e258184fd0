package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/govault/internal/adapter/custody"
	"github.com/iho/govault/internal/adapter/pricefeed"
	"github.com/iho/govault/internal/domain"
	infrapostgres "github.com/iho/govault/internal/infrastructure/postgres"
	"github.com/iho/govault/internal/usecase"
)

// newIntegrationPool connects to DATABASE_URL, migrates it and empties every
// table. The test is skipped when no database is configured.
func newIntegrationPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	require.NoError(t, infrapostgres.RunMigrations(dbURL, zerolog.Nop()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := infrapostgres.NewPool(ctx, dbURL, 10, 1)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE vault_state, balances, price_feeds, outbox_events, audit_logs;
	`)
	require.NoError(t, err)

	return pool
}

func TestIntegration_ConcurrentDepositsRespectCap(t *testing.T) {
	pool := newIntegrationPool(t)
	ctx := context.Background()

	sandbox := custody.NewSandbox(map[string]int32{"usdc": 6})
	feedRepo := NewFeedRepository(pool)
	oracle := usecase.NewOracleUseCase(feedRepo, pricefeed.NewFactory(time.Second), nil)
	ledger := NewLedgerStore(pool)

	vault := usecase.NewVaultUseCase(
		usecase.VaultConfig{
			CommonAsset:    "usdc",
			CommonDecimals: 6,
			NativeDecimals: domain.DefaultNativeDecimals,
			BankCap:        decimal.NewFromInt(1000),
			NativeFeed: &domain.Feed{
				Kind:     domain.FeedKindStatic,
				Price:    decimal.NewFromInt(2000_00000000),
				Decimals: 8,
			},
		},
		NewTxManager(pool),
		ledger,
		NewOutboxRepository(pool, NewRetrier(zerolog.Nop())),
		NewAuditRepository(pool),
		oracle,
		sandbox,
		NewULIDGenerator(),
		nil,
		zerolog.Nop(),
	)

	_, err := vault.Initialize(ctx, oracle)
	require.NoError(t, err)

	const depositors = 20
	accounts := make([]string, depositors)
	for i := range accounts {
		accounts[i] = "acct-" + string(rune('a'+i))
		sandbox.Fund(accounts[i], "usdc", decimal.NewFromInt(100))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for _, account := range accounts {
		wg.Add(1)
		go func(account string) {
			defer wg.Done()
			_, err := vault.Deposit(ctx, usecase.DepositInput{Account: account, Asset: "usdc", Amount: decimal.NewFromInt(100)})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrBankCapExceeded):
				rejected++
			default:
				t.Errorf("unexpected deposit error: %v", err)
			}
		}(account)
	}
	wg.Wait()

	assert.Equal(t, 10, accepted)
	assert.Equal(t, 10, rejected)

	state, err := ledger.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1000", state.TotalValue.String())

	report, err := usecase.NewReconciliationUseCase(ledger, sandbox, vault).GenerateReconciliationReport(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
}

func TestIntegration_WithdrawRestoresState(t *testing.T) {
	pool := newIntegrationPool(t)
	ctx := context.Background()

	sandbox := custody.NewSandbox(map[string]int32{"usdc": 6})
	feedRepo := NewFeedRepository(pool)
	oracle := usecase.NewOracleUseCase(feedRepo, pricefeed.NewFactory(time.Second), nil)
	ledger := NewLedgerStore(pool)
	outbox := NewOutboxRepository(pool, NewRetrier(zerolog.Nop()))

	vault := usecase.NewVaultUseCase(
		usecase.VaultConfig{
			CommonAsset:    "usdc",
			CommonDecimals: 6,
			NativeDecimals: domain.DefaultNativeDecimals,
			BankCap:        decimal.NewFromInt(1_000_000),
			NativeFeed: &domain.Feed{
				Kind:     domain.FeedKindStatic,
				Price:    decimal.NewFromInt(1_00000000),
				Decimals: 8,
			},
		},
		NewTxManager(pool), ledger, outbox, NewAuditRepository(pool),
		oracle, sandbox, NewULIDGenerator(), nil, zerolog.Nop(),
	)

	_, err := vault.Initialize(ctx, oracle)
	require.NoError(t, err)

	sandbox.Fund("alice", "usdc", decimal.NewFromInt(500))

	_, err = vault.Deposit(ctx, usecase.DepositInput{Account: "alice", Asset: "usdc", Amount: decimal.NewFromInt(500)})
	require.NoError(t, err)

	_, err = vault.Withdraw(ctx, usecase.WithdrawInput{Account: "alice", Asset: "usdc", Amount: decimal.NewFromInt(500)})
	require.NoError(t, err)

	balance, err := ledger.GetBalance(ctx, "alice", "usdc")
	require.NoError(t, err)
	assert.True(t, balance.Amount.IsZero())

	state, err := ledger.GetState(ctx)
	require.NoError(t, err)
	assert.True(t, state.TotalValue.IsZero())
	assert.Equal(t, "500", sandbox.BalanceOf("alice", "usdc").String())

	events, err := outbox.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventTypeDeposited, events[0].EventType)
	assert.Equal(t, domain.EventTypeWithdrawn, events[1].EventType)
}

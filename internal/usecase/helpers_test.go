package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/govault/internal/adapter/custody"
	"github.com/iho/govault/internal/adapter/pricefeed"
	"github.com/iho/govault/internal/adapter/repository/memory"
	"github.com/iho/govault/internal/adapter/repository/postgres"
	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/usecase"
	"github.com/iho/govault/internal/usecase/mocks"
)

const (
	commonAsset = "usdc"
	wethAsset   = "weth"
)

var (
	// 2000 common units per native unit, 8 price decimals.
	nativePrice = domain.PriceQuote{Price: decimal.NewFromInt(2000_00000000), Decimals: 8}
	oneNative   = decimal.RequireFromString("1000000000000000000")
)

type vaultHarness struct {
	store     *memory.Store
	txManager *memory.TxManager
	ledger    *memory.LedgerStore
	feeds     *memory.FeedRepository
	outbox    *memory.OutboxRepository
	audit     *memory.AuditRepository
	custodian *custody.Sandbox
	oracle    *mocks.MockPriceOracle
	registry  *usecase.OracleUseCase
	vault     *usecase.VaultUseCase
	cfg       usecase.VaultConfig
}

type harnessOption func(*harnessDeps)

type harnessDeps struct {
	txManager usecase.TransactionManager
	custodian usecase.Custodian
}

func withTxManager(txManager usecase.TransactionManager) harnessOption {
	return func(d *harnessDeps) { d.txManager = txManager }
}

func withCustodian(custodian usecase.Custodian) harnessOption {
	return func(d *harnessDeps) { d.custodian = custodian }
}

func vaultConfig(bankCap decimal.Decimal) usecase.VaultConfig {
	return usecase.VaultConfig{
		CommonAsset:    commonAsset,
		CommonDecimals: 6,
		NativeDecimals: 18,
		BankCap:        bankCap,
		NativeFeed: &domain.Feed{
			Kind:     domain.FeedKindStatic,
			Price:    nativePrice.Price,
			Decimals: nativePrice.Decimals,
		},
	}
}

// newVaultHarness builds an initialized vault over the memory store and a
// sandbox custodian listing usdc (6) and weth (18).
func newVaultHarness(t *testing.T, bankCap decimal.Decimal, opts ...harnessOption) *vaultHarness {
	t.Helper()

	ctrl := gomock.NewController(t)

	store := memory.NewStore()
	h := &vaultHarness{
		store:     store,
		txManager: memory.NewTxManager(store),
		ledger:    memory.NewLedgerStore(store),
		feeds:     memory.NewFeedRepository(store),
		outbox:    memory.NewOutboxRepository(store),
		audit:     memory.NewAuditRepository(store),
		custodian: custody.NewSandbox(map[string]int32{commonAsset: 6, wethAsset: 18}),
		oracle:    mocks.NewMockPriceOracle(ctrl),
		cfg:       vaultConfig(bankCap),
	}
	h.registry = usecase.NewOracleUseCase(h.feeds, pricefeed.NewFactory(time.Second), nil)

	deps := harnessDeps{txManager: h.txManager, custodian: h.custodian}
	for _, opt := range opts {
		opt(&deps)
	}

	h.vault = usecase.NewVaultUseCase(
		h.cfg,
		deps.txManager,
		h.ledger,
		h.outbox,
		h.audit,
		h.oracle,
		deps.custodian,
		postgres.NewULIDGenerator(),
		nil,
		zerolog.Nop(),
	)

	// Initialization always goes through the real store.
	initVault := usecase.NewVaultUseCase(h.cfg, h.txManager, h.ledger, h.outbox, h.audit, h.oracle,
		h.custodian, postgres.NewULIDGenerator(), nil, zerolog.Nop())
	_, err := initVault.Initialize(context.Background(), h.registry)
	require.NoError(t, err)

	return h
}

func (h *vaultHarness) priceNative() {
	h.oracle.EXPECT().GetPrice(gomock.Any(), domain.NativeAsset).Return(nativePrice, nil).AnyTimes()
}

func (h *vaultHarness) balance(t *testing.T, account, asset string) decimal.Decimal {
	t.Helper()
	b, err := h.ledger.GetBalance(context.Background(), account, asset)
	require.NoError(t, err)
	return b.Amount
}

func (h *vaultHarness) totalValue(t *testing.T) decimal.Decimal {
	t.Helper()
	state, err := h.ledger.GetState(context.Background())
	require.NoError(t, err)
	return state.TotalValue
}

func (h *vaultHarness) eventTypes() []string {
	var types []string
	for _, e := range h.outbox.Events() {
		types = append(types, e.EventType)
	}
	return types
}

func adminContext() context.Context {
	return domain.WithUser(context.Background(), &domain.User{ID: "root", Role: domain.RoleAdmin})
}

func depositorContext(id string) context.Context {
	return domain.WithUser(context.Background(), &domain.User{ID: id, Role: domain.RoleDepositor})
}

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

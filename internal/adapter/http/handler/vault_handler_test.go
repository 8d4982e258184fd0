package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/govault/internal/adapter/http/dto"
	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/usecase"
)

type vaultServiceStub struct {
	depositNativeFn func(ctx context.Context, account string, amount decimal.Decimal) (*usecase.OperationResult, error)
	depositFn       func(ctx context.Context, input usecase.DepositInput) (*usecase.OperationResult, error)
	withdrawFn      func(ctx context.Context, input usecase.WithdrawInput) (*usecase.OperationResult, error)
	getBalanceFn    func(ctx context.Context, account, asset string) (*domain.Balance, error)
	valueFn         func(ctx context.Context, input usecase.ValuationInput) (*usecase.Valuation, error)
	getStateFn      func(ctx context.Context) (*domain.VaultState, error)
}

func (s *vaultServiceStub) DepositNative(ctx context.Context, account string, amount decimal.Decimal) (*usecase.OperationResult, error) {
	return s.depositNativeFn(ctx, account, amount)
}

func (s *vaultServiceStub) Deposit(ctx context.Context, input usecase.DepositInput) (*usecase.OperationResult, error) {
	return s.depositFn(ctx, input)
}

func (s *vaultServiceStub) Withdraw(ctx context.Context, input usecase.WithdrawInput) (*usecase.OperationResult, error) {
	return s.withdrawFn(ctx, input)
}

func (s *vaultServiceStub) GetBalance(ctx context.Context, account, asset string) (*domain.Balance, error) {
	return s.getBalanceFn(ctx, account, asset)
}

func (s *vaultServiceStub) QueryBalanceValue(ctx context.Context, input usecase.ValuationInput) (*usecase.Valuation, error) {
	return s.valueFn(ctx, input)
}

func (s *vaultServiceStub) GetState(ctx context.Context) (*domain.VaultState, error) {
	return s.getStateFn(ctx)
}

type reconcilerStub struct {
	report *usecase.ReconciliationReport
	err    error
}

func (s *reconcilerStub) GenerateReconciliationReport(ctx context.Context) (*usecase.ReconciliationReport, error) {
	return s.report, s.err
}

func asUser(req *http.Request, id string, role domain.Role) *http.Request {
	return req.WithContext(domain.WithUser(req.Context(), &domain.User{ID: id, Role: role}))
}

func vaultRouter(h *VaultHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/vault/deposits/native", h.DepositNative)
	r.Post("/vault/deposits", h.Deposit)
	r.Post("/vault/withdrawals", h.Withdraw)
	r.Get("/vault/balances/{asset}", h.GetBalance)
	r.Post("/vault/value", h.Value)
	r.Get("/vault/state", h.GetState)
	r.Get("/vault/reconciliation", h.Reconcile)
	return r
}

func TestVaultHandler_DepositUsesCallerAccount(t *testing.T) {
	var captured usecase.DepositInput
	h := NewVaultHandler(&vaultServiceStub{
		depositFn: func(ctx context.Context, input usecase.DepositInput) (*usecase.OperationResult, error) {
			captured = input
			return &usecase.OperationResult{
				Account: input.Account, Asset: input.Asset, Amount: input.Amount,
				Value: decimal.NewFromInt(5), Balance: input.Amount, TotalValue: decimal.NewFromInt(5),
			}, nil
		},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/vault/deposits", strings.NewReader(`{"asset":"usdc","amount":"5"}`))
	rec := httptest.NewRecorder()
	vaultRouter(h).ServeHTTP(rec, asUser(req, "alice", domain.RoleDepositor))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "alice", captured.Account)
	assert.Equal(t, "usdc", captured.Asset)
	assert.True(t, captured.Amount.Equal(decimal.NewFromInt(5)))

	var resp dto.OperationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.TotalValue.Equal(decimal.NewFromInt(5)))
}

func TestVaultHandler_DepositNative(t *testing.T) {
	h := NewVaultHandler(&vaultServiceStub{
		depositNativeFn: func(ctx context.Context, account string, amount decimal.Decimal) (*usecase.OperationResult, error) {
			return &usecase.OperationResult{Account: account, Asset: domain.NativeAsset, Amount: amount}, nil
		},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/vault/deposits/native", strings.NewReader(`{"amount":"1000000000000000000"}`))
	rec := httptest.NewRecorder()
	vaultRouter(h).ServeHTTP(rec, asUser(req, "alice", domain.RoleDepositor))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"asset":"native"`)
}

func TestVaultHandler_DepositErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"cap exceeded", `{"asset":"usdc","amount":"5"}`, domain.ErrBankCapExceeded, http.StatusUnprocessableEntity},
		{"oracle down", `{"asset":"weth","amount":"5"}`, domain.ErrOracleUnavailable, http.StatusServiceUnavailable},
		{"malformed body", `{"asset":`, nil, http.StatusBadRequest},
		{"unknown field", `{"asset":"usdc","amount":"5","memo":"x"}`, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewVaultHandler(&vaultServiceStub{
				depositFn: func(ctx context.Context, input usecase.DepositInput) (*usecase.OperationResult, error) {
					return nil, tt.err
				},
			}, nil)

			req := httptest.NewRequest(http.MethodPost, "/vault/deposits", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			vaultRouter(h).ServeHTTP(rec, asUser(req, "alice", domain.RoleDepositor))

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestVaultHandler_RequiresCaller(t *testing.T) {
	h := NewVaultHandler(&vaultServiceStub{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/vault/withdrawals", strings.NewReader(`{"asset":"usdc","amount":"1"}`))
	rec := httptest.NewRecorder()
	vaultRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVaultHandler_WithdrawTransferFailure(t *testing.T) {
	h := NewVaultHandler(&vaultServiceStub{
		withdrawFn: func(ctx context.Context, input usecase.WithdrawInput) (*usecase.OperationResult, error) {
			return nil, domain.ErrTransferFailed
		},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/vault/withdrawals", strings.NewReader(`{"asset":"usdc","amount":"1"}`))
	rec := httptest.NewRecorder()
	vaultRouter(h).ServeHTTP(rec, asUser(req, "alice", domain.RoleDepositor))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestVaultHandler_GetBalance(t *testing.T) {
	h := NewVaultHandler(&vaultServiceStub{
		getBalanceFn: func(ctx context.Context, account, asset string) (*domain.Balance, error) {
			return &domain.Balance{Account: account, Asset: asset, Amount: decimal.NewFromInt(42)}, nil
		},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/vault/balances/weth", nil)
	rec := httptest.NewRecorder()
	vaultRouter(h).ServeHTTP(rec, asUser(req, "bob", domain.RoleDepositor))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "bob", resp.Account)
	assert.Equal(t, "weth", resp.Asset)
	assert.Equal(t, "42", resp.Amount.String())
}

func TestVaultHandler_ValueDefaultsToCaller(t *testing.T) {
	var captured usecase.ValuationInput
	h := NewVaultHandler(&vaultServiceStub{
		valueFn: func(ctx context.Context, input usecase.ValuationInput) (*usecase.Valuation, error) {
			captured = input
			return &usecase.Valuation{
				Account: input.Account,
				Total:   decimal.NewFromInt(7),
				Holdings: []usecase.HoldingValue{
					{Asset: "usdc", Amount: decimal.NewFromInt(7), Value: decimal.NewFromInt(7)},
				},
			}, nil
		},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/vault/value", strings.NewReader(`{"assets":["usdc"]}`))
	rec := httptest.NewRecorder()
	vaultRouter(h).ServeHTTP(rec, asUser(req, "carol", domain.RoleDepositor))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "carol", captured.Account)
	assert.Equal(t, []string{"usdc"}, captured.Assets)
}

func TestVaultHandler_StateAndReconciliation(t *testing.T) {
	now := time.Now().UTC()
	h := NewVaultHandler(&vaultServiceStub{
		getStateFn: func(ctx context.Context) (*domain.VaultState, error) {
			return &domain.VaultState{CommonAsset: "usdc", BankCap: decimal.NewFromInt(10), TotalValue: decimal.NewFromInt(4)}, nil
		},
	}, &reconcilerStub{report: &usecase.ReconciliationReport{
		Assets: []*usecase.AssetReconciliation{
			{Asset: "usdc", Ledger: decimal.NewFromInt(4), Custody: decimal.NewFromInt(5), Surplus: decimal.NewFromInt(1)},
		},
		Consistent: true,
		CheckedAt:  now,
	}})

	rec := httptest.NewRecorder()
	vaultRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vault/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"headroom":"6"`)

	rec = httptest.NewRecorder()
	vaultRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vault/reconciliation", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.ReconciliationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Consistent)
	require.Len(t, resp.Assets, 1)
	assert.Equal(t, "1", resp.Assets[0].Surplus.String())
}

package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/govault/internal/adapter/http/dto"
	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/usecase"
)

type vaultService interface {
	DepositNative(ctx context.Context, account string, amount decimal.Decimal) (*usecase.OperationResult, error)
	Deposit(ctx context.Context, input usecase.DepositInput) (*usecase.OperationResult, error)
	Withdraw(ctx context.Context, input usecase.WithdrawInput) (*usecase.OperationResult, error)
	GetBalance(ctx context.Context, account, asset string) (*domain.Balance, error)
	QueryBalanceValue(ctx context.Context, input usecase.ValuationInput) (*usecase.Valuation, error)
	GetState(ctx context.Context) (*domain.VaultState, error)
}

type reconciler interface {
	GenerateReconciliationReport(ctx context.Context) (*usecase.ReconciliationReport, error)
}

// VaultHandler handles deposits, withdrawals and vault queries.
type VaultHandler struct {
	vault      vaultService
	reconciler reconciler
}

// NewVaultHandler creates a new VaultHandler.
func NewVaultHandler(vault vaultService, reconciler reconciler) *VaultHandler {
	return &VaultHandler{vault: vault, reconciler: reconciler}
}

// DepositNative credits the caller with native currency sent along with the
// request.
func (h *VaultHandler) DepositNative(w http.ResponseWriter, r *http.Request) {
	account, ok := callerAccount(w, r)
	if !ok {
		return
	}

	var req dto.NativeDepositRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.vault.DepositNative(r.Context(), account, req.Amount)
	if err != nil {
		writeDomainError(w, "failed to deposit", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.OperationFromResult(result))
}

// Deposit pulls an external asset from the caller and credits it.
func (h *VaultHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	account, ok := callerAccount(w, r)
	if !ok {
		return
	}

	var req dto.DepositRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.vault.Deposit(r.Context(), req.ToUseCaseInput(account))
	if err != nil {
		writeDomainError(w, "failed to deposit", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.OperationFromResult(result))
}

// Withdraw debits the caller and pushes the asset back.
func (h *VaultHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	account, ok := callerAccount(w, r)
	if !ok {
		return
	}

	var req dto.WithdrawRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.vault.Withdraw(r.Context(), req.ToUseCaseInput(account))
	if err != nil {
		writeDomainError(w, "failed to withdraw", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.OperationFromResult(result))
}

// GetBalance returns the caller's balance of the asset in the path.
func (h *VaultHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := callerAccount(w, r)
	if !ok {
		return
	}

	balance, err := h.vault.GetBalance(r.Context(), account, chi.URLParam(r, "asset"))
	if err != nil {
		writeDomainError(w, "failed to get balance", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BalanceFromDomain(balance))
}

// Value returns the common-currency value of an account's holdings. The
// caller's own account is used when none is given.
func (h *VaultHandler) Value(w http.ResponseWriter, r *http.Request) {
	account, ok := callerAccount(w, r)
	if !ok {
		return
	}

	var req dto.ValueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Account == "" {
		req.Account = account
	}

	valuation, err := h.vault.QueryBalanceValue(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, "failed to value holdings", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ValuationFromResult(valuation))
}

// GetState returns TotalValue and BankCap.
func (h *VaultHandler) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.vault.GetState(r.Context())
	if err != nil {
		writeDomainError(w, "failed to get vault state", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.StateFromDomain(state))
}

// Reconcile compares ledger balances with custody holdings.
func (h *VaultHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.GenerateReconciliationReport(r.Context())
	if err != nil {
		writeDomainError(w, "failed to reconcile", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReconciliationFromReport(report))
}

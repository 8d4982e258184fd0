package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/govault/internal/adapter/http/handler"
	apimiddleware "github.com/iho/govault/internal/adapter/http/middleware"
	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/infrastructure/metrics"
	"github.com/iho/govault/internal/usecase"
)

func TestNewRouter_HealthEndpointAvailable(t *testing.T) {
	router := NewRouter(newRouterConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /health to return 200, got %d", rec.Code)
	}
}

func TestNewRouter_RateLimiterBlocksExcessRequests(t *testing.T) {
	rl := apimiddleware.NewRateLimiter(1, 1, nil)
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.RateLimiter = rl
	}))

	req1 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req1.RemoteAddr = "1.2.3.4:1234"
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req2.RemoteAddr = "1.2.3.4:1234"
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", rec2.Code)
	}
}

func TestNewRouter_RequiresCaller(t *testing.T) {
	router := NewRouter(newRouterConfig())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/vault/state", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without caller, got %d", rec.Code)
	}
}

func TestNewRouter_AdminRoutesRequireAdminRole(t *testing.T) {
	router := NewRouter(newRouterConfig())

	tests := []struct {
		role   string
		status int
	}{
		{"", http.StatusForbidden},
		{string(domain.RoleDepositor), http.StatusForbidden},
		{string(domain.RoleAdmin), http.StatusOK},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/feeds", nil)
		req.Header.Set(apimiddleware.AccountIDHeader, "operator")
		if tt.role != "" {
			req.Header.Set(apimiddleware.AccountRoleHeader, tt.role)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != tt.status {
			t.Fatalf("role %q: expected %d, got %d", tt.role, tt.status, rec.Code)
		}
	}
}

func TestNewRouter_IdempotencyMiddlewareInvokesStore(t *testing.T) {
	store := &stubIdempotencyStore{}
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.IdempotencyStore = store
	}))

	body := `{"asset":"usdc","amount":"10"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/vault/deposits", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apimiddleware.AccountIDHeader, "alice")
	req.Header.Set(apimiddleware.IdempotencyKeyHeader, "key-123")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.checkedKey != "alice:key-123" {
		t.Fatalf("expected caller-scoped key, got %q", store.checkedKey)
	}
	if !store.updated {
		t.Fatalf("expected response to be stored")
	}
}

func TestNewRouter_MetricsRecordRoutePattern(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.NewWithRegisterer(registry)
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.Metrics = m
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vault/balances/weth", nil)
	req.Header.Set(apimiddleware.AccountIDHeader, "alice")
	router.ServeHTTP(httptest.NewRecorder(), req)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	found := false
	for _, family := range families {
		if family.GetName() != "govault_http_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "path" && label.GetValue() == "/api/v1/vault/balances/{asset}" {
					found = true
				}
			}
		}
	}
	if !found {
		t.Fatalf("expected request counter labelled with route pattern")
	}
}

func TestNewRouter_RegistersKeyRoutes(t *testing.T) {
	router := NewRouter(newRouterConfig())

	chiRoutes, ok := router.(chi.Router)
	if !ok {
		t.Fatal("router does not implement chi.Routes")
	}

	seen := map[string]bool{}
	if err := chi.Walk(chiRoutes, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		seen[method+" "+route] = true
		return nil
	}); err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	expected := []string{
		"GET /health",
		"GET /ready",
		"POST /api/v1/vault/deposits/native",
		"POST /api/v1/vault/deposits",
		"POST /api/v1/vault/withdrawals",
		"GET /api/v1/vault/balances/{asset}",
		"POST /api/v1/vault/value",
		"GET /api/v1/vault/state",
		"GET /api/v1/vault/reconciliation",
		"PUT /api/v1/admin/feeds/{asset}",
		"PUT /api/v1/admin/feeds/native",
		"POST /api/v1/admin/recover",
		"POST /api/v1/admin/recover/native",
		"GET /api/v1/admin/audit",
	}

	for _, route := range expected {
		if !seen[route] {
			t.Fatalf("expected route %s to be registered", route)
		}
	}
}

func newRouterConfig(opts ...func(*RouterConfig)) RouterConfig {
	cfg := RouterConfig{
		VaultHandler:  handler.NewVaultHandler(stubVaultService{}, stubReconciler{}),
		AdminHandler:  handler.NewAdminHandler(stubAdminService{}),
		HealthHandler: handler.NewHealthHandler(nil),
		Logger:        zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

type stubVaultService struct{}

func (stubVaultService) DepositNative(ctx context.Context, account string, amount decimal.Decimal) (*usecase.OperationResult, error) {
	return &usecase.OperationResult{Account: account, Asset: domain.NativeAsset, Amount: amount}, nil
}

func (stubVaultService) Deposit(ctx context.Context, input usecase.DepositInput) (*usecase.OperationResult, error) {
	return &usecase.OperationResult{Account: input.Account, Asset: input.Asset, Amount: input.Amount}, nil
}

func (stubVaultService) Withdraw(ctx context.Context, input usecase.WithdrawInput) (*usecase.OperationResult, error) {
	return &usecase.OperationResult{Account: input.Account, Asset: input.Asset, Amount: input.Amount}, nil
}

func (stubVaultService) GetBalance(ctx context.Context, account, asset string) (*domain.Balance, error) {
	return &domain.Balance{Account: account, Asset: asset, Amount: decimal.Zero}, nil
}

func (stubVaultService) QueryBalanceValue(ctx context.Context, input usecase.ValuationInput) (*usecase.Valuation, error) {
	return &usecase.Valuation{Account: input.Account, Total: decimal.Zero}, nil
}

func (stubVaultService) GetState(ctx context.Context) (*domain.VaultState, error) {
	return &domain.VaultState{CommonAsset: "usdc", BankCap: decimal.NewFromInt(100), TotalValue: decimal.Zero}, nil
}

type stubReconciler struct{}

func (stubReconciler) GenerateReconciliationReport(ctx context.Context) (*usecase.ReconciliationReport, error) {
	return &usecase.ReconciliationReport{Consistent: true, CheckedAt: time.Now()}, nil
}

type stubAdminService struct{}

func (stubAdminService) RegisterAssetFeed(ctx context.Context, feed *domain.Feed) (*domain.Feed, error) {
	return feed, nil
}

func (stubAdminService) ReplaceNativeFeed(ctx context.Context, feed *domain.Feed) (*domain.Feed, error) {
	return feed, nil
}

func (stubAdminService) RecoverAsset(ctx context.Context, asset, to string, amount decimal.Decimal) error {
	return nil
}

func (stubAdminService) RecoverNative(ctx context.Context, to string, amount decimal.Decimal) error {
	return nil
}

func (stubAdminService) ListFeeds(ctx context.Context) ([]*domain.Feed, error) {
	return []*domain.Feed{}, nil
}

func (stubAdminService) ListAuditLogs(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	return []*domain.AuditLog{}, nil
}

type stubIdempotencyStore struct {
	checkedKey string
	updated    bool
}

func (s *stubIdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	s.checkedKey = key
	return false, nil, nil
}

func (s *stubIdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	s.updated = true
	return nil
}

func (s *stubIdempotencyStore) Release(ctx context.Context, key string) error {
	return nil
}

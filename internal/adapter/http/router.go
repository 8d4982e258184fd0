package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/govault/internal/adapter/http/handler"
	"github.com/iho/govault/internal/adapter/http/middleware"
	"github.com/iho/govault/internal/infrastructure/metrics"
	"github.com/iho/govault/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	VaultHandler     *handler.VaultHandler
	AdminHandler     *handler.AdminHandler
	HealthHandler    *handler.HealthHandler
	Authenticator    *middleware.Authenticator
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	RateLimiter      *middleware.RateLimiter
	Metrics          *metrics.Metrics
	// MetricsHandler serves /metrics; promhttp.Handler is used when nil.
	MetricsHandler http.Handler
	Logger         zerolog.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Operational endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	authn := cfg.Authenticator
	if authn == nil {
		authn = middleware.NewAuthenticator(nil, cfg.Metrics)
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authn.Wrap)

		// Idempotency keys are scoped by caller, so this runs after auth
		if cfg.IdempotencyStore != nil {
			idempotencyMiddleware := middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL, cfg.Logger)
			r.Use(idempotencyMiddleware.Wrap)
		}

		r.Route("/vault", func(r chi.Router) {
			r.Post("/deposits/native", cfg.VaultHandler.DepositNative)
			r.Post("/deposits", cfg.VaultHandler.Deposit)
			r.Post("/withdrawals", cfg.VaultHandler.Withdraw)
			r.Get("/balances/{asset}", cfg.VaultHandler.GetBalance)
			r.Post("/value", cfg.VaultHandler.Value)
			r.Get("/state", cfg.VaultHandler.GetState)
			r.Get("/reconciliation", cfg.VaultHandler.Reconcile)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			r.Get("/feeds", cfg.AdminHandler.ListFeeds)
			r.Put("/feeds/native", cfg.AdminHandler.PutNativeFeed)
			r.Put("/feeds/{asset}", cfg.AdminHandler.PutFeed)
			r.Post("/recover", cfg.AdminHandler.Recover)
			r.Post("/recover/native", cfg.AdminHandler.RecoverNative)
			r.Get("/audit", cfg.AdminHandler.ListAuditLogs)
		})
	})

	return r
}

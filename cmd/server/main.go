package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iho/govault/internal/adapter/custody"
	httpAdapter "github.com/iho/govault/internal/adapter/http"
	"github.com/iho/govault/internal/adapter/http/handler"
	"github.com/iho/govault/internal/adapter/http/middleware"
	"github.com/iho/govault/internal/adapter/pricefeed"
	memoryRepo "github.com/iho/govault/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/govault/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/govault/internal/adapter/repository/redis"
	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/infrastructure/auth"
	"github.com/iho/govault/internal/infrastructure/config"
	"github.com/iho/govault/internal/infrastructure/eventpublisher"
	"github.com/iho/govault/internal/infrastructure/logger"
	"github.com/iho/govault/internal/infrastructure/metrics"
	"github.com/iho/govault/internal/infrastructure/postgres"
	"github.com/iho/govault/internal/infrastructure/redis"
	"github.com/iho/govault/internal/usecase"
)

const (
	redisStream       = "govault:events"
	redisStreamMaxLen = 100_000
	limiterIdleTTL    = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	m := metrics.New()

	store, err := newStorage(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer store.close()

	// Redis is optional: it backs idempotency keys, redis price feeds and the
	// redis stream publisher.
	var redisClient *goredis.Client
	factoryOpts := []pricefeed.Option{}
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
		log.Info().Msg("connected to redis")

		factoryOpts = append(factoryOpts, pricefeed.WithRedis(redisClient))
		store.checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	custodian := newCustodian(cfg)
	idGen := postgresRepo.NewULIDGenerator()

	oracle := usecase.NewOracleUseCase(store.feeds, pricefeed.NewFactory(cfg.FeedTimeout, factoryOpts...), m)
	vaultUC := usecase.NewVaultUseCase(
		usecase.VaultConfig{
			CommonAsset:    cfg.CommonAsset,
			CommonDecimals: cfg.CommonDecimals,
			NativeDecimals: cfg.NativeDecimals,
			BankCap:        cfg.BankCap,
			NativeFeed:     cfg.NativeFeed(),
		},
		store.txManager, store.ledger, store.outbox, store.audit,
		oracle, custodian, idGen, m, log,
	)
	if _, err := vaultUC.Initialize(ctx, oracle); err != nil {
		return fmt.Errorf("failed to initialize vault: %w", err)
	}

	adminUC := usecase.NewAdminUseCase(vaultUC, oracle, store.txManager, store.outbox, store.audit, custodian, idGen, log)
	reconciliationUC := usecase.NewReconciliationUseCase(store.ledger, custodian, vaultUC)

	publisher, closePublisher, err := newPublisher(cfg, redisClient, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	go func() {
		_ = eventpublisher.NewEventPublisher(eventpublisher.Config{
			OutboxRepo: store.outbox,
			Publisher:  publisher,
			Logger:     log,
			Metrics:    m,
		}).Start(workerCtx)
	}()

	var jwtManager *auth.JWTManager
	if cfg.AuthEnabled {
		jwtManager = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	} else {
		log.Warn().Msg("authentication disabled: callers are identified by the X-Account-ID header")
	}

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m)
	go cleanupLimiters(workerCtx, rateLimiter)

	routerCfg := httpAdapter.RouterConfig{
		VaultHandler:   handler.NewVaultHandler(vaultUC, reconciliationUC),
		AdminHandler:   handler.NewAdminHandler(adminUC),
		HealthHandler:  handler.NewHealthHandler(store.checks),
		Authenticator:  middleware.NewAuthenticator(jwtManager, m),
		IdempotencyTTL: cfg.IdempotencyTTL,
		RateLimiter:    rateLimiter,
		Metrics:        m,
		Logger:         log,
	}
	if redisClient != nil {
		routerCfg.IdempotencyStore = redisRepo.NewIdempotencyStore(redisClient, m)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      httpAdapter.NewRouter(routerCfg),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("storage", cfg.StorageBackend).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server...")
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}

// storage bundles the repositories of one backend.
type storage struct {
	txManager usecase.TransactionManager
	ledger    usecase.LedgerStore
	feeds     usecase.FeedRepository
	outbox    usecase.OutboxRepository
	audit     usecase.AuditRepository
	checks    map[string]handler.Check
	close     func()
}

func newStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger, m *metrics.Metrics) (*storage, error) {
	if cfg.StorageBackend == config.StorageMemory {
		log.Warn().Msg("using in-memory storage: state is lost on restart")

		store := memoryRepo.NewStore()
		return &storage{
			txManager: memoryRepo.NewTxManager(store),
			ledger:    memoryRepo.NewLedgerStore(store),
			feeds:     memoryRepo.NewFeedRepository(store),
			outbox:    memoryRepo.NewOutboxRepository(store),
			audit:     memoryRepo.NewAuditRepository(store),
			checks:    map[string]handler.Check{},
			close:     func() {},
		}, nil
	}

	if err := postgres.RunMigrations(cfg.DatabaseURL, log); err != nil {
		return nil, err
	}

	pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
		DatabaseURL:    cfg.DatabaseURL,
		MaxConns:       cfg.DatabaseMaxConns,
		MinConns:       cfg.DatabaseMinConns,
		ConnectTimeout: cfg.DatabaseTimeout,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	log.Info().Msg("connected to postgres")

	statsCtx, stopStats := context.WithCancel(ctx)
	go reportPoolStats(statsCtx, pool, m)

	return &storage{
		txManager: postgresRepo.NewTxManager(pool),
		ledger:    postgresRepo.NewLedgerStore(pool),
		feeds:     postgresRepo.NewFeedRepository(pool),
		outbox:    postgresRepo.NewOutboxRepository(pool, postgresRepo.NewRetrier(log)),
		audit:     postgresRepo.NewAuditRepository(pool),
		checks: map[string]handler.Check{
			"postgres": pool.Ping,
		},
		close: func() {
			stopStats()
			pool.Close()
		},
	}, nil
}

// newCustodian lists the configured assets and funds the seed accounts.
func newCustodian(cfg *config.Config) *custody.Sandbox {
	sandbox := custody.NewSandbox(cfg.CustodyAssets)

	if cfg.CustodySeedAmount.IsPositive() {
		for _, account := range cfg.CustodySeedAccounts {
			sandbox.Fund(account, domain.NativeAsset, cfg.CustodySeedAmount)
			for asset := range cfg.CustodyAssets {
				sandbox.Fund(account, asset, cfg.CustodySeedAmount)
			}
		}
	}

	return sandbox
}

func newPublisher(cfg *config.Config, client *goredis.Client, log zerolog.Logger) (eventpublisher.Publisher, func(), error) {
	switch cfg.EventPublisher {
	case config.PublisherKafka:
		p := eventpublisher.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		return p, func() {
			if err := p.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close kafka writer")
			}
		}, nil
	case config.PublisherRedis:
		if client == nil {
			return nil, nil, fmt.Errorf("%w: redis publisher needs a redis client", domain.ErrInvalidConfig)
		}
		return eventpublisher.NewRedisStreamPublisher(client, redisStream, redisStreamMaxLen), func() {}, nil
	default:
		return eventpublisher.NewLogPublisher(log), func() {}, nil
	}
}

func reportPoolStats(ctx context.Context, pool *pgxpool.Pool, m *metrics.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		m.DBConnections.Set(float64(pool.Stat().TotalConns()))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func cleanupLimiters(ctx context.Context, rl *middleware.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.CleanupLimiters(limiterIdleTTL)
		}
	}
}

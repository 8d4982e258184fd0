package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/infrastructure/logger"
)

// AdminUseCase holds the administrator operations: feed management and
// recovery of custody held outside the ledger.
type AdminUseCase struct {
	vault      *VaultUseCase
	oracle     *OracleUseCase
	txManager  TransactionManager
	outboxRepo OutboxRepository
	auditRepo  AuditRepository
	custodian  Custodian
	idGen      IDGenerator
	logger     zerolog.Logger
}

// NewAdminUseCase creates a new AdminUseCase. auditRepo may be nil.
func NewAdminUseCase(
	vault *VaultUseCase,
	oracle *OracleUseCase,
	txManager TransactionManager,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	custodian Custodian,
	idGen IDGenerator,
	log zerolog.Logger,
) *AdminUseCase {
	return &AdminUseCase{
		vault:      vault,
		oracle:     oracle,
		txManager:  txManager,
		outboxRepo: outboxRepo,
		auditRepo:  auditRepo,
		custodian:  custodian,
		idGen:      idGen,
		logger:     log.With().Str("component", "admin").Logger(),
	}
}

// RegisterAssetFeed replaces the price feed of a non-native asset and
// returns the stored registration. feed itself is not modified.
func (uc *AdminUseCase) RegisterAssetFeed(ctx context.Context, feed *domain.Feed) (*domain.Feed, error) {
	user, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, domain.ErrInvalidFeed
	}
	if feed.Asset == domain.NativeAsset {
		return nil, fmt.Errorf("%w: use the native feed operation for %s", domain.ErrInvalidAsset, domain.NativeAsset)
	}
	if err := domain.ValidateAsset(feed.Asset); err != nil {
		return nil, err
	}

	stored := *feed
	if err := uc.replaceFeed(ctx, user, &stored, domain.AuditActionFeedRegister); err != nil {
		return nil, err
	}
	return &stored, nil
}

// ReplaceNativeFeed replaces the price feed of the native currency and
// returns the stored registration. feed itself is not modified.
func (uc *AdminUseCase) ReplaceNativeFeed(ctx context.Context, feed *domain.Feed) (*domain.Feed, error) {
	user, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, domain.ErrInvalidFeed
	}

	stored := *feed
	stored.Asset = domain.NativeAsset
	if err := uc.replaceFeed(ctx, user, &stored, domain.AuditActionFeedNative); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (uc *AdminUseCase) replaceFeed(ctx context.Context, user *domain.User, feed *domain.Feed, action domain.AuditAction) error {
	return uc.vault.Exclusive(ctx, func(ctx context.Context) error {
		var before domain.JSON
		if prior, err := uc.oracle.GetFeed(ctx, feed.Asset); err == nil {
			before = domain.MarshalState(feedState(prior))
		}

		txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := uc.txManager.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		if err := uc.oracle.Register(txCtx, tx, feed); err != nil {
			return err
		}

		payload := feedState(feed)
		now := time.Now().UTC()

		if err := uc.outboxRepo.Create(txCtx, tx, &domain.OutboxEvent{
			ID:            uc.idGen.Generate(),
			AggregateID:   feed.Asset,
			AggregateType: domain.AggregateTypeFeed,
			EventType:     domain.EventTypeFeedReplaced,
			Payload:       domain.MarshalState(payload),
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		if uc.auditRepo != nil {
			if err := uc.auditRepo.CreateTx(txCtx, tx, &domain.AuditLog{
				ID:           uc.idGen.Generate(),
				UserID:       user.ID,
				Action:       string(action),
				ResourceType: domain.AggregateTypeFeed,
				ResourceID:   feed.Asset,
				RequestID:    logger.RequestID(ctx),
				BeforeState:  before,
				AfterState:   domain.MarshalState(payload),
				Status:       string(domain.AuditStatusSuccess),
				CreatedAt:    now,
			}); err != nil {
				return err
			}
		}

		if err := tx.Commit(txCtx); err != nil {
			return err
		}

		log := logger.WithContext(ctx, uc.logger)
		log.Info().
			Str("admin", user.ID).
			Str("asset", feed.Asset).
			Str("kind", string(feed.Kind)).
			Msg("price feed replaced")

		return nil
	})
}

// RecoverAsset pushes amount of a non-native asset out of custody to to.
// Recovery bypasses the ledger: balances and TotalValue are untouched.
func (uc *AdminUseCase) RecoverAsset(ctx context.Context, asset, to string, amount decimal.Decimal) error {
	user, err := requireAdmin(ctx)
	if err != nil {
		return err
	}
	if asset == domain.NativeAsset {
		return fmt.Errorf("%w: use native recovery for %s", domain.ErrInvalidAsset, domain.NativeAsset)
	}
	if err := validateOperation(to, asset, amount); err != nil {
		return err
	}

	return uc.recoverCustody(ctx, user, asset, to, amount, domain.AuditActionRecoverAsset, func(ctx context.Context) error {
		return uc.custodian.Push(ctx, to, asset, amount)
	})
}

// RecoverNative pushes amount of native currency out of custody to to.
func (uc *AdminUseCase) RecoverNative(ctx context.Context, to string, amount decimal.Decimal) error {
	user, err := requireAdmin(ctx)
	if err != nil {
		return err
	}
	if err := validateOperation(to, domain.NativeAsset, amount); err != nil {
		return err
	}

	return uc.recoverCustody(ctx, user, domain.NativeAsset, to, amount, domain.AuditActionRecoverNative, func(ctx context.Context) error {
		return uc.custodian.PushNative(ctx, to, amount)
	})
}

func (uc *AdminUseCase) recoverCustody(
	ctx context.Context,
	user *domain.User,
	asset, to string,
	amount decimal.Decimal,
	action domain.AuditAction,
	push func(ctx context.Context) error,
) error {
	return uc.vault.Exclusive(ctx, func(ctx context.Context) error {
		log := logger.WithContext(ctx, uc.logger)

		if err := push(ctx); err != nil {
			log.Error().Err(err).
				Str("admin", user.ID).
				Str("asset", asset).
				Str("to", to).
				Str("amount", amount.String()).
				Msg("recovery transfer failed")
			return fmt.Errorf("%w: recover %s %s: %w", domain.ErrTransferFailed, amount, asset, err)
		}

		payload := domain.AssetRecoveredEvent{Asset: asset, To: to, Amount: amount.String()}
		now := time.Now().UTC()

		tx, err := uc.txManager.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := uc.outboxRepo.Create(ctx, tx, &domain.OutboxEvent{
			ID:            uc.idGen.Generate(),
			AggregateID:   asset,
			AggregateType: domain.AggregateTypeCustody,
			EventType:     domain.EventTypeAssetRecovered,
			Payload:       domain.MarshalState(payload),
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		if uc.auditRepo != nil {
			if err := uc.auditRepo.CreateTx(ctx, tx, &domain.AuditLog{
				ID:           uc.idGen.Generate(),
				UserID:       user.ID,
				Action:       string(action),
				ResourceType: domain.AggregateTypeCustody,
				ResourceID:   asset,
				RequestID:    logger.RequestID(ctx),
				AfterState:   domain.MarshalState(payload),
				Status:       string(domain.AuditStatusSuccess),
				CreatedAt:    now,
			}); err != nil {
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info().
			Str("admin", user.ID).
			Str("asset", asset).
			Str("to", to).
			Str("amount", amount.String()).
			Msg("custody recovered")

		return nil
	})
}

func requireAdmin(ctx context.Context) (*domain.User, error) {
	user, ok := domain.UserFromContext(ctx)
	if !ok || !user.Role.CanAdminister() {
		return nil, domain.ErrUnauthorized
	}
	return user, nil
}

func feedState(feed *domain.Feed) domain.FeedReplacedEvent {
	return domain.FeedReplacedEvent{
		Asset:    feed.Asset,
		Kind:     string(feed.Kind),
		Endpoint: feed.Endpoint,
	}
}

// ListFeeds returns every registered feed, the native one included.
func (uc *AdminUseCase) ListFeeds(ctx context.Context) ([]*domain.Feed, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return uc.oracle.ListFeeds(ctx)
}

// ListAuditLogs returns audit entries matching filter, newest first.
func (uc *AdminUseCase) ListAuditLogs(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if uc.auditRepo == nil {
		return nil, nil
	}

	if filter.Limit <= 0 || filter.Limit > maxAuditPageSize {
		filter.Limit = maxAuditPageSize
	}

	return uc.auditRepo.List(ctx, filter)
}

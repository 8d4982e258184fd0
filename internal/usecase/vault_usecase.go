package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/infrastructure/logger"
	"github.com/iho/govault/internal/infrastructure/metrics"
)

// VaultConfig holds the immutable parameters of the vault.
type VaultConfig struct {
	// CommonAsset is the accounting currency, valued at par.
	CommonAsset    string
	CommonDecimals int32
	NativeDecimals int32
	BankCap        decimal.Decimal
	NativeFeed     *domain.Feed
}

// Validate checks the configuration.
func (c VaultConfig) Validate() error {
	if err := domain.ValidateAsset(c.CommonAsset); err != nil {
		return fmt.Errorf("%w: common asset: %w", domain.ErrInvalidConfig, err)
	}
	if c.NativeFeed == nil {
		return fmt.Errorf("%w: native price feed is required", domain.ErrInvalidConfig)
	}
	if err := domain.ValidateDecimals(c.CommonDecimals); err != nil {
		return fmt.Errorf("%w: common decimals: %w", domain.ErrInvalidConfig, err)
	}
	if err := domain.ValidateDecimals(c.NativeDecimals); err != nil {
		return fmt.Errorf("%w: native decimals: %w", domain.ErrInvalidConfig, err)
	}
	return domain.ValidateBankCap(c.BankCap)
}

// VaultUseCase is the vault engine: it orchestrates deposits and withdrawals
// across the ledger, the price oracle and the custodian.
type VaultUseCase struct {
	txManager  TransactionManager
	ledger     LedgerStore
	outboxRepo OutboxRepository
	auditRepo  AuditRepository
	oracle     PriceOracle
	custodian  Custodian
	idGen      IDGenerator
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	cfg        VaultConfig
	guard      operationGuard
}

// NewVaultUseCase creates a new VaultUseCase. auditRepo and metrics may be nil.
func NewVaultUseCase(
	cfg VaultConfig,
	txManager TransactionManager,
	ledger LedgerStore,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	oracle PriceOracle,
	custodian Custodian,
	idGen IDGenerator,
	metrics *metrics.Metrics,
	log zerolog.Logger,
) *VaultUseCase {
	return &VaultUseCase{
		txManager:  txManager,
		ledger:     ledger,
		outboxRepo: outboxRepo,
		auditRepo:  auditRepo,
		oracle:     oracle,
		custodian:  custodian,
		idGen:      idGen,
		metrics:    metrics,
		logger:     log.With().Str("component", "vault").Logger(),
		cfg:        cfg,
	}
}

// Initialize creates the persisted vault state on first start and registers
// the native feed if none is registered yet. A persisted vault must match the
// configured common asset and bank cap.
func (uc *VaultUseCase) Initialize(ctx context.Context, feeds FeedRegistrar) (*domain.VaultState, error) {
	if err := uc.cfg.Validate(); err != nil {
		return nil, err
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	state, err := uc.ledger.InitState(ctx, tx, &domain.VaultState{
		CommonAsset: uc.cfg.CommonAsset,
		BankCap:     uc.cfg.BankCap,
		TotalValue:  decimal.Zero,
		UpdatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	if state.CommonAsset != uc.cfg.CommonAsset || !state.BankCap.Equal(uc.cfg.BankCap) {
		return nil, fmt.Errorf("%w: persisted vault has common asset %s and cap %s",
			domain.ErrInvalidConfig, state.CommonAsset, state.BankCap)
	}

	_, err = feeds.GetFeed(ctx, domain.NativeAsset)
	switch {
	case errors.Is(err, domain.ErrFeedNotFound):
		nativeFeed := *uc.cfg.NativeFeed
		nativeFeed.Asset = domain.NativeAsset
		if err := feeds.Register(ctx, tx, &nativeFeed); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.BankCap.Set(state.BankCap.InexactFloat64())
		uc.metrics.TotalValue.Set(state.TotalValue.InexactFloat64())
	}

	uc.logger.Info().
		Str("common_asset", state.CommonAsset).
		Str("bank_cap", state.BankCap.String()).
		Str("total_value", state.TotalValue.String()).
		Msg("vault initialized")

	return state, nil
}

// DepositInput represents input for a deposit.
type DepositInput struct {
	Account string
	Asset   string
	Amount  decimal.Decimal
}

// WithdrawInput represents input for a withdrawal.
type WithdrawInput struct {
	Account string
	Asset   string
	Amount  decimal.Decimal
}

// OperationResult is the outcome of a completed deposit or withdrawal.
type OperationResult struct {
	Account    string
	Asset      string
	Amount     decimal.Decimal
	Value      decimal.Decimal
	Balance    decimal.Decimal
	TotalValue decimal.Decimal
}

// DepositNative credits native currency that arrived together with the call.
func (uc *VaultUseCase) DepositNative(ctx context.Context, account string, amount decimal.Decimal) (*OperationResult, error) {
	return uc.Deposit(ctx, DepositInput{Account: account, Asset: domain.NativeAsset, Amount: amount})
}

// Deposit credits amount of asset to account.
//
// The cap is checked with a provisional valuation before any custody moves.
// The amount is then pulled from the account; if the ledger commit fails
// after the pull the amount is pushed back.
func (uc *VaultUseCase) Deposit(ctx context.Context, input DepositInput) (*OperationResult, error) {
	start := time.Now()

	result, err := uc.deposit(ctx, input)
	uc.observe("deposit", input.Asset, start, err)

	return result, err
}

func (uc *VaultUseCase) deposit(ctx context.Context, input DepositInput) (*OperationResult, error) {
	if err := validateOperation(input.Account, input.Asset, input.Amount); err != nil {
		return nil, err
	}

	ctx, release, err := uc.guard.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	log := logger.WithContext(ctx, uc.logger)

	value, err := uc.valueOf(ctx, input.Asset, input.Amount)
	if err != nil {
		return nil, err
	}

	state, err := uc.ledger.GetState(ctx)
	if err != nil {
		return nil, err
	}
	if err := state.ValidateDeposit(value); err != nil {
		log.Warn().
			Str("account", input.Account).
			Str("asset", input.Asset).
			Str("value", value.String()).
			Str("headroom", state.Headroom().String()).
			Msg("deposit rejected by bank cap")
		return nil, err
	}

	pulled, err := uc.pull(ctx, input.Account, input.Asset, input.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: pull %s %s: %w", domain.ErrTransferFailed, input.Amount, input.Asset, err)
	}

	result, err := uc.commitDeposit(ctx, input, value)
	if err != nil {
		if pulled {
			// The refund must run even when the caller has gone away.
			uc.refundDeposit(context.WithoutCancel(ctx), input, err)
		}
		return nil, err
	}

	log.Info().
		Str("account", input.Account).
		Str("asset", input.Asset).
		Str("amount", input.Amount.String()).
		Str("value", value.String()).
		Msg("deposit completed")

	return result, nil
}

func (uc *VaultUseCase) commitDeposit(ctx context.Context, input DepositInput, value decimal.Decimal) (*OperationResult, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	state, err := uc.ledger.LockState(txCtx, tx)
	if err != nil {
		return nil, err
	}

	// The provisional check ran outside the transaction; another process
	// sharing the store may have moved the total since.
	if err := state.ValidateDeposit(value); err != nil {
		return nil, err
	}

	balance, err := uc.ledger.Credit(txCtx, tx, input.Account, input.Asset, input.Amount)
	if err != nil {
		return nil, err
	}

	if _, err := uc.ledger.AdjustTotal(txCtx, tx, value); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	payload := domain.DepositedEvent{
		Account: input.Account,
		Asset:   input.Asset,
		Amount:  input.Amount.String(),
		Value:   value.String(),
	}
	if err := uc.outboxRepo.Create(txCtx, tx, uc.newEvent(domain.EventTypeDeposited, input.Account, input.Asset, payload, now)); err != nil {
		return nil, err
	}

	if err := uc.audit(txCtx, tx, domain.AuditActionDeposit, input.Account, input.Asset, payload, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	total := state.TotalValue.Add(value)
	if uc.metrics != nil {
		uc.metrics.TotalValue.Set(total.InexactFloat64())
	}

	return &OperationResult{
		Account:    input.Account,
		Asset:      input.Asset,
		Amount:     input.Amount,
		Value:      value,
		Balance:    balance.Amount,
		TotalValue: total,
	}, nil
}

// refundDeposit returns pulled custody after a failed commit.
func (uc *VaultUseCase) refundDeposit(ctx context.Context, input DepositInput, cause error) {
	log := logger.WithContext(ctx, uc.logger)

	if err := uc.push(ctx, input.Account, input.Asset, input.Amount); err != nil {
		log.Error().Err(err).
			AnErr("cause", cause).
			Str("account", input.Account).
			Str("asset", input.Asset).
			Str("amount", input.Amount.String()).
			Msg("deposit refund failed, amount remains in custody")
		return
	}

	if uc.metrics != nil {
		uc.metrics.Compensations.WithLabelValues("deposit_refund").Inc()
	}

	payload := domain.DepositedEvent{
		Account: input.Account,
		Asset:   input.Asset,
		Amount:  input.Amount.String(),
		Value:   "0",
	}
	if err := uc.recordEvent(ctx, domain.EventTypeDepositRefunded, input.Account, input.Asset, payload); err != nil {
		log.Error().Err(err).Msg("failed to record deposit refund event")
	}

	log.Warn().
		AnErr("cause", cause).
		Str("account", input.Account).
		Str("asset", input.Asset).
		Str("amount", input.Amount.String()).
		Msg("deposit refunded")
}

// Withdraw debits amount of asset from account and pushes it out of custody.
//
// The ledger is debited and Withdrawn is queued before the transfer. If the
// transfer fails the debit is compensated by crediting the balance and the
// value back and queueing WithdrawalReverted.
func (uc *VaultUseCase) Withdraw(ctx context.Context, input WithdrawInput) (*OperationResult, error) {
	start := time.Now()

	result, err := uc.withdraw(ctx, input)
	uc.observe("withdraw", input.Asset, start, err)

	return result, err
}

func (uc *VaultUseCase) withdraw(ctx context.Context, input WithdrawInput) (*OperationResult, error) {
	if err := validateOperation(input.Account, input.Asset, input.Amount); err != nil {
		return nil, err
	}

	ctx, release, err := uc.guard.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	log := logger.WithContext(ctx, uc.logger)

	balance, err := uc.ledger.GetBalance(ctx, input.Account, input.Asset)
	if err != nil {
		return nil, err
	}
	if err := balance.ValidateDebit(input.Amount); err != nil {
		return nil, err
	}

	value, err := uc.valueOf(ctx, input.Asset, input.Amount)
	if err != nil {
		return nil, err
	}

	result, applied, err := uc.commitWithdrawal(ctx, input, value)
	if err != nil {
		return nil, err
	}

	if err := uc.push(ctx, input.Account, input.Asset, input.Amount); err != nil {
		transferErr := fmt.Errorf("%w: push %s %s: %w", domain.ErrTransferFailed, input.Amount, input.Asset, err)
		if revertErr := uc.revertWithdrawal(context.WithoutCancel(ctx), input, applied); revertErr != nil {
			log.Error().Err(revertErr).
				AnErr("cause", err).
				Str("account", input.Account).
				Str("asset", input.Asset).
				Str("amount", input.Amount.String()).
				Msg("withdrawal compensation failed, ledger debited without transfer")
			return nil, errors.Join(transferErr, revertErr)
		}
		return nil, transferErr
	}

	log.Info().
		Str("account", input.Account).
		Str("asset", input.Asset).
		Str("amount", input.Amount.String()).
		Str("value", value.String()).
		Msg("withdrawal completed")

	return result, nil
}

func (uc *VaultUseCase) commitWithdrawal(ctx context.Context, input WithdrawInput, value decimal.Decimal) (*OperationResult, decimal.Decimal, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, decimal.Zero, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	state, err := uc.ledger.LockState(txCtx, tx)
	if err != nil {
		return nil, decimal.Zero, err
	}

	balance, err := uc.ledger.Debit(txCtx, tx, input.Account, input.Asset, input.Amount)
	if err != nil {
		return nil, decimal.Zero, err
	}

	applied, err := uc.ledger.AdjustTotal(txCtx, tx, value.Neg())
	if err != nil {
		return nil, decimal.Zero, err
	}

	now := time.Now().UTC()
	payload := domain.WithdrawnEvent{
		Account: input.Account,
		Asset:   input.Asset,
		Amount:  input.Amount.String(),
		Value:   value.String(),
	}
	if err := uc.outboxRepo.Create(txCtx, tx, uc.newEvent(domain.EventTypeWithdrawn, input.Account, input.Asset, payload, now)); err != nil {
		return nil, decimal.Zero, err
	}

	if err := uc.audit(txCtx, tx, domain.AuditActionWithdraw, input.Account, input.Asset, payload, now); err != nil {
		return nil, decimal.Zero, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, decimal.Zero, err
	}

	total := state.TotalValue.Add(applied)
	if uc.metrics != nil {
		uc.metrics.TotalValue.Set(total.InexactFloat64())
	}

	return &OperationResult{
		Account:    input.Account,
		Asset:      input.Asset,
		Amount:     input.Amount,
		Value:      value,
		Balance:    balance.Amount,
		TotalValue: total,
	}, applied, nil
}

// revertWithdrawal credits back a committed withdrawal whose transfer failed.
// applied is the (non-positive) delta the withdrawal applied to TotalValue.
func (uc *VaultUseCase) revertWithdrawal(ctx context.Context, input WithdrawInput, applied decimal.Decimal) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if _, err := uc.ledger.LockState(txCtx, tx); err != nil {
		return err
	}

	if _, err := uc.ledger.Credit(txCtx, tx, input.Account, input.Asset, input.Amount); err != nil {
		return err
	}

	if _, err := uc.ledger.AdjustTotal(txCtx, tx, applied.Neg()); err != nil {
		return err
	}

	payload := domain.WithdrawnEvent{
		Account: input.Account,
		Asset:   input.Asset,
		Amount:  input.Amount.String(),
		Value:   applied.Neg().String(),
	}
	if err := uc.outboxRepo.Create(txCtx, tx, uc.newEvent(domain.EventTypeWithdrawalReverted, input.Account, input.Asset, payload, time.Now().UTC())); err != nil {
		return err
	}

	if err := tx.Commit(txCtx); err != nil {
		return err
	}

	if uc.metrics != nil {
		uc.metrics.Compensations.WithLabelValues("withdrawal_revert").Inc()
	}

	return nil
}

// ValuationInput represents input for valuing an account's holdings.
type ValuationInput struct {
	Account string
	Assets  []string
}

// HoldingValue is the current value of one holding.
type HoldingValue struct {
	Asset  string
	Amount decimal.Decimal
	Value  decimal.Decimal
}

// Valuation is the current value of a set of holdings.
type Valuation struct {
	Account  string
	Total    decimal.Decimal
	Holdings []HoldingValue
}

// QueryBalanceValue sums the current value of account's balances of the
// listed assets. Zero balances are skipped without a price lookup.
func (uc *VaultUseCase) QueryBalanceValue(ctx context.Context, input ValuationInput) (*Valuation, error) {
	if err := domain.ValidateAccount(input.Account); err != nil {
		return nil, err
	}
	if len(input.Assets) > MaxValuationAssets {
		return nil, fmt.Errorf("%w: at most %d assets per query", domain.ErrInvalidAsset, MaxValuationAssets)
	}

	valuation := &Valuation{Account: input.Account, Total: decimal.Zero}
	seen := make(map[string]bool, len(input.Assets))

	for _, asset := range input.Assets {
		if err := domain.ValidateAsset(asset); err != nil {
			return nil, err
		}
		if seen[asset] {
			continue
		}
		seen[asset] = true

		balance, err := uc.ledger.GetBalance(ctx, input.Account, asset)
		if err != nil {
			return nil, err
		}
		if balance.Amount.IsZero() {
			continue
		}

		value, err := uc.valueOf(ctx, asset, balance.Amount)
		if err != nil {
			return nil, err
		}

		valuation.Holdings = append(valuation.Holdings, HoldingValue{
			Asset:  asset,
			Amount: balance.Amount,
			Value:  value,
		})
		valuation.Total = valuation.Total.Add(value)
	}

	return valuation, nil
}

// GetBalance returns the balance of account in asset.
func (uc *VaultUseCase) GetBalance(ctx context.Context, account, asset string) (*domain.Balance, error) {
	if err := domain.ValidateAccount(account); err != nil {
		return nil, err
	}
	if err := domain.ValidateAsset(asset); err != nil {
		return nil, err
	}
	return uc.ledger.GetBalance(ctx, account, asset)
}

// GetState returns the vault accounting state.
func (uc *VaultUseCase) GetState(ctx context.Context) (*domain.VaultState, error) {
	return uc.ledger.GetState(ctx)
}

// Exclusive runs fn while holding the operation guard.
func (uc *VaultUseCase) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, release, err := uc.guard.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	return fn(ctx)
}

// ValueOf values amount of asset in the common currency at the current price.
func (uc *VaultUseCase) ValueOf(ctx context.Context, asset string, amount decimal.Decimal) (decimal.Decimal, error) {
	return uc.valueOf(ctx, asset, amount)
}

func (uc *VaultUseCase) valueOf(ctx context.Context, asset string, amount decimal.Decimal) (decimal.Decimal, error) {
	if asset == uc.cfg.CommonAsset {
		return amount, nil
	}

	decimals, err := uc.decimalsOf(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}

	quote, err := uc.oracle.GetPrice(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}

	return domain.Convert(amount, decimals, quote.Price, quote.Decimals, uc.cfg.CommonDecimals)
}

func (uc *VaultUseCase) decimalsOf(ctx context.Context, asset string) (int32, error) {
	if asset == domain.NativeAsset {
		return uc.cfg.NativeDecimals, nil
	}

	decimals, err := uc.custodian.Decimals(ctx, asset)
	if err != nil {
		return 0, fmt.Errorf("%w: decimals of %s: %w", domain.ErrInvalidAsset, asset, err)
	}
	if err := domain.ValidateDecimals(decimals); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", domain.ErrInvalidAsset, asset, err)
	}

	return decimals, nil
}

// pull takes custody of a deposit. Native currency arrives with the call
// itself unless the custodian needs to be told about it.
func (uc *VaultUseCase) pull(ctx context.Context, account, asset string, amount decimal.Decimal) (bool, error) {
	if asset != domain.NativeAsset {
		return true, uc.custodian.Pull(ctx, account, asset, amount)
	}

	receiver, ok := uc.custodian.(NativeReceiver)
	if !ok {
		return false, nil
	}

	return true, receiver.ReceiveNative(ctx, account, amount)
}

func (uc *VaultUseCase) push(ctx context.Context, account, asset string, amount decimal.Decimal) error {
	if asset == domain.NativeAsset {
		return uc.custodian.PushNative(ctx, account, amount)
	}
	return uc.custodian.Push(ctx, account, asset, amount)
}

func (uc *VaultUseCase) newEvent(eventType, account, asset string, payload any, now time.Time) *domain.OutboxEvent {
	return &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   domain.BalanceAggregateID(account, asset),
		AggregateType: domain.AggregateTypeBalance,
		EventType:     eventType,
		Payload:       domain.MarshalState(payload),
		CreatedAt:     now,
	}
}

// recordEvent writes an outbox event in its own transaction.
func (uc *VaultUseCase) recordEvent(ctx context.Context, eventType, account, asset string, payload any) error {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := uc.outboxRepo.Create(ctx, tx, uc.newEvent(eventType, account, asset, payload, time.Now().UTC())); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (uc *VaultUseCase) audit(ctx context.Context, tx Transaction, action domain.AuditAction, account, asset string, payload any, now time.Time) error {
	if uc.auditRepo == nil {
		return nil
	}

	return uc.auditRepo.CreateTx(ctx, tx, &domain.AuditLog{
		ID:           uc.idGen.Generate(),
		UserID:       account,
		Action:       string(action),
		ResourceType: domain.AggregateTypeBalance,
		ResourceID:   domain.BalanceAggregateID(account, asset),
		RequestID:    logger.RequestID(ctx),
		AfterState:   domain.MarshalState(payload),
		Status:       string(domain.AuditStatusSuccess),
		CreatedAt:    now,
	})
}

func (uc *VaultUseCase) observe(operation, asset string, start time.Time, err error) {
	if uc.metrics == nil {
		return
	}

	uc.metrics.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		uc.metrics.OperationErrors.WithLabelValues(operation, ErrorType(err)).Inc()
		return
	}
	uc.metrics.Operations.WithLabelValues(operation, asset).Inc()
}

func validateOperation(account, asset string, amount decimal.Decimal) error {
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	if err := domain.ValidateAccount(account); err != nil {
		return err
	}
	return domain.ValidateAsset(asset)
}

// ErrorType returns a stable label for err.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrOverflow):
		return "overflow"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrBankCapExceeded):
		return "bank_cap_exceeded"
	case errors.Is(err, domain.ErrOracleUnavailable):
		return "oracle_unavailable"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, domain.ErrReentrantCall):
		return "reentrant_call"
	case errors.Is(err, domain.ErrInvalidAccount), errors.Is(err, domain.ErrInvalidAsset):
		return "invalid_input"
	default:
		return "internal"
	}
}

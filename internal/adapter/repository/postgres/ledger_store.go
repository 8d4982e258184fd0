package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/usecase"
)

// Amounts travel as text so NUMERIC(78,0) values keep every digit.
const (
	insertStateSQL = `
		INSERT INTO vault_state (id, common_asset, bank_cap, total_value, updated_at)
		VALUES (1, $1, $2::numeric, $3::numeric, $4)
		ON CONFLICT (id) DO NOTHING`

	selectStateSQL = `
		SELECT common_asset, bank_cap::text, total_value::text, updated_at
		FROM vault_state WHERE id = 1`

	lockStateSQL = selectStateSQL + ` FOR UPDATE`

	updateTotalSQL = `
		UPDATE vault_state SET total_value = $1::numeric, updated_at = $2 WHERE id = 1`

	creditSQL = `
		INSERT INTO balances (account, asset, amount, updated_at)
		VALUES ($1, $2, $3::numeric, $4)
		ON CONFLICT (account, asset)
		DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = EXCLUDED.updated_at
		RETURNING amount::text, updated_at`

	debitSQL = `
		UPDATE balances SET amount = amount - $3::numeric, updated_at = $4
		WHERE account = $1 AND asset = $2 AND amount >= $3::numeric
		RETURNING amount::text, updated_at`

	selectBalanceSQL = `
		SELECT amount::text, updated_at FROM balances WHERE account = $1 AND asset = $2`

	assetTotalsSQL = `
		SELECT asset, SUM(amount)::text FROM balances GROUP BY asset`
)

// LedgerStore implements usecase.LedgerStore.
type LedgerStore struct {
	db DBTX
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return newLedgerStoreWithDB(pool)
}

func newLedgerStoreWithDB(db DBTX) *LedgerStore {
	return &LedgerStore{db: db}
}

// InitState inserts the singleton state row unless it exists and returns the
// stored row.
func (s *LedgerStore) InitState(ctx context.Context, tx usecase.Transaction, state *domain.VaultState) (*domain.VaultState, error) {
	q, err := pgxTxOf(tx)
	if err != nil {
		return nil, err
	}

	if _, err := q.Exec(ctx, insertStateSQL,
		state.CommonAsset,
		state.BankCap.String(),
		state.TotalValue.String(),
		state.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to insert vault state: %w", err)
	}

	return scanState(q.QueryRow(ctx, lockStateSQL))
}

// LockState selects the state row FOR UPDATE.
func (s *LedgerStore) LockState(ctx context.Context, tx usecase.Transaction) (*domain.VaultState, error) {
	q, err := pgxTxOf(tx)
	if err != nil {
		return nil, err
	}
	return scanState(q.QueryRow(ctx, lockStateSQL))
}

// Credit adds amount to the balance, creating the row on first deposit.
func (s *LedgerStore) Credit(ctx context.Context, tx usecase.Transaction, account, asset string, amount decimal.Decimal) (*domain.Balance, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	q, err := pgxTxOf(tx)
	if err != nil {
		return nil, err
	}

	balance, err := scanBalance(account, asset,
		q.QueryRow(ctx, creditSQL, account, asset, amount.String(), time.Now().UTC()))
	if err != nil {
		return nil, err
	}

	if err := domain.ValidateUnsigned(balance.Amount); err != nil {
		return nil, err
	}

	return balance, nil
}

// Debit subtracts amount from the balance. The row is only updated when it
// covers amount.
func (s *LedgerStore) Debit(ctx context.Context, tx usecase.Transaction, account, asset string, amount decimal.Decimal) (*domain.Balance, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	q, err := pgxTxOf(tx)
	if err != nil {
		return nil, err
	}

	balance, err := scanBalance(account, asset,
		q.QueryRow(ctx, debitSQL, account, asset, amount.String(), time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInsufficientBalance
		}
		return nil, err
	}

	return balance, nil
}

// AdjustTotal adds delta to total_value, floored at zero.
func (s *LedgerStore) AdjustTotal(ctx context.Context, tx usecase.Transaction, delta decimal.Decimal) (decimal.Decimal, error) {
	q, err := pgxTxOf(tx)
	if err != nil {
		return decimal.Zero, err
	}

	state, err := scanState(q.QueryRow(ctx, lockStateSQL))
	if err != nil {
		return decimal.Zero, err
	}

	total, applied := state.ApplyAdjustment(delta)
	if err := domain.ValidateUnsigned(total); err != nil {
		return decimal.Zero, err
	}

	if _, err := q.Exec(ctx, updateTotalSQL, total.String(), time.Now().UTC()); err != nil {
		return decimal.Zero, fmt.Errorf("failed to update total value: %w", err)
	}

	return applied, nil
}

// GetBalance returns the balance, zero if the account never held asset.
func (s *LedgerStore) GetBalance(ctx context.Context, account, asset string) (*domain.Balance, error) {
	balance, err := scanBalance(account, asset, s.db.QueryRow(ctx, selectBalanceSQL, account, asset))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.Balance{Account: account, Asset: asset, Amount: decimal.Zero}, nil
		}
		return nil, err
	}

	return balance, nil
}

// GetState returns the vault state without locking it.
func (s *LedgerStore) GetState(ctx context.Context) (*domain.VaultState, error) {
	return scanState(s.db.QueryRow(ctx, selectStateSQL))
}

// AssetTotals sums balances per asset.
func (s *LedgerStore) AssetTotals(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := s.db.Query(ctx, assetTotalsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			asset string
			sum   string
		)
		if err := rows.Scan(&asset, &sum); err != nil {
			return nil, err
		}

		total, err := decimal.NewFromString(sum)
		if err != nil {
			return nil, fmt.Errorf("invalid total for %s: %w", asset, err)
		}
		totals[asset] = total
	}

	return totals, rows.Err()
}

func scanState(row pgx.Row) (*domain.VaultState, error) {
	var (
		state             domain.VaultState
		bankCap, totalVal string
	)

	if err := row.Scan(&state.CommonAsset, &bankCap, &totalVal, &state.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrVaultNotReady
		}
		return nil, err
	}

	var err error
	if state.BankCap, err = decimal.NewFromString(bankCap); err != nil {
		return nil, fmt.Errorf("invalid bank cap %q: %w", bankCap, err)
	}
	if state.TotalValue, err = decimal.NewFromString(totalVal); err != nil {
		return nil, fmt.Errorf("invalid total value %q: %w", totalVal, err)
	}

	return &state, nil
}

func scanBalance(account, asset string, row pgx.Row) (*domain.Balance, error) {
	var (
		amount    string
		updatedAt time.Time
	)

	if err := row.Scan(&amount, &updatedAt); err != nil {
		return nil, err
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid balance %q: %w", amount, err)
	}

	return &domain.Balance{Account: account, Asset: asset, Amount: d, UpdatedAt: updatedAt}, nil
}

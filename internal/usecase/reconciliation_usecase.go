package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationUseCase compares the ledger against custody.
type ReconciliationUseCase struct {
	ledger    LedgerStore
	custodian Custodian
	vault     *VaultUseCase
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(ledger LedgerStore, custodian Custodian, vault *VaultUseCase) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		ledger:    ledger,
		custodian: custodian,
		vault:     vault,
	}
}

// AssetReconciliation compares what the ledger owes with what custody holds
// for one asset.
type AssetReconciliation struct {
	Asset    string
	Ledger   decimal.Decimal
	Custody  decimal.Decimal
	// Surplus is custody not owed to any account, recoverable by an admin.
	Surplus decimal.Decimal
	// Shortfall is ledger balance not backed by custody.
	Shortfall decimal.Decimal
	// Value is the current value of Ledger, zero when the price is unavailable.
	Value      decimal.Decimal
	PriceError string
}

// ReconciliationReport represents a full reconciliation report
type ReconciliationReport struct {
	Assets []*AssetReconciliation
	// TotalValue is the historical-cost accumulator.
	TotalValue decimal.Decimal
	// MarketValue is the sum of current values of all ledger balances.
	MarketValue decimal.Decimal
	// Drift is MarketValue - TotalValue.
	Drift      decimal.Decimal
	Consistent bool
	CheckedAt  time.Time
}

// ReconcileAsset compares the ledger total of asset against custody holdings.
func (uc *ReconciliationUseCase) ReconcileAsset(ctx context.Context, asset string, ledgerTotal decimal.Decimal) (*AssetReconciliation, error) {
	holdings, err := uc.custodian.Holdings(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("failed to read custody of %s: %w", asset, err)
	}

	result := &AssetReconciliation{
		Asset:     asset,
		Ledger:    ledgerTotal,
		Custody:   holdings,
		Surplus:   decimal.Zero,
		Shortfall: decimal.Zero,
		Value:     decimal.Zero,
	}

	diff := holdings.Sub(ledgerTotal)
	if diff.IsPositive() {
		result.Surplus = diff
	} else {
		result.Shortfall = diff.Neg()
	}

	return result, nil
}

// GenerateReconciliationReport reconciles every asset held in the ledger and
// revalues the ledger at current prices.
func (uc *ReconciliationUseCase) GenerateReconciliationReport(ctx context.Context) (*ReconciliationReport, error) {
	totals, err := uc.ledger.AssetTotals(ctx)
	if err != nil {
		return nil, err
	}

	state, err := uc.ledger.GetState(ctx)
	if err != nil {
		return nil, err
	}

	assets := make([]string, 0, len(totals))
	for asset := range totals {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	report := &ReconciliationReport{
		Assets:      make([]*AssetReconciliation, 0, len(assets)),
		TotalValue:  state.TotalValue,
		MarketValue: decimal.Zero,
		Consistent:  true,
		CheckedAt:   time.Now().UTC(),
	}

	for _, asset := range assets {
		result, err := uc.ReconcileAsset(ctx, asset, totals[asset])
		if err != nil {
			return nil, err
		}

		if !result.Ledger.IsZero() {
			value, err := uc.vault.ValueOf(ctx, asset, result.Ledger)
			if err != nil {
				result.PriceError = err.Error()
			} else {
				result.Value = value
				report.MarketValue = report.MarketValue.Add(value)
			}
		}

		if result.Shortfall.IsPositive() {
			report.Consistent = false
		}
		report.Assets = append(report.Assets, result)
	}

	report.Drift = report.MarketValue.Sub(report.TotalValue)

	return report, nil
}

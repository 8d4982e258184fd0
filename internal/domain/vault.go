package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// VaultState is the singleton accounting record of the vault.
//
// TotalValue is a historical-cost accumulator: each deposit adds its value at
// deposit-time prices and each withdrawal subtracts its value at
// withdrawal-time prices. It is not a live revaluation of holdings.
type VaultState struct {
	CommonAsset string
	BankCap     decimal.Decimal
	TotalValue  decimal.Decimal
	UpdatedAt   time.Time
}

// ValidateDeposit checks that adding value keeps TotalValue within BankCap.
func (s *VaultState) ValidateDeposit(value decimal.Decimal) error {
	if s.TotalValue.Add(value).GreaterThan(s.BankCap) {
		return ErrBankCapExceeded
	}
	return nil
}

// Headroom returns how much value can still be deposited.
func (s *VaultState) Headroom() decimal.Decimal {
	room := s.BankCap.Sub(s.TotalValue)
	if room.IsNegative() {
		return decimal.Zero
	}
	return room
}

// ApplyAdjustment adds delta to TotalValue, floored at zero, and returns the
// new total together with the delta that was actually applied.
func (s *VaultState) ApplyAdjustment(delta decimal.Decimal) (total, applied decimal.Decimal) {
	total = s.TotalValue.Add(delta)
	if total.IsNegative() {
		return decimal.Zero, s.TotalValue.Neg()
	}
	return total, delta
}

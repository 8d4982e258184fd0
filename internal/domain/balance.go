package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the amount an account holds of one asset, in the asset's smallest unit.
type Balance struct {
	Account   string
	Asset     string
	Amount    decimal.Decimal
	UpdatedAt time.Time
}

// ValidateDebit checks the balance can be decreased by amount.
func (b *Balance) ValidateDebit(amount decimal.Decimal) error {
	if b.Amount.LessThan(amount) {
		return ErrInsufficientBalance
	}
	return nil
}

// ApplyDebit returns the balance after a debit.
func (b *Balance) ApplyDebit(amount decimal.Decimal) decimal.Decimal {
	return b.Amount.Sub(amount)
}

// ApplyCredit returns the balance after a credit.
func (b *Balance) ApplyCredit(amount decimal.Decimal) decimal.Decimal {
	return b.Amount.Add(amount)
}

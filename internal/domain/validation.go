package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidateAmount validates a deposit, withdrawal or recovery amount.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	if err := ValidateUnsigned(amount); err != nil {
		return err
	}

	return nil
}

// ValidateBankCap validates the immutable global cap.
func ValidateBankCap(bankCap decimal.Decimal) error {
	if err := ValidateUnsigned(bankCap); err != nil {
		return fmt.Errorf("%w: bank cap %s: %v", ErrInvalidConfig, bankCap, err)
	}
	return nil
}

// ParseAmount parses a base-10 integer amount in smallest units.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

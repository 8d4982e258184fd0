package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// MaxUint256 is the largest amount or value the vault will hold or compute.
var MaxUint256 = decimal.NewFromBigInt(
	new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)),
	0,
)

// Convert values amount (in units of 10^-sourceDecimals) at price (in units of
// 10^-priceDecimals) and expresses the result in units of 10^-targetDecimals.
//
//	result = floor(amount * price / 10^(sourceDecimals + priceDecimals - targetDecimals))
//
// When the exponent is negative the product is multiplied by
// 10^(targetDecimals - sourceDecimals - priceDecimals) instead. Results that do
// not fit in 256 bits return ErrOverflow.
func Convert(amount decimal.Decimal, sourceDecimals int32, price decimal.Decimal, priceDecimals int32, targetDecimals int32) (decimal.Decimal, error) {
	if err := ValidateUnsigned(amount); err != nil {
		return decimal.Zero, err
	}
	if err := ValidateUnsigned(price); err != nil {
		return decimal.Zero, fmt.Errorf("price: %w", err)
	}
	if sourceDecimals < 0 || priceDecimals < 0 || targetDecimals < 0 {
		return decimal.Zero, fmt.Errorf("%w: negative decimals", ErrInvalidAmount)
	}

	product := amount.Mul(price)
	if product.GreaterThan(MaxUint256) {
		return decimal.Zero, ErrOverflow
	}

	scale := int64(sourceDecimals) + int64(priceDecimals) - int64(targetDecimals)
	if scale >= 0 {
		q, _ := product.QuoRem(Pow10(scale), 0)
		return q, nil
	}

	result := product.Mul(Pow10(-scale))
	if result.GreaterThan(MaxUint256) {
		return decimal.Zero, ErrOverflow
	}

	return result, nil
}

// Pow10 returns 10^exp for a non-negative exp.
func Pow10(exp int64) decimal.Decimal {
	return decimal.New(1, int32(exp))
}

// ValidateUnsigned checks that d is a non-negative integer within 256 bits.
func ValidateUnsigned(d decimal.Decimal) error {
	if d.IsNegative() || !d.IsInteger() {
		return ErrInvalidAmount
	}
	if d.GreaterThan(MaxUint256) {
		return ErrOverflow
	}
	return nil
}

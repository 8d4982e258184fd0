package domain

import (
	"fmt"
	"strings"
)

// NativeAsset is the distinguished identifier of the native currency.
const NativeAsset = "native"

// DefaultNativeDecimals is the smallest-unit granularity of the native currency.
const DefaultNativeDecimals int32 = 18

// MaxDecimals bounds the unit granularity accepted for any asset or price.
const MaxDecimals int32 = 77

// Asset describes a custodied asset.
// This is identity metadata only, quantities live in Balance.
type Asset struct {
	ID       string
	Decimals int32
}

// IsNative reports whether the asset is the native currency.
func (a Asset) IsNative() bool {
	return a.ID == NativeAsset
}

// ValidateAsset checks an opaque asset identifier.
func ValidateAsset(asset string) error {
	if strings.TrimSpace(asset) == "" {
		return fmt.Errorf("%w: asset cannot be empty", ErrInvalidAsset)
	}
	if len(asset) > MaxIdentifierLength {
		return fmt.Errorf("%w: asset exceeds %d characters", ErrInvalidAsset, MaxIdentifierLength)
	}
	return nil
}

// ValidateDecimals checks a unit granularity reported by an asset or a feed.
func ValidateDecimals(decimals int32) error {
	if decimals < 0 || decimals > MaxDecimals {
		return fmt.Errorf("%w: decimals %d out of range", ErrInvalidAmount, decimals)
	}
	return nil
}

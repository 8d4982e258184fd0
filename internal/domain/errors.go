package domain

import "errors"

var (
	// Amount errors
	ErrInvalidAmount = errors.New("amount must be a positive integer")
	ErrOverflow      = errors.New("amount exceeds 256-bit range")

	// Ledger errors
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBankCapExceeded     = errors.New("deposit would exceed bank cap")
	ErrInvalidAccount      = errors.New("invalid account identifier")
	ErrInvalidAsset        = errors.New("invalid asset identifier")

	// Oracle errors
	ErrOracleUnavailable = errors.New("price oracle unavailable")
	ErrFeedNotFound      = errors.New("price feed not registered")
	ErrInvalidFeed       = errors.New("invalid price feed")

	// Custody errors
	ErrTransferFailed = errors.New("custody transfer failed")

	// Engine errors
	ErrReentrantCall = errors.New("re-entrant call into vault")
	ErrInvalidConfig = errors.New("invalid vault configuration")
	ErrVaultNotReady = errors.New("vault state not initialized")
)

// Authentication errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

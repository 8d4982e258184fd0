package domain

import (
	"fmt"
	"strings"
)

// MaxIdentifierLength bounds account and asset identifiers.
const MaxIdentifierLength = 128

// ValidateAccount checks an opaque account identifier.
func ValidateAccount(account string) error {
	if strings.TrimSpace(account) == "" {
		return fmt.Errorf("%w: account cannot be empty", ErrInvalidAccount)
	}
	if len(account) > MaxIdentifierLength {
		return fmt.Errorf("%w: account exceeds %d characters", ErrInvalidAccount, MaxIdentifierLength)
	}
	return nil
}

package domain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateAmount(t *testing.T) {
	t.Parallel()

	if err := ValidateAmount(decimal.NewFromInt(1)); err != nil {
		t.Fatalf("expected valid amount, got %v", err)
	}

	if err := ValidateAmount(decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}

	if err := ValidateAmount(decimal.NewFromInt(-5)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}

	if err := ValidateAmount(decimal.RequireFromString("0.5")); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for fractional amount, got %v", err)
	}

	if err := ValidateAmount(MaxUint256.Add(decimal.NewFromInt(1))); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	d, err := ParseAmount("1000000000000000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "1000000000000000000" {
		t.Fatalf("unexpected amount %s", d)
	}

	if _, err := ParseAmount("ten"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestValidateIdentifiers(t *testing.T) {
	t.Parallel()

	if err := ValidateAccount("0xabc"); err != nil {
		t.Fatalf("expected valid account, got %v", err)
	}
	if err := ValidateAccount("  "); !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("expected ErrInvalidAccount, got %v", err)
	}
	if err := ValidateAsset(strings.Repeat("a", MaxIdentifierLength+1)); !errors.Is(err, ErrInvalidAsset) {
		t.Fatalf("expected ErrInvalidAsset, got %v", err)
	}
}

func TestValidateBankCap(t *testing.T) {
	t.Parallel()

	if err := ValidateBankCap(decimal.Zero); err != nil {
		t.Fatalf("zero cap is valid, got %v", err)
	}
	if err := ValidateBankCap(decimal.NewFromInt(-1)); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestUserContext(t *testing.T) {
	t.Parallel()

	if _, ok := UserFromContext(context.Background()); ok {
		t.Fatal("expected no user in empty context")
	}

	ctx := WithUser(context.Background(), &User{ID: "acc-1", Role: RoleAdmin})
	user, ok := UserFromContext(ctx)
	if !ok || user.ID != "acc-1" || !user.Role.CanAdminister() {
		t.Fatalf("unexpected user %+v", user)
	}

	if RoleDepositor.CanAdminister() {
		t.Fatal("depositor must not administer")
	}
	if Role("root").IsValid() {
		t.Fatal("unknown role must be invalid")
	}
}

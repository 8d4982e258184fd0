package domain

import "context"

// User is an authenticated principal. Its ID doubles as the vault account.
type User struct {
	ID   string
	Role Role
}

// Role represents a user's access level
type Role string

const (
	// RoleAdmin may manage price feeds and recover custody
	RoleAdmin Role = "admin"

	// RoleDepositor may deposit, withdraw and query its own balances
	RoleDepositor Role = "depositor"
)

var validRoles = map[Role]bool{
	RoleAdmin:     true,
	RoleDepositor: true,
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	return validRoles[r]
}

// CanAdminister checks if the role holds the administrator capability
func (r Role) CanAdminister() bool {
	return r == RoleAdmin
}

type userContextKey struct{}

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext extracts the authenticated user from ctx.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*User)
	return user, ok && user != nil
}

package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/infrastructure/auth"
	"github.com/iho/govault/internal/infrastructure/metrics"
)

const (
	// AccountIDHeader identifies the caller when authentication is disabled.
	AccountIDHeader = "X-Account-ID"
	// AccountRoleHeader selects the caller's role when authentication is disabled.
	AccountRoleHeader = "X-Account-Role"
)

// Authenticator resolves the caller of a request and stores it in the
// request context with domain.WithUser.
type Authenticator struct {
	jwtManager *auth.JWTManager
	metrics    *metrics.Metrics
}

// NewAuthenticator creates an Authenticator. A nil jwtManager switches to
// development mode, where the caller is taken from the X-Account-ID header.
func NewAuthenticator(jwtManager *auth.JWTManager, m *metrics.Metrics) *Authenticator {
	return &Authenticator{jwtManager: jwtManager, metrics: m}
}

// Wrap rejects requests without a valid principal.
func (a *Authenticator) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, reason := a.authenticate(r)
		if user == nil {
			if a.metrics != nil {
				a.metrics.AuthFailures.WithLabelValues(reason).Inc()
			}
			writeError(w, http.StatusUnauthorized, "unauthorized", reason)
			return
		}

		next.ServeHTTP(w, r.WithContext(domain.WithUser(r.Context(), user)))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (*domain.User, string) {
	if a.jwtManager == nil {
		return headerUser(r)
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, "missing_token"
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return nil, "malformed_header"
	}

	claims, err := a.jwtManager.Verify(token)
	if err != nil {
		if errors.Is(err, domain.ErrExpiredToken) {
			return nil, "expired_token"
		}
		return nil, "invalid_token"
	}

	return claims.User(), ""
}

func headerUser(r *http.Request) (*domain.User, string) {
	id := r.Header.Get(AccountIDHeader)
	if domain.ValidateAccount(id) != nil {
		return nil, "missing_account"
	}

	role := domain.Role(r.Header.Get(AccountRoleHeader))
	if role == "" {
		role = domain.RoleDepositor
	}
	if !role.IsValid() {
		return nil, "invalid_role"
	}

	return &domain.User{ID: id, Role: role}, ""
}

// RequireAdmin rejects callers without the administrator capability.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := domain.UserFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		if !user.Role.CanAdminister() {
			writeError(w, http.StatusForbidden, "insufficient permissions", "")
			return
		}

		next.ServeHTTP(w, r)
	})
}

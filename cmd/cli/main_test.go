package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/govault/internal/adapter/http/middleware"
	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/infrastructure/auth"
)

type recordedRequest struct {
	method  string
	path    string
	header  http.Header
	body    map[string]any
	rawBody string
}

func newAPIServer(t *testing.T, status int, response string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()

	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		rec := recordedRequest{method: r.Method, path: r.URL.RequestURI(), header: r.Header.Clone(), rawBody: string(raw)}
		if len(raw) > 0 {
			assert.NoError(t, json.Unmarshal(raw, &rec.body))
		}
		requests = append(requests, rec)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	return srv, &requests
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestPrintJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printJSON(&out, []byte(`{"a":1}`)))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", out.String())

	out.Reset()
	require.NoError(t, printJSON(&out, nil))
	assert.Equal(t, "OK\n", out.String())
}

func TestDepositCmd(t *testing.T) {
	srv, requests := newAPIServer(t, http.StatusCreated, `{"account":"alice","asset":"usdc","amount":"5"}`)

	out, err := execute(t, "--url", srv.URL, "--account", "alice", "deposit", "usdc", "5", "--idempotency-key", "k1")
	require.NoError(t, err)
	assert.Contains(t, out, `"account": "alice"`)

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/api/v1/vault/deposits", req.path)
	assert.Equal(t, "alice", req.header.Get(middleware.AccountIDHeader))
	assert.Equal(t, "k1", req.header.Get(middleware.IdempotencyKeyHeader))
	assert.Equal(t, map[string]any{"asset": "usdc", "amount": "5"}, req.body)
}

func TestDepositNativeCmd(t *testing.T) {
	srv, requests := newAPIServer(t, http.StatusCreated, `{}`)

	_, err := execute(t, "--url", srv.URL, "--token", "tok", "deposit", domain.NativeAsset, "1000")
	require.NoError(t, err)

	req := (*requests)[0]
	assert.Equal(t, "/api/v1/vault/deposits/native", req.path)
	assert.Equal(t, "Bearer tok", req.header.Get("Authorization"))
	assert.NotEmpty(t, req.header.Get(middleware.IdempotencyKeyHeader))
	assert.Equal(t, map[string]any{"amount": "1000"}, req.body)
}

func TestDepositRejectsInvalidAmount(t *testing.T) {
	_, err := execute(t, "--url", "http://127.0.0.1:0", "deposit", "usdc", "0")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestWithdrawReportsAPIError(t *testing.T) {
	srv, _ := newAPIServer(t, http.StatusUnprocessableEntity, `{"error":"failed to withdraw","message":"insufficient balance"}`)

	_, err := execute(t, "--url", srv.URL, "--account", "alice", "withdraw", "usdc", "5")
	require.Error(t, err)

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Contains(t, err.Error(), "insufficient balance")
}

func TestReconcileCmd(t *testing.T) {
	srv, _ := newAPIServer(t, http.StatusOK, `{"consistent":true,"assets":[]}`)
	out, err := execute(t, "--url", srv.URL, "--account", "ops", "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "Reconciliation PASSED")

	srv, _ = newAPIServer(t, http.StatusOK, `{"consistent":false,"assets":[]}`)
	_, err = execute(t, "--url", srv.URL, "--account", "ops", "reconcile")
	assert.ErrorContains(t, err, "FAILED")
}

func TestAdminFeedCmd(t *testing.T) {
	srv, requests := newAPIServer(t, http.StatusOK, `{}`)

	_, err := execute(t, "--url", srv.URL, "--account", "root", "--role", "admin",
		"admin", "feed", "weth", "--kind", "http", "--endpoint", "https://prices/weth", "--max-age", "2m")
	require.NoError(t, err)

	req := (*requests)[0]
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/api/v1/admin/feeds/weth", req.path)
	assert.Equal(t, "admin", req.header.Get(middleware.AccountRoleHeader))
	assert.Empty(t, req.header.Get(middleware.IdempotencyKeyHeader))
	assert.Equal(t, "http", req.body["kind"])
	assert.Equal(t, float64(120), req.body["max_age_seconds"])
}

func TestAdminRecoverNativeCmd(t *testing.T) {
	srv, requests := newAPIServer(t, http.StatusNoContent, ``)

	out, err := execute(t, "--url", srv.URL, "admin", "recover", domain.NativeAsset, "treasury", "7")
	require.NoError(t, err)
	assert.Equal(t, "OK\n", out)

	req := (*requests)[0]
	assert.Equal(t, "/api/v1/admin/recover/native", req.path)
	assert.Equal(t, map[string]any{"to": "treasury", "amount": "7"}, req.body)
}

func TestAdminAuditCmd(t *testing.T) {
	srv, requests := newAPIServer(t, http.StatusOK, `[]`)

	_, err := execute(t, "--url", srv.URL, "admin", "audit", "--user", "alice", "--limit", "5")
	require.NoError(t, err)

	path := (*requests)[0].path
	assert.True(t, strings.HasPrefix(path, "/api/v1/admin/audit?"))
	assert.Contains(t, path, "user_id=alice")
	assert.Contains(t, path, "limit=5")
}

func TestTokenCmd(t *testing.T) {
	out, err := execute(t, "token", "alice", "--secret", "s3cret", "--role", "admin", "--ttl", "1h")
	require.NoError(t, err)

	claims, err := auth.NewJWTManager("s3cret", time.Hour).Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
}

func TestTokenCmdRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := execute(t, "token", "alice")
	assert.ErrorContains(t, err, "secret")
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := execute(t, "migrate", "up")
	assert.ErrorContains(t, err, "DATABASE_URL")
}

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/govault/internal/domain"
	"github.com/iho/govault/internal/infrastructure/auth"
	"github.com/iho/govault/internal/infrastructure/logger"
	"github.com/iho/govault/internal/infrastructure/postgres"
)

type rootOptions struct {
	baseURL string
	timeout time.Duration
	token   string
	account string
	role    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "govault-cli",
		Short:         "govault CLI tool",
		Long:          `A command line interface for interacting with the govault API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", "http://localhost:8080", "Base URL of the govault API")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("GOVAULT_TOKEN"), "Bearer token")
	rootCmd.PersistentFlags().StringVar(&opts.account, "account", "", "Caller account when authentication is disabled")
	rootCmd.PersistentFlags().StringVar(&opts.role, "role", "", "Caller role when authentication is disabled")

	rootCmd.AddCommand(
		depositCmd(opts),
		withdrawCmd(opts),
		balanceCmd(opts),
		valueCmd(opts),
		stateCmd(opts),
		reconcileCmd(opts),
		adminCmd(opts),
		migrateCmd(),
		tokenCmd(opts),
	)

	return rootCmd
}

func depositCmd(opts *rootOptions) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "deposit <asset> <amount>",
		Short: "Deposit an asset, or native currency with asset \"native\"",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := domain.ParseAmount(args[1])
			if err != nil {
				return err
			}

			path := "/api/v1/vault/deposits"
			body := map[string]any{"asset": args[0], "amount": amount}
			if args[0] == domain.NativeAsset {
				path = "/api/v1/vault/deposits/native"
				body = map[string]any{"amount": amount}
			}

			return post(cmd, opts, path, body, key)
		},
	}
	cmd.Flags().StringVar(&key, "idempotency-key", "", "Idempotency key (generated when empty)")

	return cmd
}

func withdrawCmd(opts *rootOptions) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "withdraw <asset> <amount>",
		Short: "Withdraw an asset or native currency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := domain.ParseAmount(args[1])
			if err != nil {
				return err
			}

			return post(cmd, opts, "/api/v1/vault/withdrawals", map[string]any{"asset": args[0], "amount": amount}, key)
		},
	}
	cmd.Flags().StringVar(&key, "idempotency-key", "", "Idempotency key (generated when empty)")

	return cmd
}

func balanceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <asset>",
		Short: "Show the caller's balance of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return get(cmd, opts, "/api/v1/vault/balances/"+url.PathEscape(args[0]))
		},
	}
}

func valueCmd(opts *rootOptions) *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "value <asset>...",
		Short: "Value holdings in the common currency",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return post(cmd, opts, "/api/v1/vault/value", map[string]any{"account": account, "assets": args}, "-")
		},
	}
	cmd.Flags().StringVar(&account, "of", "", "Account to value (defaults to the caller)")

	return cmd
}

func stateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show total value and bank cap",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return get(cmd, opts, "/api/v1/vault/state")
		},
	}
}

func reconcileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Compare ledger balances with custody holdings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(opts.timeout)
			defer cancel()

			data, err := newAPIClient(opts).do(ctx, http.MethodGet, "/api/v1/vault/reconciliation", nil, "")
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), data); err != nil {
				return err
			}

			var report struct {
				Consistent bool `json:"consistent"`
			}
			if err := json.Unmarshal(data, &report); err != nil {
				return err
			}
			if !report.Consistent {
				return fmt.Errorf("reconciliation FAILED: custody does not cover ledger balances")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Reconciliation PASSED")
			return nil
		},
	}
}

func adminCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrator operations",
	}

	cmd.AddCommand(feedCmd(opts), feedsCmd(opts), recoverCmd(opts), auditCmd(opts))

	return cmd
}

func feedCmd(opts *rootOptions) *cobra.Command {
	var (
		kind     string
		endpoint string
		price    string
		decimals int32
		maxAge   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "feed <asset>",
		Short: "Register or replace the price feed of an asset (\"native\" for the native currency)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"kind":            kind,
				"endpoint":        endpoint,
				"decimals":        decimals,
				"max_age_seconds": int64(maxAge / time.Second),
			}
			if price != "" {
				p, err := decimal.NewFromString(price)
				if err != nil {
					return fmt.Errorf("invalid price: %w", err)
				}
				body["price"] = p
			}

			return send(cmd, opts, http.MethodPut, "/api/v1/admin/feeds/"+url.PathEscape(args[0]), body, "-")
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(domain.FeedKindStatic), "Feed kind: static, http, redis or websocket")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Feed endpoint (URL or redis key)")
	cmd.Flags().StringVar(&price, "price", "", "Fixed price for static feeds")
	cmd.Flags().Int32Var(&decimals, "decimals", 8, "Price decimals for static feeds")
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Maximum quote age (0 uses the server default)")

	return cmd
}

func feedsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "feeds",
		Short: "List registered price feeds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return get(cmd, opts, "/api/v1/admin/feeds")
		},
	}
}

func recoverCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recover <asset> <to> <amount>",
		Short: "Send custody held outside the ledger to a recipient",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := domain.ParseAmount(args[2])
			if err != nil {
				return err
			}

			if args[0] == domain.NativeAsset {
				return post(cmd, opts, "/api/v1/admin/recover/native", map[string]any{"to": args[1], "amount": amount}, "")
			}
			return post(cmd, opts, "/api/v1/admin/recover", map[string]any{"asset": args[0], "to": args[1], "amount": amount}, "")
		},
	}
}

func auditCmd(opts *rootOptions) *cobra.Command {
	var (
		userID string
		action string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List audit log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if userID != "" {
				q.Set("user_id", userID)
			}
			if action != "" {
				q.Set("action", action)
			}
			q.Set("limit", strconv.Itoa(limit))
			q.Set("offset", strconv.Itoa(offset))

			return get(cmd, opts, "/api/v1/admin/audit?"+q.Encode())
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Filter by user ID")
	cmd.Flags().StringVar(&action, "action", "", "Filter by action")
	cmd.Flags().IntVar(&limit, "limit", 50, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")

	return cmd
}

func migrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")

	run := func(fn func(string, zerolog.Logger) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			return fn(databaseURL, logger.NewWithWriter(cmd.ErrOrStderr(), logger.Config{Format: "console"}))
		}
	}

	cmd.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply all pending migrations", Args: cobra.NoArgs, RunE: run(postgres.RunMigrations)},
		&cobra.Command{Use: "down", Short: "Roll back the last migration", Args: cobra.NoArgs, RunE: run(postgres.RunMigrationsDown)},
	)

	return cmd
}

func tokenCmd(opts *rootOptions) *cobra.Command {
	var (
		secret string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <account>",
		Short: "Mint a bearer token for an account; --role selects the role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret or JWT_SECRET is required")
			}
			role := opts.role
			if role == "" {
				role = string(domain.RoleDepositor)
			}

			token, err := auth.NewJWTManager(secret, ttl).Generate(&domain.User{ID: args[0], Role: domain.Role(role)})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "Signing secret")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	return cmd
}

func get(cmd *cobra.Command, opts *rootOptions, path string) error {
	return send(cmd, opts, http.MethodGet, path, nil, "")
}

// post sends a mutating request. An empty key is replaced with a fresh ULID;
// "-" sends none.
func post(cmd *cobra.Command, opts *rootOptions, path string, body any, key string) error {
	if key == "" {
		key = ulid.Make().String()
	}
	return send(cmd, opts, http.MethodPost, path, body, key)
}

func send(cmd *cobra.Command, opts *rootOptions, method, path string, body any, key string) error {
	if key == "-" {
		key = ""
	}

	ctx, cancel := requestContext(opts.timeout)
	defer cancel()

	data, err := newAPIClient(opts).do(ctx, method, path, body, key)
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), data)
}

// Package main is the entrypoint for the Subkey operator CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/subrite/subkey/internal/db"
	"github.com/subrite/subkey/internal/licensekey"
	"github.com/subrite/subkey/internal/webhooks"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "subkey-admin",
		Short: "Subkey operator CLI",
		Long: `Subkey Admin is the operator tool for the Subkey licensing backend.

Key commands (keygen, verify, webhook-sign) only need the relevant secret
in the environment. Ledger commands (inspect, revoke) connect to the
database via DATABASE_URL.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newKeygenCmd(),
		newVerifyCmd(),
		newInspectCmd(),
		newRevokeCmd(),
		newWebhookSignCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Subkey Admin %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// licenseSecret reads LICENSE_SECRET_KEY or fails.
func licenseSecret() ([]byte, error) {
	secret := os.Getenv("LICENSE_SECRET_KEY")
	if secret == "" {
		return nil, fmt.Errorf("LICENSE_SECRET_KEY environment variable is required")
	}
	return []byte(secret), nil
}

func newKeygenCmd() *cobra.Command {
	var (
		transactionID string
		email         string
		timestampMs   int64
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signed license key",
		Long: `Generate a signed license key for a transaction, outside the webhook flow.

Useful for manual fulfillment (purchase orders, support replacements). The
key is signed with LICENSE_SECRET_KEY and validates like any webhook-issued
key, but is NOT inserted into the ledger; create the ledger row separately.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := licenseSecret()
			if err != nil {
				return err
			}
			if timestampMs == 0 {
				timestampMs = time.Now().UnixMilli()
			}

			codec := licensekey.NewCodec(secret)
			key := codec.Generate(transactionID, email, timestampMs)
			fmt.Println(key)
			return nil
		},
	}

	cmd.Flags().StringVar(&transactionID, "transaction", "", "Provider transaction id (required)")
	cmd.Flags().StringVar(&email, "email", "", "Buyer email (required)")
	cmd.Flags().Int64Var(&timestampMs, "timestamp-ms", 0, "Issue timestamp in unix milliseconds (default: now)")
	_ = cmd.MarkFlagRequired("transaction")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newVerifyCmd() *cobra.Command {
	var (
		transactionID string
		email         string
		timestampMs   int64
	)

	cmd := &cobra.Command{
		Use:   "verify <license-key>",
		Short: "Check a license key's structure and signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			if !licensekey.IsWellFormed(key) {
				return fmt.Errorf("key is not well formed")
			}
			fmt.Println("structure: ok")

			if transactionID == "" {
				return nil
			}

			secret, err := licenseSecret()
			if err != nil {
				return err
			}
			codec := licensekey.NewCodec(secret)
			if !codec.Verify(key, transactionID, email, timestampMs) {
				return fmt.Errorf("signature: MISMATCH")
			}
			fmt.Println("signature: ok")
			return nil
		},
	}

	cmd.Flags().StringVar(&transactionID, "transaction", "", "Transaction id to verify the signature against")
	cmd.Flags().StringVar(&email, "email", "", "Buyer email used at issue time")
	cmd.Flags().Int64Var(&timestampMs, "timestamp-ms", 0, "Issue timestamp in unix milliseconds")

	return cmd
}

// connectDB opens a small pool for one-shot CLI commands.
func connectDB(ctx context.Context) (*db.DB, error) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg := db.DefaultConfig(url)
	cfg.MaxConns = 2
	cfg.MinConns = 1

	return db.New(ctx, cfg, logger)
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <license-key>",
		Short: "Show a license and its active devices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			database, err := connectDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			lic, err := database.GetLicenseByKey(ctx, args[0])
			if err != nil {
				return err
			}
			if lic == nil {
				return fmt.Errorf("license not found")
			}

			devices, err := database.ListActiveDevices(ctx, lic.ID)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(map[string]any{
				"license": lic,
				"devices": devices,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func newRevokeCmd() *cobra.Command {
	var refunded bool

	cmd := &cobra.Command{
		Use:   "revoke <license-key>",
		Short: "Revoke a license",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one license key")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			database, err := connectDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			status := db.LicenseStatusRevoked
			if refunded {
				status = db.LicenseStatusRefunded
			}

			if err := database.RevokeLicense(ctx, args[0], status); err != nil {
				return err
			}
			fmt.Printf("license marked %s\n", status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&refunded, "refunded", false, "Mark the license refunded instead of revoked")

	return cmd
}

func newWebhookSignCmd() *cobra.Command {
	var payloadPath string

	cmd := &cobra.Command{
		Use:   "webhook-sign",
		Short: "Sign a webhook payload for testing",
		Long: `Sign a webhook payload with PADDLE_WEBHOOK_SECRET and print the
signature header value. Reads the payload from --payload or stdin.

Example:
  subkey-admin webhook-sign --payload event.json | \
    xargs -I{} curl -H 'Paddle-Signature: {}' -d @event.json \
    http://localhost:8080/api/v1/webhooks/paddle`,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("PADDLE_WEBHOOK_SECRET")
			if secret == "" {
				return fmt.Errorf("PADDLE_WEBHOOK_SECRET environment variable is required")
			}

			var body []byte
			var err error
			if payloadPath != "" {
				body, err = os.ReadFile(payloadPath)
			} else {
				body, err = io.ReadAll(os.Stdin)
			}
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}

			fmt.Println(webhooks.Sign([]byte(secret), body, time.Now()))
			return nil
		},
	}

	cmd.Flags().StringVar(&payloadPath, "payload", "", "Path to the payload file (default: stdin)")

	return cmd
}

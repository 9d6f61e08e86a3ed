package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxshare/internal/account"
	"github.com/teemow/inboxshare/internal/visibility"
)

// operatorActor names the CLI in tier-change audit events.
const operatorActor = "cli"

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect accounts and change their visibility tier",
		Long: `Operator tooling that runs directly against the configured account store.

Tier changes go through the same administration path as the HTTP admin
routes and are audited with the actor "cli".`,
	}

	cmd.AddCommand(newAccountsListCmd())
	cmd.AddCommand(newAccountsTierCmd("lock", "Make an account premium: only its owner and admins may read it", account.TierPremium))
	cmd.AddCommand(newAccountsTierCmd("unlock", "Make an account public: anyone may read it", account.TierPublic))

	return cmd
}

func newAccountsListCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every account, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "table" && output != "json" {
				return fmt.Errorf("unsupported output format %q (supported: table, json)", output)
			}
			return withComponents(cmd, func(ctx context.Context, c *components) error {
				list, err := c.engine.All(ctx)
				if err != nil {
					return err
				}
				if output == "json" {
					return writeAccountsJSON(cmd.OutOrStdout(), list)
				}
				return writeAccountsTable(cmd.OutOrStdout(), list)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")

	return cmd
}

func newAccountsTierCmd(use, short string, tier account.Tier) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <email>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *components) error {
				change, err := c.visibility.SetTier(ctx, operatorActor, args[0], tier)
				if err != nil {
					return err
				}
				printChange(cmd.OutOrStdout(), change)
				return nil
			})
		},
	}
}

// withComponents loads the configuration, opens the store and runs fn.
// Logs go to stderr so command output stays parseable.
func withComponents(cmd *cobra.Command, fn func(context.Context, *components) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	t, err := newTelemetry(ctx, logger)
	if err != nil {
		return err
	}
	defer t.shutdown(context.Background(), logger)

	c, err := buildComponents(cfg, logger, t)
	if err != nil {
		return err
	}
	defer c.close(logger)

	return fn(ctx, c)
}

func writeAccountsTable(w io.Writer, list []account.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tTIER\tCREATED\tLAST ACCESSED")
	for _, a := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Email, a.Tier, formatTime(a.CreatedAt), formatTime(a.LastAccessedAt))
	}
	return tw.Flush()
}

type accountJSON struct {
	Email        string    `json:"email"`
	IsPremium    bool      `json:"isPremium"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
}

func writeAccountsJSON(w io.Writer, list []account.Summary) error {
	out := make([]accountJSON, 0, len(list))
	for _, a := range list {
		out = append(out, accountJSON{
			Email:        a.Email,
			IsPremium:    a.Tier.IsPremium(),
			CreatedAt:    a.CreatedAt,
			LastAccessed: a.LastAccessedAt,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printChange(w io.Writer, change visibility.Change) {
	if !change.Changed() {
		fmt.Fprintf(w, "%s is already %s\n", change.Account.Email, change.Account.Tier)
		return
	}
	fmt.Fprintf(w, "%s: %s -> %s\n", change.Account.Email, change.Previous, change.Account.Tier)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

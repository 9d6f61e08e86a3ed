package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxshare/internal/access"
	"github.com/teemow/inboxshare/internal/account"
	"github.com/teemow/inboxshare/internal/config"
	"github.com/teemow/inboxshare/internal/logging"
	"github.com/teemow/inboxshare/internal/resources"
	"github.com/teemow/inboxshare/internal/server"
	"github.com/teemow/inboxshare/internal/tools/mailbox_tools"
)

func newMCPCmd() *cobra.Command {
	var (
		as      string
		asAdmin bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run an MCP stdio server",
		Long: `Run a Model Context Protocol server on standard input/output.

Every tool call is evaluated as the identity given with --as and --admin,
against the same visibility policy as the HTTP service. The operator is
trusted to assert that identity. Admin identities additionally get the
lock and unlock tools.

Delegated Gmail calls refresh stored credentials, so GOOGLE_CLIENT_ID and
GOOGLE_CLIENT_SECRET must match the client that provisioned them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := validateMCP(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			// stdout carries the protocol.
			logger, err := newLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}

			id := access.Identity{UserEmail: account.NormalizeEmail(as), IsAdmin: asAdmin}
			return runMCP(cmd.Context(), cfg, logger, id)
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "Email address the tools act as. Empty acts as an anonymous caller.")
	cmd.Flags().BoolVar(&asAdmin, "admin", false, "Act with admin privileges and register the lock and unlock tools")

	return cmd
}

func validateMCP(cfg config.Config) error {
	errs := []error{cfg.Validate()}
	if cfg.Google.ClientID == "" || cfg.Google.ClientSecret == "" {
		errs = append(errs, fmt.Errorf("google client id and secret are required (set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET)"))
	}
	return errors.Join(errs...)
}

func runMCP(parent context.Context, cfg config.Config, logger *slog.Logger, id access.Identity) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

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

	serverContext := server.NewServerContext(ctx, c.mailbox, c.visibility, id)
	serverContext.SetMetrics(t.metrics)
	serverContext.SetAuditLogger(t.audit)
	defer func() {
		_ = serverContext.Shutdown()
	}()

	mcpSrv := mcpserver.NewMCPServer("inboxshare", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)
	if err := mailbox_tools.RegisterMailboxTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register mailbox tools: %w", err)
	}
	if err := resources.RegisterUserResources(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register resources: %w", err)
	}

	logger.Info("starting MCP stdio server",
		logging.UserHash(id.UserEmail),
		slog.Bool("admin", id.IsAdmin))

	return runStdioServer(mcpSrv)
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

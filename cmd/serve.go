package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxshare/internal/config"
	"github.com/teemow/inboxshare/internal/logging"
	"github.com/teemow/inboxshare/internal/server"
	"github.com/teemow/inboxshare/internal/session"
)

// startupTimeout bounds how long serve waits for a listener to bind.
const startupTimeout = 5 * time.Second

// serveFlags are the serve overrides. Each is applied only when set on the
// command line.
type serveFlags struct {
	addr              string
	baseURL           string
	postLoginRedirect string
	storeType         string
	storePath         string
	metricsEnabled    bool
	metricsAddr       string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Run the inboxshare HTTP service.

Google sign-in provisions the signed-in account and binds it to the
session. Mailboxes are read through /inbox/{email} and /email/{email}/{id}
according to each account's visibility tier. Admins log in with the
password whose bcrypt hash is configured as admin.password_hash.

Required settings:
  SESSION_SECRET        at least 32 bytes
  GOOGLE_CLIENT_ID      OAuth client registration
  GOOGLE_CLIENT_SECRET

Health probes are served on the main listener, Prometheus metrics on
--metrics-addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cmd, &cfg)
			if err := cfg.ValidateServe(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, err := newLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, logger)
		},
	}

	flags.register(cmd)

	return cmd
}

func (f *serveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.addr, "addr", ":3000", "HTTP listen address. Can also use INBOXSHARE_ADDR env var.")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "Public base URL used for the OAuth redirect. Can also use BASE_URL env var. Example: https://inbox.example.com")
	cmd.Flags().StringVar(&f.postLoginRedirect, "post-login-redirect", "/", "Where the OAuth callback sends the browser. Can also use POST_LOGIN_REDIRECT env var.")
	cmd.Flags().StringVar(&f.storeType, "store-type", "memory", "Account store: memory, bolt, sqlite or valkey. Can also use STORE_TYPE env var.")
	cmd.Flags().StringVar(&f.storePath, "store-path", "", "Database file for the bolt and sqlite stores. Can also use STORE_PATH env var.")
	cmd.Flags().BoolVar(&f.metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")
}

func (f serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("addr") {
		cfg.Server.Addr = f.addr
	}
	if changed("base-url") {
		cfg.Server.BaseURL = f.baseURL
	}
	if changed("post-login-redirect") {
		cfg.Server.PostLoginRedirect = f.postLoginRedirect
	}
	if changed("store-type") {
		cfg.Store.Type = f.storeType
	}
	if changed("store-path") {
		cfg.Store.Path = f.storePath
	}
	if changed("metrics-enabled") {
		cfg.Metrics.Enabled = f.metricsEnabled
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
}

func runServe(parent context.Context, cfg config.Config, logger *slog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	t, err := newTelemetry(ctx, logger)
	if err != nil {
		return err
	}
	defer t.shutdown(context.Background(), logger)

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled && t.provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Metrics.Addr,
			InstrumentationProvider: t.provider,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		if err := startAndWait("metrics server", metricsServer.StartWithReadySignal); err != nil {
			return err
		}
		logger.Info("metrics server started", slog.String("addr", metricsServer.Addr()))
		defer shutdownWithTimeout(logger, "metrics server", server.DefaultShutdownTimeout, metricsServer.Shutdown)
	}

	c, err := buildComponents(cfg, logger, t)
	if err != nil {
		return err
	}
	defer c.close(logger)

	srv, err := newHTTPServer(cfg, logger, t, c)
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	ready := make(chan struct{})
	go func() {
		serverErr <- srv.Start(cfg.Server.Addr, ready)
	}()

	select {
	case <-ready:
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(startupTimeout):
		return fmt.Errorf("HTTP server startup timed out")
	}
	srv.Health().SetReady(true)
	logger.Info("inboxshare ready",
		slog.String("addr", cfg.Server.Addr),
		slog.String("base_url", cfg.ResolvedBaseURL()),
		slog.String("version", version))

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("HTTP server stopped: %w", err)
		}
		return nil
	}

	shutdownWithTimeout(logger, "HTTP server", cfg.Server.ShutdownTimeout, srv.Shutdown)
	return nil
}

// startAndWait runs start in the background and waits for its ready signal.
func startAndWait(name string, start func(ready chan<- struct{}) error) error {
	ready := make(chan struct{})
	startErr := make(chan error, 1)
	go func() {
		if err := start(ready); err != nil && !errors.Is(err, http.ErrServerClosed) {
			startErr <- err
		}
		close(startErr)
	}()

	select {
	case <-ready:
		return nil
	case err := <-startErr:
		if err == nil {
			return fmt.Errorf("%s stopped before becoming ready", name)
		}
		return fmt.Errorf("%s failed to start: %w", name, err)
	case <-time.After(startupTimeout):
		return fmt.Errorf("%s startup timed out", name)
	}
}

func shutdownWithTimeout(logger *slog.Logger, name string, timeout time.Duration, shutdown func(context.Context) error) {
	if timeout <= 0 {
		timeout = server.DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error("shutdown failed", slog.String("component", name), logging.Err(err))
	}
}

// newHTTPServer builds the browser-facing service on top of c.
func newHTTPServer(cfg config.Config, logger *slog.Logger, t *telemetry, c *components) (*server.Server, error) {
	sessions, err := session.NewManager(session.Config{
		Secret: []byte(cfg.Session.Secret),
		MaxAge: cfg.Session.MaxAge,
		Secure: cfg.Session.SecureCookie,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}
	admin, err := session.NewAdminVerifier(cfg.Admin.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !admin.Enabled() {
		logger.Warn("admin login disabled: no admin password hash configured")
	}

	srv, err := server.New(server.Config{
		Sessions:          sessions,
		Admin:             admin,
		OAuth:             c.oauth,
		Provisioner:       c.provisioner,
		Mailbox:           c.mailbox,
		Visibility:        c.visibility,
		Store:             c.store,
		RateLimiter:       server.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.TrustProxy),
		PostLoginRedirect: cfg.Server.PostLoginRedirect,
		Metrics:           t.metrics,
		AuditLogger:       t.audit,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP server: %w", err)
	}
	return srv, nil
}

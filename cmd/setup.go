package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/teemow/inboxshare/internal/access"
	"github.com/teemow/inboxshare/internal/account"
	"github.com/teemow/inboxshare/internal/config"
	"github.com/teemow/inboxshare/internal/delegate"
	"github.com/teemow/inboxshare/internal/gmail"
	"github.com/teemow/inboxshare/internal/google"
	"github.com/teemow/inboxshare/internal/instrumentation"
	"github.com/teemow/inboxshare/internal/logging"
	"github.com/teemow/inboxshare/internal/mailbox"
	"github.com/teemow/inboxshare/internal/provision"
	"github.com/teemow/inboxshare/internal/visibility"
)

// loadConfig reads defaults, the config file and the environment. Flags are
// applied by each command afterwards.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigFile)
	}
	return config.Load(path, nil)
}

// newLogger builds the root logger and installs it as the slog default.
func newLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := logging.New(w, logging.Options{
		Level:  cfg.Log.Level,
		Format: logging.Format(cfg.Log.Format),
		Debug:  debugMode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}
	slog.SetDefault(logger)
	return logger, nil
}

// telemetry is the instrumentation shared by every component.
type telemetry struct {
	provider *instrumentation.Provider
	metrics  *instrumentation.Metrics
	audit    *instrumentation.AuditLogger
}

func newTelemetry(ctx context.Context, logger *slog.Logger) (*telemetry, error) {
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}

	t := &telemetry{provider: provider}
	if provider.Enabled() {
		t.metrics = provider.Metrics()
	}
	if instrConfig.AuditLogging.Enabled {
		t.audit = instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)
	}
	return t, nil
}

func (t *telemetry) shutdown(ctx context.Context, logger *slog.Logger) {
	if err := t.provider.Shutdown(ctx); err != nil {
		logger.Warn("instrumentation shutdown failed", logging.Err(err))
	}
}

// components are the domain services built on one account store.
type components struct {
	store       account.Store
	engine      *access.Engine
	visibility  *visibility.Admin
	provisioner *provision.Provisioner
	oauth       *google.OAuth
	mailbox     *mailbox.Service
}

func buildComponents(cfg config.Config, logger *slog.Logger, t *telemetry) (*components, error) {
	store, err := account.Open(cfg.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open account store: %w", err)
	}
	storeType := cfg.StorageConfig().Type
	if storeType == "" || storeType == account.StorageTypeMemory {
		logger.Warn("using in-memory account store, accounts are lost on restart")
	} else {
		pingCtx, cancel := context.WithTimeout(context.Background(), cfg.Store.Timeout)
		err := store.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("account store unreachable, continuing without database functionality",
				slog.String("type", string(storeType)), logging.Err(err))
		} else {
			logger.Info("account store opened", slog.String("type", string(storeType)))
		}
	}

	oauth := google.NewOAuth(google.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.ResolvedRedirectURL(),
	}, google.WithMetrics(t.metrics))

	engine := access.NewEngine(store,
		access.WithLogger(logger),
		access.WithMetrics(t.metrics),
		access.WithAuditLogger(t.audit),
		access.WithLookupTimeout(cfg.Store.Timeout),
	)
	authorizer := delegate.NewAuthorizer(oauth, store,
		delegate.WithLogger(logger),
		delegate.WithMetrics(t.metrics),
		delegate.WithAuditLogger(t.audit),
	)

	vis := visibility.New(store,
		visibility.WithLogger(logger),
		visibility.WithMetrics(t.metrics),
		visibility.WithAuditLogger(t.audit),
		visibility.WithWriteTimeout(cfg.Store.Timeout),
	)
	provisioner := provision.New(store,
		provision.WithLogger(logger),
		provision.WithMetrics(t.metrics),
		provision.WithAuditLogger(t.audit),
		provision.WithWriteTimeout(cfg.Store.Timeout),
	)

	return &components{
		store:       store,
		engine:      engine,
		visibility:  vis,
		provisioner: provisioner,
		oauth:       oauth,
		mailbox:     mailbox.NewService(engine, authorizer, &gmail.Factory{Metrics: t.metrics}),
	}, nil
}

func (c *components) close(logger *slog.Logger) {
	if err := c.store.Close(); err != nil {
		logger.Warn("failed to close account store", logging.Err(err))
	}
}

package server

import (
	"context"
	"sync"

	"github.com/teemow/inboxshare/internal/access"
	"github.com/teemow/inboxshare/internal/instrumentation"
	"github.com/teemow/inboxshare/internal/mailbox"
	"github.com/teemow/inboxshare/internal/visibility"
)

// ServerContext holds what the MCP tools need: the mailbox service, tier
// administration and the identity the operator asserted at startup.
type ServerContext struct {
	ctx        context.Context
	cancel     context.CancelFunc
	mailbox    *mailbox.Service
	visibility *visibility.Admin
	identity   access.Identity

	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a server context acting as identity.
func NewServerContext(ctx context.Context, svc *mailbox.Service, admin *visibility.Admin, identity access.Identity) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:        shutdownCtx,
		cancel:     cancel,
		mailbox:    svc,
		visibility: admin,
		identity:   identity,
	}
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

func (sc *ServerContext) Mailbox() *mailbox.Service {
	return sc.mailbox
}

func (sc *ServerContext) Visibility() *visibility.Admin {
	return sc.visibility
}

// Identity is the caller every tool invocation is evaluated as.
func (sc *ServerContext) Identity() access.Identity {
	return sc.identity
}

// SetMetrics sets the recorder used by instrumented tool handlers.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetAuditLogger sets the audit logger used by instrumented tool handlers.
func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = al
}

func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the context. It is safe to call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}

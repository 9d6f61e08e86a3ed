package delegate

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/teemow/inboxshare/internal/access"
	"github.com/teemow/inboxshare/internal/account"
	"github.com/teemow/inboxshare/internal/google"
	"github.com/teemow/inboxshare/internal/instrumentation"
	"github.com/teemow/inboxshare/internal/logging"
)

const (
	// DefaultCallTimeout bounds one delegated call, including token refresh.
	DefaultCallTimeout = 30 * time.Second

	// DefaultBookkeepingTimeout bounds the last-accessed write.
	DefaultBookkeepingTimeout = 5 * time.Second
)

// Operation is a remote call made with a client authorized as the account.
type Operation func(ctx context.Context, client *http.Client) error

// Authorizer binds stored credentials to outbound calls.
type Authorizer struct {
	tokens             google.TokenProvider
	store              account.Store
	logger             *slog.Logger
	metrics            *instrumentation.Metrics
	audit              *instrumentation.AuditLogger
	callTimeout        time.Duration
	bookkeepingTimeout time.Duration
	now                func() time.Time
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authorizer) { a.logger = logging.WithComponent(l, "delegate") }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(a *Authorizer) { a.metrics = m }
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(al *instrumentation.AuditLogger) Option {
	return func(a *Authorizer) { a.audit = al }
}

// WithCallTimeout bounds each delegated call. Zero keeps the default.
func WithCallTimeout(d time.Duration) Option {
	return func(a *Authorizer) {
		if d > 0 {
			a.callTimeout = d
		}
	}
}

// WithBookkeepingTimeout bounds the last-accessed write. Zero keeps the default.
func WithBookkeepingTimeout(d time.Duration) Option {
	return func(a *Authorizer) {
		if d > 0 {
			a.bookkeepingTimeout = d
		}
	}
}

// NewAuthorizer creates an Authorizer.
func NewAuthorizer(tokens google.TokenProvider, store account.Store, opts ...Option) *Authorizer {
	a := &Authorizer{
		tokens:             tokens,
		store:              store,
		logger:             logging.WithComponent(nil, "delegate"),
		callTimeout:        DefaultCallTimeout,
		bookkeepingTimeout: DefaultBookkeepingTimeout,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Invoke runs op as the account named by grant.
//
// The call runs detached from ctx cancellation, bounded by the call timeout.
// If ctx ends first, Invoke returns ctx.Err() at once and the call's result
// is discarded when it completes. Failures of the token refresh or of op are
// returned as *RemoteError. A successful call updates the account's
// last-accessed time; that write failing is logged and counted only.
func (a *Authorizer) Invoke(ctx context.Context, grant *access.Grant, op Operation) error {
	if !grant.Valid() {
		return ErrInvalidGrant
	}

	done := make(chan error, 1)
	go func() {
		done <- a.run(context.WithoutCancel(ctx), grant, op)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		a.logger.Info("delegated call abandoned by caller",
			logging.AccountHash(grant.Email()),
			logging.Grant(grant.ID()),
			logging.Err(ctx.Err()))
		return ctx.Err()
	}
}

func (a *Authorizer) run(ctx context.Context, grant *access.Grant, op Operation) error {
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	if grant.RefreshToken() == "" {
		a.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		return &RemoteError{Op: "token", Err: google.ErrNoRefreshToken}
	}

	ts := a.tokens.TokenSource(ctx, grant.RefreshToken())
	if _, err := ts.Token(); err != nil {
		a.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		a.logger.Warn("delegated credential refresh failed",
			logging.AccountHash(grant.Email()),
			logging.Grant(grant.ID()),
			logging.Err(err))
		return &RemoteError{Op: "token", Err: err}
	}
	a.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)

	if err := op(ctx, a.tokens.HTTPClient(ts)); err != nil {
		a.logger.Warn("delegated call failed",
			logging.AccountHash(grant.Email()),
			logging.Grant(grant.ID()),
			logging.Err(err))
		return &RemoteError{Op: "call", Err: err}
	}

	a.touch(ctx, grant)
	return nil
}

// touch records the access. It never fails the call.
func (a *Authorizer) touch(ctx context.Context, grant *access.Grant) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.bookkeepingTimeout)
	defer cancel()

	err := a.store.UpdateLastAccessed(ctx, grant.Email(), a.now())
	if err == nil {
		return
	}

	a.metrics.RecordBookkeepingFailure(ctx)
	a.logger.Warn("failed to update last accessed time",
		logging.AccountHash(grant.Email()),
		logging.Grant(grant.ID()),
		logging.Err(err))
	a.audit.LogEvent(ctx, instrumentation.AuditEvent{
		Action:  instrumentation.AuditActionBookkeeping,
		Target:  grant.Email(),
		Result:  instrumentation.StatusError,
		GrantID: grant.ID(),
		Error:   err.Error(),
	}.WithSpanContext(ctx))
}

package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/inboxshare/internal/account"
	"github.com/teemow/inboxshare/internal/instrumentation"
	"github.com/teemow/inboxshare/internal/logging"
)

// DefaultLookupTimeout bounds the account lookup of one evaluation.
const DefaultLookupTimeout = 10 * time.Second

// Engine evaluates access requests against the account store.
// It holds no per-request state and is safe for concurrent use.
type Engine struct {
	store         account.Store
	logger        *slog.Logger
	metrics       *instrumentation.Metrics
	audit         *instrumentation.AuditLogger
	lookupTimeout time.Duration
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = logging.WithComponent(l, "access") }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(a *instrumentation.AuditLogger) Option {
	return func(e *Engine) { e.audit = a }
}

// WithLookupTimeout bounds each store lookup. Zero keeps the default.
func WithLookupTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lookupTimeout = d
		}
	}
}

// NewEngine creates an Engine reading accounts from store.
func NewEngine(store account.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		logger:        logging.WithComponent(nil, "access"),
		lookupTimeout: DefaultLookupTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Authorize decides whether id may act on the account targetEmail.
//
// It returns a Grant when the caller owns the account, is an admin, or the
// account is public. Otherwise the error is a *DenyError whose Reason is
// ReasonServiceUnavailable when the store cannot be read, ReasonNotFound
// when no such account exists and ReasonPremiumAccessDenied in every other
// case. Store failures that are neither of the first two are returned
// wrapped and are not denials.
func (e *Engine) Authorize(ctx context.Context, targetEmail string, id Identity) (*Grant, error) {
	email := account.NormalizeEmail(targetEmail)

	ctx, span := instrumentation.StartAccessSpan(ctx, email)
	defer span.End()

	if email == "" {
		return nil, e.deny(ctx, span, id, &DenyError{Reason: ReasonNotFound})
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	acct, err := e.store.FindByEmail(lookupCtx, email)
	cancel()

	switch {
	case err == nil:
	case errors.Is(err, account.ErrStoreUnavailable):
		return nil, e.deny(ctx, span, id, &DenyError{Reason: ReasonServiceUnavailable, Email: email, Err: err})
	case errors.Is(err, account.ErrNotFound), errors.Is(err, account.ErrInvalidEmail):
		return nil, e.deny(ctx, span, id, &DenyError{Reason: ReasonNotFound, Email: email})
	default:
		instrumentation.SetSpanError(span, err)
		e.logger.Error("account lookup failed", logging.AccountHash(email), logging.Err(err))
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}

	basis, ok := Decide(id, acct)
	if !ok {
		return nil, e.deny(ctx, span, id, &DenyError{Reason: ReasonPremiumAccessDenied, Email: email})
	}

	grant := newGrant(acct, basis, e.now())
	e.allow(ctx, span, id, grant)
	return grant, nil
}

// Decide applies the three-predicate policy to an existing account.
// The returned basis names the first predicate that holds, in the order
// owner, admin, public. The order only affects reporting.
func Decide(id Identity, a *account.Account) (Basis, bool) {
	isOwner := id.Owns(a.Email)
	isAdmin := id.IsAdmin
	isPublic := a.Tier == account.TierPublic

	switch {
	case isOwner:
		return BasisOwner, true
	case isAdmin:
		return BasisAdmin, true
	case isPublic:
		return BasisPublic, true
	default:
		return "", false
	}
}

func (e *Engine) allow(ctx context.Context, span trace.Span, id Identity, g *Grant) {
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().
		WithDecision(instrumentation.AccessResultGrant, string(g.Basis())).Build()...)
	instrumentation.SetSpanSuccess(span)

	e.metrics.RecordAccessDecision(ctx, instrumentation.AccessResultGrant, string(g.Basis()))
	e.logger.Debug("access granted",
		logging.AccountHash(g.Email()),
		logging.Grant(g.ID()),
		slog.String("basis", string(g.Basis())))
	e.audit.LogEvent(ctx, instrumentation.AuditEvent{
		Action:  instrumentation.AuditActionAccess,
		Actor:   id.UserEmail,
		Admin:   id.IsAdmin,
		Target:  g.Email(),
		Result:  instrumentation.AccessResultGrant,
		Detail:  string(g.Basis()),
		GrantID: g.ID(),
	}.WithSpanContext(ctx))
}

func (e *Engine) deny(ctx context.Context, span trace.Span, id Identity, de *DenyError) error {
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().
		WithDecision(instrumentation.AccessResultDeny, string(de.Reason)).Build()...)
	if de.Reason == ReasonServiceUnavailable {
		instrumentation.SetSpanError(span, de)
		e.logger.Warn("account store unavailable during access check",
			logging.AccountHash(de.Email), logging.Err(de.Err))
	}

	e.metrics.RecordAccessDecision(ctx, instrumentation.AccessResultDeny, string(de.Reason))
	ev := instrumentation.AuditEvent{
		Action: instrumentation.AuditActionAccess,
		Actor:  id.UserEmail,
		Admin:  id.IsAdmin,
		Target: de.Email,
		Result: instrumentation.AccessResultDeny,
		Detail: string(de.Reason),
	}
	e.audit.LogEvent(ctx, ev.WithSpanContext(ctx))
	return de
}

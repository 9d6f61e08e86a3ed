package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/inboxshare/internal/account"
	"github.com/teemow/inboxshare/internal/instrumentation"
	"github.com/teemow/inboxshare/internal/logging"
)

// Outcome classifies what Provision did with the account record.
type Outcome string

const (
	// OutcomeCreated means a new account was stored with the credential.
	OutcomeCreated Outcome = "created"
	// OutcomeUpdated means an existing account received a new credential.
	OutcomeUpdated Outcome = "updated"
	// OutcomeRefreshed means no credential was issued and only bookkeeping
	// was written. The stored credential is untouched.
	OutcomeRefreshed Outcome = "refreshed"
	// OutcomeDegraded means the store could not be reached. The caller may
	// still bind the session identity, but nothing was persisted.
	OutcomeDegraded Outcome = "degraded"
	// OutcomeRejected means there was no stored account and no credential
	// to create one with.
	OutcomeRejected Outcome = "rejected"
)

// DefaultWriteTimeout bounds a provisioning write.
const DefaultWriteTimeout = 10 * time.Second

// Result is the outcome of one provisioning call. Account is nil for the
// degraded and rejected outcomes.
type Result struct {
	Account *account.Account
	Outcome Outcome
}

// Persisted reports whether the account record is durable after the call.
func (r Result) Persisted() bool {
	return r.Outcome == OutcomeCreated || r.Outcome == OutcomeUpdated || r.Outcome == OutcomeRefreshed
}

// Provisioner turns a completed external authorization into a durable account.
type Provisioner struct {
	store        account.Store
	logger       *slog.Logger
	metrics      *instrumentation.Metrics
	audit        *instrumentation.AuditLogger
	writeTimeout time.Duration
	now          func() time.Time
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provisioner) { p.logger = logging.WithComponent(l, "provision") }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(p *Provisioner) { p.metrics = m }
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(a *instrumentation.AuditLogger) Option {
	return func(p *Provisioner) { p.audit = a }
}

// WithWriteTimeout bounds the store write. Zero keeps the default.
func WithWriteTimeout(d time.Duration) Option {
	return func(p *Provisioner) {
		if d > 0 {
			p.writeTimeout = d
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Provisioner) { p.now = now }
}

// New creates a Provisioner writing to store.
func New(store account.Store, opts ...Option) *Provisioner {
	p := &Provisioner{
		store:        store,
		logger:       logging.WithComponent(nil, "provision"),
		writeTimeout: DefaultWriteTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision creates or refreshes the account for email.
//
// An empty credential means the provider did not reissue one; the stored
// credential is then preserved and only LastAccessedAt moves. A store
// outage yields OutcomeDegraded with a nil error so the caller can still
// bind the session. The write is detached from ctx cancellation so an
// abandoned callback cannot leave a half-applied record.
//
// The returned error is non-nil only for invalid input
// (account.ErrInvalidEmail), the rejected outcome
// (account.ErrCredentialRequired) and unexpected store errors.
func (p *Provisioner) Provision(ctx context.Context, email, credential string) (Result, error) {
	email = account.NormalizeEmail(email)
	if email == "" {
		return Result{Outcome: OutcomeRejected}, account.ErrInvalidEmail
	}

	existed := p.exists(ctx, email)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.writeTimeout)
	defer cancel()

	saved, err := p.store.UpsertByEmail(writeCtx, email, account.Update{
		RefreshToken: credential,
		AccessedAt:   p.now(),
	})

	var res Result
	switch {
	case err == nil:
		res = Result{Account: saved, Outcome: classify(existed, credential, saved)}
	case errors.Is(err, account.ErrStoreUnavailable):
		res = Result{Outcome: OutcomeDegraded}
		err = nil
	case errors.Is(err, account.ErrCredentialRequired):
		res = Result{Outcome: OutcomeRejected}
	default:
		res = Result{Outcome: OutcomeRejected}
		err = fmt.Errorf("failed to provision account: %w", err)
	}

	p.report(ctx, email, credential, res, err)
	return res, err
}

// exists reports whether the account is already stored. It only informs the
// created/updated distinction, so lookup failures count as "unknown" and
// are resolved from the upsert result instead.
func (p *Provisioner) exists(ctx context.Context, email string) *bool {
	lookupCtx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	_, err := p.store.FindByEmail(lookupCtx, email)
	switch {
	case err == nil:
		t := true
		return &t
	case errors.Is(err, account.ErrNotFound):
		f := false
		return &f
	default:
		return nil
	}
}

func classify(existed *bool, credential string, saved *account.Account) Outcome {
	if credential == "" {
		return OutcomeRefreshed
	}
	if existed != nil {
		if *existed {
			return OutcomeUpdated
		}
		return OutcomeCreated
	}
	// Lookup was inconclusive: a record whose creation time equals its last
	// access was just created by this write.
	if saved.CreatedAt.Equal(saved.LastAccessedAt) {
		return OutcomeCreated
	}
	return OutcomeUpdated
}

func (p *Provisioner) report(ctx context.Context, email, credential string, res Result, err error) {
	p.metrics.RecordProvisioning(ctx, string(res.Outcome))

	attrs := []any{
		logging.AccountHash(email),
		logging.Outcome(string(res.Outcome)),
		slog.String("credential", logging.SanitizeToken(credential)),
	}
	switch res.Outcome {
	case OutcomeDegraded:
		p.logger.Warn("account store unavailable, session bound without persisting account", attrs...)
	case OutcomeRejected:
		p.logger.Warn("account not provisioned", append(attrs, logging.Err(err))...)
	default:
		p.logger.Info("account provisioned", attrs...)
	}

	ev := instrumentation.AuditEvent{
		Action: instrumentation.AuditActionProvision,
		Actor:  email,
		Target: email,
		Result: string(res.Outcome),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	p.audit.LogEvent(ctx, ev.WithSpanContext(ctx))
}

// Package visibility switches accounts between the public and premium tiers.
//
// Callers are expected to have checked that the actor is an administrator.
// This package trusts that gate and only records who asked.
package visibility

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/inboxshare/internal/account"
	"github.com/teemow/inboxshare/internal/instrumentation"
	"github.com/teemow/inboxshare/internal/logging"
)

// DefaultWriteTimeout bounds a tier change.
const DefaultWriteTimeout = 10 * time.Second

// Change is the result of SetTier.
type Change struct {
	Account *account.Account

	// Previous is the tier before the change. Equal to Account.Tier when
	// the call was a no-op.
	Previous account.Tier
}

// Changed reports whether the tier actually moved.
func (c Change) Changed() bool {
	return c.Account != nil && c.Previous != c.Account.Tier
}

// Admin applies tier changes.
type Admin struct {
	store        account.Store
	logger       *slog.Logger
	metrics      *instrumentation.Metrics
	audit        *instrumentation.AuditLogger
	writeTimeout time.Duration
}

// Option configures an Admin.
type Option func(*Admin)

func WithLogger(l *slog.Logger) Option {
	return func(a *Admin) { a.logger = logging.WithComponent(l, "visibility") }
}

func WithMetrics(m *instrumentation.Metrics) Option {
	return func(a *Admin) { a.metrics = m }
}

func WithAuditLogger(al *instrumentation.AuditLogger) Option {
	return func(a *Admin) { a.audit = al }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(a *Admin) {
		if d > 0 {
			a.writeTimeout = d
		}
	}
}

// New creates an Admin over store.
func New(store account.Store, opts ...Option) *Admin {
	a := &Admin{
		store:        store,
		logger:       logging.WithComponent(nil, "visibility"),
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetTier sets the tier of email. Setting the current tier again succeeds
// without a write. A missing account yields account.ErrNotFound; actor is
// recorded in the audit trail only.
//
// The lookup and write run under the write timeout, detached from ctx
// cancellation, so a caller that goes away cannot split them.
func (a *Admin) SetTier(ctx context.Context, actor, email string, tier account.Tier) (Change, error) {
	if !tier.Valid() {
		return Change{}, fmt.Errorf("invalid visibility tier %q", tier)
	}
	email = account.NormalizeEmail(email)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.writeTimeout)
	defer cancel()

	current, err := a.store.FindByEmail(ctx, email)
	if err != nil {
		a.report(ctx, actor, email, tier, false, err)
		return Change{}, err
	}
	if current.Tier == tier {
		a.report(ctx, actor, email, tier, false, nil)
		return Change{Account: current, Previous: current.Tier}, nil
	}

	updated, err := a.store.SetVisibilityTier(ctx, email, tier)
	if err != nil {
		a.report(ctx, actor, email, tier, false, err)
		return Change{}, err
	}

	a.report(ctx, actor, email, tier, true, nil)
	return Change{Account: updated, Previous: current.Tier}, nil
}

// Lock makes email premium.
func (a *Admin) Lock(ctx context.Context, actor, email string) (Change, error) {
	return a.SetTier(ctx, actor, email, account.TierPremium)
}

// Unlock makes email public.
func (a *Admin) Unlock(ctx context.Context, actor, email string) (Change, error) {
	return a.SetTier(ctx, actor, email, account.TierPublic)
}

func (a *Admin) report(ctx context.Context, actor, email string, tier account.Tier, changed bool, err error) {
	ev := instrumentation.AuditEvent{
		Action: instrumentation.AuditActionTierChange,
		Actor:  actor,
		Admin:  true,
		Target: email,
		Result: instrumentation.StatusSuccess,
		Detail: string(tier),
	}
	if err != nil {
		ev.Result = instrumentation.StatusError
		ev.Error = err.Error()
		a.logger.Warn("tier change failed", logging.AccountHash(email), logging.Tier(string(tier)), logging.Err(err))
	} else {
		a.metrics.RecordVisibilityChange(ctx, string(tier), changed)
		a.logger.Info("tier set", logging.AccountHash(email), logging.Tier(string(tier)), slog.Bool("changed", changed))
	}
	a.audit.LogEvent(ctx, ev.WithSpanContext(ctx))
}

package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/inboxshare/internal/logging"
)

// Audit actions recorded by AuditLogger.LogEvent.
const (
	AuditActionAccess      = "access"
	AuditActionProvision   = "provision"
	AuditActionTierChange  = "tier_change"
	AuditActionAdminLogin  = "admin_login"
	AuditActionBookkeeping = "bookkeeping"
)

// AuditEvent is one security-relevant decision or mutation on an account.
//
// # Privacy Considerations
//
// Actor and Target are email addresses. They are written in clear only when
// the AuditLogger is configured with IncludePII; otherwise they are hashed.
type AuditEvent struct {
	Action string

	// Actor is the requester's session email, empty for anonymous callers.
	Actor string
	Admin bool

	// Target is the mailbox account the action applies to.
	Target string

	// Result is the decision or outcome (grant, deny, created, degraded, ...).
	Result string

	// Detail carries the grant basis, denial reason, or new tier.
	Detail string

	GrantID string
	Error   string
	TraceID string
}

// WithSpanContext copies the trace ID from the current span.
func (e AuditEvent) WithSpanContext(ctx context.Context) AuditEvent {
	e.TraceID = GetTraceID(ctx)
	return e
}

func (e AuditEvent) attrs(includePII bool) []any {
	args := []any{
		slog.String("action", e.Action),
		slog.String("result", e.Result),
		slog.Bool("admin", e.Admin),
	}

	if includePII {
		if e.Actor != "" {
			args = append(args, slog.String("actor", e.Actor))
		}
		if e.Target != "" {
			args = append(args, slog.String("target", e.Target))
		}
	} else {
		if e.Actor != "" {
			args = append(args, logging.UserHash(e.Actor))
		}
		if e.Target != "" {
			args = append(args, logging.AccountHash(e.Target))
		}
	}

	if e.Detail != "" {
		args = append(args, slog.String("detail", e.Detail))
	}
	if e.GrantID != "" {
		args = append(args, logging.Grant(e.GrantID))
	}
	if e.TraceID != "" {
		args = append(args, slog.String("trace_id", e.TraceID))
	}
	if e.Error != "" {
		args = append(args, slog.String("error", e.Error))
	}
	return args
}

// ToolInvocation captures one MCP tool call for audit logging.
type ToolInvocation struct {
	Tool string

	// UserEmail is the operator identity the tool runs as.
	UserEmail string

	// Account is the target mailbox, if the tool addresses one.
	Account string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewToolInvocation creates a new ToolInvocation with timing started.
// Call Complete() when the tool operation finishes.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithUser sets the operator identity.
func (ti *ToolInvocation) WithUser(email string) *ToolInvocation {
	ti.UserEmail = email
	return ti
}

// WithAccount sets the target mailbox.
func (ti *ToolInvocation) WithAccount(account string) *ToolInvocation {
	ti.Account = account
	return ti
}

// WithSpanContext extracts trace context from the current span.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		ti.TraceID = span.SpanContext().TraceID().String()
		ti.SpanID = span.SpanContext().SpanID().String()
	}
	return ti
}

// Complete marks the invocation as completed and calculates duration.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// CompleteWithError marks the invocation as failed with the given error.
func (ti *ToolInvocation) CompleteWithError(err error) *ToolInvocation {
	return ti.Complete(false, err)
}

// CompleteSuccess marks the invocation as successful.
func (ti *ToolInvocation) CompleteSuccess() *ToolInvocation {
	return ti.Complete(true, nil)
}

// Status returns "success" or "error" based on the Success field.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

func (ti *ToolInvocation) attrs(includePII bool) []any {
	args := []any{
		logging.Tool(ti.Tool),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}

	if includePII {
		args = append(args, slog.String("user", ti.UserEmail))
		if ti.Account != "" {
			args = append(args, slog.String("account", ti.Account))
		}
	} else {
		args = append(args, logging.UserHash(ti.UserEmail))
		if ti.Account != "" {
			args = append(args, logging.AccountHash(ti.Account))
		}
	}

	if ti.TraceID != "" {
		args = append(args, slog.String("trace_id", ti.TraceID))
	}
	if ti.SpanID != "" {
		args = append(args, slog.String("span_id", ti.SpanID))
	}
	if ti.Error != "" {
		args = append(args, slog.String("error", ti.Error))
	}
	return args
}

// AuditLogger writes audit events to a dedicated slog.Logger.
// A nil *AuditLogger is valid and discards everything.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an enabled AuditLogger that hashes identities.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger.With(slog.String("log_type", "audit")),
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogEvent writes one account audit event. Denials and failures are logged
// at warn, everything else at info.
func (al *AuditLogger) LogEvent(ctx context.Context, e AuditEvent) {
	if al == nil || !al.enabled {
		return
	}

	level := slog.LevelInfo
	switch e.Result {
	case AccessResultDeny, AdminLoginFailure, "degraded", "rejected", StatusError:
		level = slog.LevelWarn
	}
	al.logger.Log(ctx, level, "audit_event", e.attrs(al.includePII)...)
}

// LogToolInvocation logs a completed MCP tool invocation.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}

	if ti.Success {
		al.logger.Info("tool_executed", ti.attrs(al.includePII)...)
	} else {
		al.logger.Warn("tool_failed", ti.attrs(al.includePII)...)
	}
}

package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod    = "method"
	attrRoute     = "route"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrBasis     = "basis"
	attrOutcome   = "outcome"
	attrTier      = "tier"
	attrChanged   = "changed"
	attrTool      = "tool"
	attrDomain    = "user_domain"
)

// Label values accepted for the domain counters. Anything else is recorded
// as "unknown".
var (
	accessBases = []string{
		"owner", "admin", "public",
		"not_found", "service_unavailable", "premium_access_denied",
	}
	provisionOutcomes = []string{"created", "updated", "refreshed", "degraded", "rejected"}
	tierValues        = []string{"PUBLIC", "PREMIUM"}
)

// Metrics provides methods for recording observability metrics. A nil
// *Metrics, or one from a disabled Provider, records nothing.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Google API metrics
	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	// OAuth metrics
	oauthAuthTotal         metric.Int64Counter
	oauthTokenRefreshTotal metric.Int64Counter

	// Account access metrics
	accessDecisionsTotal     metric.Int64Counter
	provisioningTotal        metric.Int64Counter
	bookkeepingFailuresTotal metric.Int64Counter
	visibilityChangesTotal   metric.Int64Counter
	adminLoginsTotal         metric.Int64Counter

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// HTTP Metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	// Google API Metrics
	m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	// OAuth Metrics
	m.oauthAuthTotal, err = meter.Int64Counter(
		"oauth_auth_total",
		metric.WithDescription("Total number of OAuth authentication attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_auth_total counter: %w", err)
	}

	m.oauthTokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of delegated credential refreshes"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	// Account access Metrics
	m.accessDecisionsTotal, err = meter.Int64Counter(
		"access_decisions_total",
		metric.WithDescription("Total number of access policy decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create access_decisions_total counter: %w", err)
	}

	m.provisioningTotal, err = meter.Int64Counter(
		"provisioning_total",
		metric.WithDescription("Total number of credential provisioning attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provisioning_total counter: %w", err)
	}

	m.bookkeepingFailuresTotal, err = meter.Int64Counter(
		"bookkeeping_failures_total",
		metric.WithDescription("Total number of failed last-accessed updates"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create bookkeeping_failures_total counter: %w", err)
	}

	m.visibilityChangesTotal, err = meter.Int64Counter(
		"visibility_changes_total",
		metric.WithDescription("Total number of visibility tier assignments"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create visibility_changes_total counter: %w", err)
	}

	m.adminLoginsTotal, err = meter.Int64Counter(
		"admin_logins_total",
		metric.WithDescription("Total number of admin login attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin_logins_total counter: %w", err)
	}

	// MCP Tool Metrics
	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, route pattern, status code, and duration.
// route must be the registered pattern, never the raw path, since paths carry emails.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrRoute, route),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordGoogleAPIOperation records a Google API operation with service, operation,
// status, and duration.
//
// Parameters:
//   - service: Google service name (gmail, userinfo)
//   - operation: Operation type (list, get, exchange, userinfo)
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the operation
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.googleAPIOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordOAuthAuth records an OAuth authentication attempt with result.
// Result should be one of: "success", "failure"
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil || m.oauthAuthTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrResult, result),
	}

	m.oauthAuthTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOAuthTokenRefresh records an OAuth token refresh attempt with result.
// Result should be one of: "success", "failure"
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.oauthTokenRefreshTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrResult, result),
	}

	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
//
// Parameters:
//   - toolName: Name of the MCP tool (e.g., "mailbox_list_inbox")
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the tool execution
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordToolInvocationWithUser records an MCP tool invocation with the caller's
// email domain attached when detailedLabels is enabled. The full email is
// never used as a label.
func (m *Metrics) RecordToolInvocationWithUser(ctx context.Context, toolName, status, userEmail string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	if m.detailedLabels && userEmail != "" {
		attrs = append(attrs, attribute.String(attrDomain, ExtractUserDomain(userEmail)))
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordAccessDecision records one policy evaluation.
// result is "grant" or "deny"; basis is the grant basis (owner, admin,
// public) or the denial reason (not_found, service_unavailable,
// premium_access_denied).
func (m *Metrics) RecordAccessDecision(ctx context.Context, result, basis string) {
	if m == nil || m.accessDecisionsTotal == nil {
		return // Instrumentation not initialized
	}

	m.accessDecisionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, boundedLabel(result, AccessResultGrant, AccessResultDeny)),
		attribute.String(attrBasis, boundedLabel(basis, accessBases...)),
	))
}

// RecordProvisioning records a provisioning attempt by outcome
// (created, updated, refreshed, degraded, rejected).
func (m *Metrics) RecordProvisioning(ctx context.Context, outcome string) {
	if m == nil || m.provisioningTotal == nil {
		return // Instrumentation not initialized
	}

	m.provisioningTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrOutcome, boundedLabel(outcome, provisionOutcomes...)),
	))
}

// RecordBookkeepingFailure records a last-accessed update that did not land.
func (m *Metrics) RecordBookkeepingFailure(ctx context.Context) {
	if m == nil || m.bookkeepingFailuresTotal == nil {
		return // Instrumentation not initialized
	}

	m.bookkeepingFailuresTotal.Add(ctx, 1)
}

// RecordVisibilityChange records a tier assignment. changed is false when the
// account already had the requested tier.
func (m *Metrics) RecordVisibilityChange(ctx context.Context, tier string, changed bool) {
	if m == nil || m.visibilityChangesTotal == nil {
		return // Instrumentation not initialized
	}

	m.visibilityChangesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrTier, boundedLabel(tier, tierValues...)),
		attribute.Bool(attrChanged, changed),
	))
}

// RecordAdminLogin records an admin login attempt with result
// (success, failure, disabled).
func (m *Metrics) RecordAdminLogin(ctx context.Context, result string) {
	if m == nil || m.adminLoginsTotal == nil {
		return // Instrumentation not initialized
	}

	m.adminLoginsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, boundedLabel(result, AdminLoginSuccess, AdminLoginFailure, AdminLoginDisabled)),
	))
}

// Package instrumentation provides OpenTelemetry instrumentation for the
// inboxshare service.
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, route pattern, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// Google API Metrics:
//   - google_api_operations_total: Counter of Google API operations by service, operation, status
//   - google_api_operation_duration_seconds: Histogram of Google API operation durations
//
// OAuth Metrics:
//   - oauth_auth_total: Counter of Google sign-in attempts by result
//   - oauth_token_refresh_total: Counter of delegated credential refreshes by result
//
// Account Access Metrics:
//   - access_decisions_total: Counter of policy decisions by result and basis
//   - provisioning_total: Counter of provisioning attempts by outcome
//   - bookkeeping_failures_total: Counter of last-accessed updates that failed
//   - visibility_changes_total: Counter of tier assignments by tier and changed
//   - admin_logins_total: Counter of admin login attempts by result
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//
// No metric carries an email address as a label.
//
// # Tracing
//
// Spans are created for policy evaluation (access.authorize), Google API
// calls (google.<service>.<operation>), account store operations
// (store.<operation>) and MCP tool invocations (tool.<name>).
//
// # Configuration
//
// Instrumentation is configured from the environment:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: inboxshare)
//   - AUDIT_LOGGING_INCLUDE_PII: write clear emails in audit events (default: false)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordAccessDecision(ctx, instrumentation.AccessResultGrant, "owner")
package instrumentation

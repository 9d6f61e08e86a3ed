// Package server provides the inboxshare HTTP service, the MCP server
// context, health probes and the metrics listener.
//
// # Key Components
//
// Server serves the browser-facing routes:
//   - /auth/google and /auth/google/callback run the Google consent flow
//     and provision the account
//   - /inbox/{email} and /email/{email}/{messageId} read a mailbox after
//     the access policy allows it
//   - /available-accounts lists what the caller may see
//   - /accounts and /admin/{lock,unlock}/{email} are admin only
//
// Every domain error is mapped to a status code in statusForError and
// rendered as {"error": "..."}.
//
// ServerContext carries the mailbox service and the operator identity to
// the MCP tools.
//
// HealthChecker serves /healthz, /readyz and /healthz/detailed. Readiness
// pings the account store.
//
// MetricsServer exposes /metrics on its own listener.
//
// # Security Features
//
//   - Metric labels use route patterns, never raw paths
//   - Sessions are signed HttpOnly cookies
//   - The OAuth state nonce is checked in constant time
//   - Requests are rate limited per client IP
package server

// Package mailbox_tools exposes mailbox reads and tier administration as
// MCP tools.
//
// Every tool runs as the identity the operator asserted when starting the
// MCP server and goes through the same access policy as the HTTP routes.
// mailbox_get_messages fetches several messages at once and reports failures
// per message. The lock and unlock tools are registered only for admin
// identities.
package mailbox_tools

// Package resources provides MCP resources describing the session: who the
// tools act as and which mailbox accounts that identity may read.
// Resources are read-only data sources that MCP clients can fetch.
package resources

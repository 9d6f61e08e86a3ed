// Package cmd implements the command-line interface for inboxshare.
//
// This package provides the following commands:
//   - serve: Run the HTTP service
//   - mcp: Run an MCP stdio server acting as one asserted identity
//   - accounts list|lock|unlock: Inspect the account store and change visibility tiers
//   - hash-password: Produce a bcrypt hash for the admin password setting
//   - generate-docs: Generate markdown documentation for the MCP tools
//   - version: Display version information
//
// Settings come from defaults, the --config TOML file, the environment and
// finally any flag set on the command line.
package cmd

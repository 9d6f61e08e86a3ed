// Package batch runs one MCP tool operation over several item IDs.
//
// It covers parsing parameters that accept a single ID or an array,
// bounded parallel processing with per-item results, and the aggregated
// result shape returned to the client. Partial failures are reported per
// item rather than failing the whole call.
package batch

// Package account stores delegated mailbox accounts.
//
// An account is keyed by its normalized email and carries the refresh token
// used to call the provider on the owner's behalf, a visibility tier and two
// timestamps. Store is the adapter every other package talks to. Four
// backends implement it:
//
//   - MemoryStore: process memory, for development and tests
//   - BoltStore: a single bbolt file
//   - SQLiteStore: SQLite with a unique email column
//   - ValkeyStore: Valkey hashes written through Lua scripts
//
// All backends share two rules. Upserts never replace a stored credential
// with an empty one, and an account is never created without a credential.
// Backend failures surface as ErrStoreUnavailable, distinct from ErrNotFound.
//
// Open wraps Valkey in a ReconnectingStore, so a server that is down at
// startup leaves the store unavailable instead of failing the process.
package account

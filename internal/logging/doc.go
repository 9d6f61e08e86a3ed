// Package logging provides structured logging helpers for inboxshare.
//
// All logging goes through log/slog. This package supplies the root logger
// constructor and attribute helpers so that keys stay consistent across
// packages.
//
// # Usage Patterns
//
//	logger := logging.WithComponent(slog.Default(), "access")
//	logger.Info("access denied",
//	    logging.AccountHash(target),
//	    logging.Reason("premium_access_denied"))
//
// # Security Considerations
//
// Mailbox addresses are personal data and delegated credentials are
// secrets:
//   - Emails are logged as truncated sha256 hashes (AccountHash, UserHash)
//   - Refresh tokens are only ever logged through SanitizeToken
package logging

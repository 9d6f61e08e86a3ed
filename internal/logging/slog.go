package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyComponent   = "component"
	KeyOperation   = "operation"
	KeyService     = "service"
	KeyAccountHash = "account_hash"
	KeyUserHash    = "user_hash"
	KeyTier        = "tier"
	KeyOutcome     = "outcome"
	KeyReason      = "reason"
	KeyGrant       = "grant_id"
	KeyDuration    = "duration"
	KeyStatus      = "status"
	KeyError       = "error"
	KeyTool        = "tool"
)

// Status values for consistent logging.
// Note: These are intentionally duplicated from instrumentation package
// to avoid circular dependencies (instrumentation imports logging).
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// WithComponent returns a logger tagged with the component that owns it.
// A nil logger selects slog.Default().
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String(KeyComponent, component))
}

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Service returns a slog attribute for the service name.
func Service(svc string) slog.Attr {
	return slog.String(KeyService, svc)
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Tier returns a slog attribute for a visibility tier.
func Tier(tier string) slog.Attr {
	return slog.String(KeyTier, tier)
}

// Outcome returns a slog attribute for a provisioning outcome.
func Outcome(outcome string) slog.Attr {
	return slog.String(KeyOutcome, outcome)
}

// Reason returns a slog attribute for a denial reason.
func Reason(reason string) slog.Attr {
	return slog.String(KeyReason, reason)
}

// Grant returns a slog attribute for a capability grant ID.
func Grant(id string) slog.Attr {
	return slog.String(KeyGrant, id)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from output.
//
// Usage:
//
//	logger.Info("operation", logging.Err(err))  // Safe even if err is nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail returns a hashed representation of an email for logging
// purposes. The address is normalized first so that "Foo@Bar.com" and
// "foo@bar.com" correlate.
func AnonymizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(email))
	return "user:" + hex.EncodeToString(hash[:8])
}

// UserHash returns a slog attribute with the anonymized requester email.
//
// Usage:
//
//	logger.Info("session bound", logging.UserHash(identity.UserEmail))
func UserHash(email string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeEmail(email))
}

// AccountHash returns a slog attribute with the anonymized target account email.
func AccountHash(email string) slog.Attr {
	return slog.String(KeyAccountHash, AnonymizeEmail(email))
}

// SanitizeToken returns a masked version of a token for logging.
// It returns a length indicator without exposing any token content.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// ExtractDomain extracts the domain part from an email address.
func ExtractDomain(email string) string {
	if email == "" {
		return ""
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}

// Domain returns a slog attribute for the email domain (lower cardinality than full email).
func Domain(email string) slog.Attr {
	return slog.String("user_domain", ExtractDomain(email))
}

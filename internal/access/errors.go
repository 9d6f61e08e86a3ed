package access

import (
	"errors"
	"fmt"
)

// Reason is the canonical cause of a denial.
type Reason string

const (
	ReasonNotFound            Reason = "not_found"
	ReasonServiceUnavailable  Reason = "service_unavailable"
	ReasonPremiumAccessDenied Reason = "premium_access_denied"
)

// DenyError is returned by Authorize when access is refused.
type DenyError struct {
	Reason Reason

	// Email is the normalized target account.
	Email string

	// Err is the store error behind a ServiceUnavailable denial.
	Err error
}

// Error implements the error interface
func (e *DenyError) Error() string {
	switch e.Reason {
	case ReasonNotFound:
		return "Account not found"
	case ReasonServiceUnavailable:
		return "Database temporarily unavailable. Please try again later."
	case ReasonPremiumAccessDenied:
		return "Access denied. This is a premium account."
	default:
		return fmt.Sprintf("access denied: %s", e.Reason)
	}
}

// Unwrap implements the errors.Unwrap interface
func (e *DenyError) Unwrap() error {
	return e.Err
}

// DenyReason extracts the Reason from err, if err is a DenyError.
func DenyReason(err error) (Reason, bool) {
	var de *DenyError
	if errors.As(err, &de) {
		return de.Reason, true
	}
	return "", false
}

// IsDenied reports whether err is a denial with the given reason.
func IsDenied(err error, reason Reason) bool {
	r, ok := DenyReason(err)
	return ok && r == reason
}

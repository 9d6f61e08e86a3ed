package instrumentation

import "strings"

// Cardinality helpers keep user identifiers out of metric labels.
// Label values must come from a small closed set; anything derived from an
// email address goes through these helpers first.

// ExtractUserDomain extracts the domain part from an email address.
//
// Example:
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("invalid")           // "unknown"
//	ExtractUserDomain("")                  // "unknown"
func ExtractUserDomain(email string) string {
	if email == "" {
		return "unknown"
	}

	parts := strings.Split(strings.ToLower(strings.TrimSpace(email)), "@")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}

	return "unknown"
}

// boundedLabel returns value when it is in allowed, otherwise StatusUnknown.
// It guards label values that callers pass through from other packages.
func boundedLabel(value string, allowed ...string) string {
	for _, a := range allowed {
		if value == a {
			return value
		}
	}
	return StatusUnknown
}

// Operation types for Google API metrics and spans.
const (
	OperationList     = "list"
	OperationGet      = "get"
	OperationExchange = "exchange"
	OperationUserinfo = "userinfo"
)

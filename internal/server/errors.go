package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/teemow/inboxshare/internal/access"
	"github.com/teemow/inboxshare/internal/account"
	"github.com/teemow/inboxshare/internal/delegate"
)

const (
	msgRouteNotFound      = "Route not found"
	msgAdminRequired      = "Access denied. Admin privileges required."
	msgRateLimited        = "Rate limit exceeded. Please try again later."
	msgAccountNotFound    = "Account not found"
	msgStoreUnavailable   = "Database temporarily unavailable. Please try again later."
	msgStoreUnavailableLi = "Database temporarily unavailable"
	msgInternal           = "Internal server error"
	msgRequestTimeout     = "Request timed out"
	msgInvalidAdminPass   = "Invalid admin password"
	msgMissingCode        = "Authorization code not provided"
	msgInvalidState       = "Invalid OAuth state"
	msgAuthFailed         = "Authentication failed"
	msgFetchInbox         = "Failed to fetch inbox"
	msgFetchEmail         = "Failed to fetch email"
	msgFetchAccounts      = "Failed to fetch accounts"
	msgLockAccount        = "Failed to lock account"
	msgUnlockAccount      = "Failed to unlock account"
)

// errorResponse is the body of every JSON error.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// statusForError maps a domain error to a status code and a client-safe
// message. fallback is used for remote and unexpected failures.
func statusForError(err error, fallback string) (int, string) {
	var deny *access.DenyError
	switch {
	case errors.As(err, &deny):
		switch deny.Reason {
		case access.ReasonNotFound:
			return http.StatusNotFound, deny.Error()
		case access.ReasonServiceUnavailable:
			return http.StatusServiceUnavailable, deny.Error()
		case access.ReasonPremiumAccessDenied:
			return http.StatusForbidden, deny.Error()
		}
	case delegate.IsRemoteError(err):
		return http.StatusInternalServerError, fallback
	case errors.Is(err, account.ErrNotFound), errors.Is(err, account.ErrInvalidEmail):
		return http.StatusNotFound, msgAccountNotFound
	case errors.Is(err, account.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, msgStoreUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, msgRequestTimeout
	}
	return http.StatusInternalServerError, fallback
}

package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/teemow/inboxshare/internal/access"
	"github.com/teemow/inboxshare/internal/account"
	"github.com/teemow/inboxshare/internal/logging"
)

// accountEntry is one row of /accounts.
type accountEntry struct {
	Email        string    `json:"email"`
	IsPremium    bool      `json:"isPremium"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
}

// availableEntry is one row of /available-accounts.
type availableEntry struct {
	Email     string `json:"email"`
	IsPremium bool   `json:"isPremium"`
}

type accountsResponse struct {
	Accounts []accountEntry `json:"accounts"`
	Error    string         `json:"error,omitempty"`
}

type availableResponse struct {
	Accounts []availableEntry `json:"accounts"`
	Message  string           `json:"message,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type tierChangeResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Account availableEntry `json:"account"`
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	inbox, err := s.mailbox.Inbox(r.Context(), s.sessions.Load(r), r.PathValue("email"))
	if err != nil {
		s.fail(w, r, err, msgFetchInbox)
		return
	}
	writeJSON(w, http.StatusOK, inbox)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.mailbox.Message(r.Context(), s.sessions.Load(r), r.PathValue("email"), r.PathValue("messageId"))
	if err != nil {
		s.fail(w, r, err, msgFetchEmail)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := s.mailbox.Engine().All(r.Context())
	if err != nil {
		code, msg := http.StatusInternalServerError, msgFetchAccounts
		if errors.Is(err, account.ErrStoreUnavailable) {
			code, msg = http.StatusServiceUnavailable, msgStoreUnavailable
		}
		s.logger.Warn("failed to list accounts", logging.Err(err))
		writeJSON(w, code, accountsResponse{Accounts: []accountEntry{}, Error: msg})
		return
	}

	out := make([]accountEntry, 0, len(list))
	for _, a := range list {
		out = append(out, accountEntry{
			Email:        a.Email,
			IsPremium:    a.Tier.IsPremium(),
			CreatedAt:    a.CreatedAt,
			LastAccessed: a.LastAccessedAt,
		})
	}
	writeJSON(w, http.StatusOK, accountsResponse{Accounts: out})
}

// handleAvailableAccounts never fails the request: store trouble yields an
// empty list with an explanation.
func (s *Server) handleAvailableAccounts(w http.ResponseWriter, r *http.Request) {
	listing, err := s.mailbox.Engine().Available(r.Context(), s.sessions.Load(r))
	if err != nil {
		s.logger.Warn("failed to list available accounts", logging.Err(err))
		writeJSON(w, http.StatusOK, availableResponse{
			Accounts: []availableEntry{},
			Error:    "Failed to fetch available accounts",
		})
		return
	}

	resp := availableResponse{Accounts: make([]availableEntry, 0, len(listing.Accounts))}
	for _, a := range listing.Accounts {
		resp.Accounts = append(resp.Accounts, availableEntry{Email: a.Email, IsPremium: a.Tier.IsPremium()})
	}
	if listing.Degraded {
		resp.Message = msgStoreUnavailableLi
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	s.changeTier(w, r, account.TierPremium, "locked", msgLockAccount)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	s.changeTier(w, r, account.TierPublic, "unlocked", msgUnlockAccount)
}

func (s *Server) changeTier(w http.ResponseWriter, r *http.Request, tier account.Tier, verb, failMsg string) {
	id := s.sessions.Load(r)
	email := r.PathValue("email")

	change, err := s.visibility.SetTier(r.Context(), actor(id), email, tier)
	if err != nil {
		s.fail(w, r, err, failMsg)
		return
	}

	writeJSON(w, http.StatusOK, tierChangeResponse{
		Success: true,
		Message: fmt.Sprintf("Account %s %s", change.Account.Email, verb),
		Account: availableEntry{
			Email:     change.Account.Email,
			IsPremium: change.Account.Tier.IsPremium(),
		},
	})
}

// fail writes the mapped error. Denials are already logged by the engine.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	code, msg := statusForError(err, fallback)
	if _, denied := access.DenyReason(err); !denied && code >= http.StatusInternalServerError {
		s.logger.Warn("request failed",
			logging.Operation(r.Pattern),
			slog.Int(logging.KeyStatus, code),
			logging.Err(err))
	}
	writeError(w, code, msg)
}

// actor names the admin in audit events. Admin sessions without a signed-in
// user are recorded as "admin".
func actor(id access.Identity) string {
	if id.UserEmail != "" {
		return id.UserEmail
	}
	return "admin"
}

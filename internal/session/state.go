package session

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	stateCookieName = "inboxshare_oauth_state"
	stateMaxAge     = 10 * time.Minute
)

// NewState issues an OAuth state nonce and stores it in a short-lived cookie.
func (m *Manager) NewState(w http.ResponseWriter) string {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   int(stateMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return state
}

// VerifyState reports whether state matches the nonce cookie on r, and
// clears the cookie either way.
func (m *Manager) VerifyState(w http.ResponseWriter, r *http.Request, state string) bool {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/auth/google",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
	})

	c, err := r.Cookie(stateCookieName)
	if err != nil || c.Value == "" || state == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Value), []byte(state)) == 1
}

package server

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"

	"github.com/teemow/inboxshare/internal/instrumentation"
	"github.com/teemow/inboxshare/internal/logging"
)

func (s *Server) handleAuthStart(w http.ResponseWriter, r *http.Request) {
	state := s.sessions.NewState(w)
	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusFound)
}

// HeaderProvisioning is set on the callback redirect when the account record
// was not written. Its value is the provisioning outcome.
const HeaderProvisioning = "X-Account-Provisioning"

// handleAuthCallback completes the consent flow: it verifies state,
// exchanges the code, resolves the verified email, provisions the account
// and binds the session. The session is bound even when provisioning is
// degraded or rejected, since the identity itself was verified by Google.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		s.logger.Info("consent declined", slog.String("oauth_error", errParam))
		writeError(w, http.StatusBadRequest, msgAuthFailed)
		return
	}

	code := q.Get("code")
	if code == "" {
		s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		writeError(w, http.StatusBadRequest, msgMissingCode)
		return
	}
	if !s.sessions.VerifyState(w, r, q.Get("state")) {
		s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		s.logger.Warn("oauth state mismatch")
		writeError(w, http.StatusBadRequest, msgInvalidState)
		return
	}

	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		s.logger.Warn("authorization code exchange failed", logging.Err(err))
		writeError(w, http.StatusInternalServerError, msgAuthFailed)
		return
	}
	email, err := s.oauth.UserEmail(ctx, tok)
	if err != nil {
		s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		s.logger.Warn("userinfo lookup failed", logging.Err(err))
		writeError(w, http.StatusInternalServerError, msgAuthFailed)
		return
	}
	s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)

	res, err := s.provisioner.Provision(ctx, email, tok.RefreshToken)
	if !res.Persisted() {
		w.Header().Set(HeaderProvisioning, string(res.Outcome))
		s.logger.Warn("signing in without a stored account",
			logging.UserHash(email),
			slog.String("outcome", string(res.Outcome)),
			logging.Err(err))
	}

	id := s.sessions.Load(r)
	id.UserEmail = email
	if err := s.sessions.Save(w, id); err != nil {
		s.logger.Error("failed to save session", logging.Err(err))
		writeError(w, http.StatusInternalServerError, msgAuthFailed)
		return
	}

	s.logger.Info("user signed in", logging.UserHash(email))
	http.Redirect(w, r, s.redirect, http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

type adminLoginRequest struct {
	Password string `json:"password"`
}

type adminLoginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// handleAdminLogin elevates the current session to admin. The user email
// already on the session, if any, is kept.
func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := s.sessions.Load(r)

	password, err := readPassword(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result := instrumentation.AdminLoginSuccess
	switch {
	case !s.admin.Enabled():
		result = instrumentation.AdminLoginDisabled
	case !s.admin.Verify(password):
		result = instrumentation.AdminLoginFailure
	}

	s.metrics.RecordAdminLogin(ctx, result)
	s.audit.LogEvent(ctx, instrumentation.AuditEvent{
		Action: instrumentation.AuditActionAdminLogin,
		Actor:  id.UserEmail,
		Result: result,
	}.WithSpanContext(ctx))

	if result != instrumentation.AdminLoginSuccess {
		s.logger.Warn("admin login refused", slog.String("result", result))
		writeError(w, http.StatusUnauthorized, msgInvalidAdminPass)
		return
	}

	id.IsAdmin = true
	if err := s.sessions.Save(w, id); err != nil {
		s.logger.Error("failed to save session", logging.Err(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	writeJSON(w, http.StatusOK, adminLoginResponse{Success: true, Message: "Admin login successful"})
}

// readPassword accepts a JSON body or a form post.
func readPassword(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req adminLoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", err
		}
		return req.Password, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.PostForm.Get("password"), nil
}

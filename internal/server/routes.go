package server

import "net/http"

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /auth/google", s.handleAuthStart)
	mux.HandleFunc("GET /auth/google/callback", s.handleAuthCallback)
	mux.HandleFunc("GET /logout", s.handleLogout)

	mux.HandleFunc("GET /inbox/{email}", s.handleInbox)
	mux.HandleFunc("GET /email/{email}/{messageId}", s.handleMessage)
	mux.HandleFunc("GET /available-accounts", s.handleAvailableAccounts)

	mux.HandleFunc("POST /admin/login", s.handleAdminLogin)
	mux.HandleFunc("GET /accounts", s.requireAdmin(s.handleAccounts))
	mux.HandleFunc("POST /admin/lock/{email}", s.requireAdmin(s.handleLock))
	mux.HandleFunc("POST /admin/unlock/{email}", s.requireAdmin(s.handleUnlock))

	s.health.RegisterHealthEndpoints(mux)

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, msgRouteNotFound)
	})
}

// requireAdmin rejects callers whose session is not admin.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.sessions.Load(r).IsAdmin {
			writeError(w, http.StatusForbidden, msgAdminRequired)
			return
		}
		next(w, r)
	}
}

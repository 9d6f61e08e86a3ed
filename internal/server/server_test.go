package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/teemow/inboxshare/internal/access"
	"github.com/teemow/inboxshare/internal/account"
	"github.com/teemow/inboxshare/internal/delegate"
	"github.com/teemow/inboxshare/internal/gmail"
	"github.com/teemow/inboxshare/internal/google"
	"github.com/teemow/inboxshare/internal/mailbox"
	"github.com/teemow/inboxshare/internal/provision"
	"github.com/teemow/inboxshare/internal/session"
	"github.com/teemow/inboxshare/internal/visibility"
)

const adminPassword = "correct-horse"

type fakeAuth struct {
	email       string
	refresh     string
	exchangeErr error
}

func (f *fakeAuth) AuthCodeURL(state string) string {
	return "https://accounts.example.com/o/oauth2/auth?state=" + url.QueryEscape(state)
}

func (f *fakeAuth) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth2.Token{AccessToken: "at-" + code, RefreshToken: f.refresh}, nil
}

func (f *fakeAuth) UserEmail(context.Context, *oauth2.Token) (string, error) {
	return f.email, nil
}

type fixture struct {
	server   *Server
	store    *account.MemoryStore
	sessions *session.Manager
	auth     *fakeAuth
}

func gmailHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]string{{"id": "m1"}}})
	})
	mux.HandleFunc("GET /gmail/v1/users/me/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "m1",
			"snippet": "see you",
			"payload": map[string]any{
				"mimeType": "text/plain",
				"headers": []map[string]string{
					{"name": "Subject", "value": "Lunch"},
					{"name": "From", "value": "amy@example.com"},
				},
				"body": map[string]string{"data": base64.URLEncoding.EncodeToString([]byte("noon?"))},
			},
		})
	})
	return mux
}

// newFixture seeds pub@x.com (public) and vip@x.com (premium).
func newFixture(t *testing.T, gmailAPI http.Handler, limiter *RateLimiter) *fixture {
	t.Helper()
	api := httptest.NewServer(gmailAPI)
	t.Cleanup(api.Close)

	store := account.NewMemoryStore()
	ctx := context.Background()
	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, e := range []string{"pub@x.com", "vip@x.com"} {
		_, err := store.UpsertByEmail(ctx, e, account.Update{RefreshToken: "rt", AccessedAt: at.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
	}
	_, err := store.SetVisibilityTier(ctx, "vip@x.com", account.TierPremium)
	require.NoError(t, err)

	sessions, err := session.NewManager(session.Config{Secret: []byte(strings.Repeat("k", session.MinSecretLength))})
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	admin, err := session.NewAdminVerifier(string(hash))
	require.NoError(t, err)

	auth := &fakeAuth{email: "new@x.com", refresh: "rt-new"}
	svc := mailbox.NewService(
		access.NewEngine(store),
		delegate.NewAuthorizer(&google.StaticTokenProvider{AccessToken: "at"}, store),
		&gmail.Factory{Endpoint: api.URL + "/"},
	)

	srv, err := New(Config{
		Sessions:    sessions,
		Admin:       admin,
		OAuth:       auth,
		Provisioner: provision.New(store),
		Mailbox:     svc,
		Visibility:  visibility.New(store),
		Store:       store,
		RateLimiter: limiter,
	})
	require.NoError(t, err)

	return &fixture{server: srv, store: store, sessions: sessions, auth: auth}
}

func (f *fixture) do(t *testing.T, method, target string, id *access.Identity, body string, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if id != nil {
		token, err := f.sessions.Encode(*id)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestNew_RequiresComponents(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session manager is required")
	assert.Contains(t, err.Error(), "mailbox service is required")
}

func TestServer_Inbox(t *testing.T) {
	f := newFixture(t, gmailHandler(), nil)

	tests := []struct {
		name     string
		target   string
		id       *access.Identity
		wantCode int
		wantErr  string
	}{
		{name: "anonymous reads public", target: "/inbox/pub@x.com", wantCode: http.StatusOK},
		{name: "anonymous blocked from premium", target: "/inbox/vip@x.com", wantCode: http.StatusForbidden, wantErr: "Access denied. This is a premium account."},
		{name: "owner reads premium", target: "/inbox/VIP@x.com", id: &access.Identity{UserEmail: "vip@x.com"}, wantCode: http.StatusOK},
		{name: "admin reads premium", target: "/inbox/vip@x.com", id: &access.Identity{IsAdmin: true}, wantCode: http.StatusOK},
		{name: "other user blocked", target: "/inbox/vip@x.com", id: &access.Identity{UserEmail: "pub@x.com"}, wantCode: http.StatusForbidden},
		{name: "missing account", target: "/inbox/ghost@x.com", id: &access.Identity{IsAdmin: true}, wantCode: http.StatusNotFound, wantErr: "Account not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.target, tt.id, "", "")
			assert.Equal(t, tt.wantCode, rec.Code)
			body := decode(t, rec)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, body["error"])
				return
			}
			emails, ok := body["emails"].([]any)
			require.True(t, ok)
			require.Len(t, emails, 1)
			assert.Equal(t, "Lunch", emails[0].(map[string]any)["subject"])
			assert.NotEmpty(t, body["account"])
		})
	}
}

func TestServer_InboxRemoteFailure(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}), nil)

	rec := f.do(t, http.MethodGet, "/inbox/pub@x.com", nil, "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to fetch inbox", decode(t, rec)["error"])

	rec = f.do(t, http.MethodGet, "/email/pub@x.com/m1", nil, "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to fetch email", decode(t, rec)["error"])
}

func TestServer_InboxStoreUnavailable(t *testing.T) {
	f := newFixture(t, gmailHandler(), nil)
	require.NoError(t, f.store.Close())

	rec := f.do(t, http.MethodGet, "/inbox/pub@x.com", nil, "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Database temporarily unavailable. Please try again later.", decode(t, rec)["error"])
}

func TestServer_Message(t *testing.T) {
	f := newFixture(t, gmailHandler(), nil)

	rec := f.do(t, http.MethodGet, "/email/pub@x.com/m1", nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "m1", body["id"])
	assert.Equal(t, "noon?", body["body"])
	assert.Equal(t, "amy@example.com", body["from"])

	rec = f.do(t, http.MethodGet, "/email/vip@x.com/m1", nil, "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_Accounts(t *testing.T) {
	f := newFixture(t, gmailHandler(), nil)

	rec := f.do(t, http.MethodGet, "/accounts", &access.Identity{UserEmail: "vip@x.com"}, "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Access denied. Admin privileges required.", decode(t, rec)["error"])

	rec = f.do(t, http.MethodGet, "/accounts", &access.Identity{IsAdmin: true}, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	accounts := decode(t, rec)["accounts"].([]any)
	require.Len(t, accounts, 2)
	first := accounts[0].(map[string]any)
	assert.Equal(t, "vip@x.com", first["email"], "newest first")
	assert.Equal(t, true, first["isPremium"])
	assert.Contains(t, first, "createdAt")
	assert.Contains(t, first, "lastAccessed")
	assert.NotContains(t, rec.Body.String(), "refresh")

	require.NoError(t, f.store.Close())
	rec = f.do(t, http.MethodGet, "/accounts", &access.Identity{IsAdmin: true}, "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, []any{}, decode(t, rec)["accounts"])
}

func TestServer_AvailableAccounts(t *testing.T) {
	f := newFixture(t, gmailHandler(), nil)

	tests := []struct {
		name string
		id   *access.Identity
		want []string
	}{
		{name: "anonymous", want: []string{"pub@x.com"}},
		{name: "owner", id: &access.Identity{UserEmail: "vip@x.com"}, want: []string{"pub@x.com", "vip@x.com"}},
		{name: "admin", id: &access.Identity{IsAdmin: true}, want: []string{"pub@x.com", "vip@x.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/available-accounts", tt.id, "", "")
			require.Equal(t, http.StatusOK, rec.Code)
			var got []string
			for _, a := range decode(t, rec)["accounts"].([]any) {
				got = append(got, a.(map[string]any)["email"].(string))
			}
			assert.Equal(t, tt.want, got)
		})
	}

	require.NoError(t, f.store.Close())
	rec := f.do(t, http.MethodGet, "/available-accounts", nil, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, []any{}, body["accounts"])
	assert.Equal(t, "Database temporarily unavailable", body["message"])
}

func TestServer_LockUnlock(t *testing.T) {
	f := newFixture(t, gmailHandler(), nil)
	admin := &access.Identity{IsAdmin: true}

	rec := f.do(t, http.MethodPost, "/admin/lock/pub@x.com", &access.Identity{UserEmail: "pub@x.com"}, "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/admin/lock/PUB@x.com", admin, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Account pub@x.com locked", body["message"])
	assert.Equal(t, true, body["account"].(map[string]any)["isPremium"])

	rec = f.do(t, http.MethodGet, "/inbox/pub@x.com", nil, "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/admin/unlock/pub@x.com", admin, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Account pub@x.com unlocked", decode(t, rec)["message"])

	rec = f.do(t, http.MethodPost, "/admin/lock/ghost@x.com", admin, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Account not found", decode(t, rec)["error"])
}

func TestServer_AdminLogin(t *testing.T) {
	f := newFixture(t, gmailHandler(), nil)

	rec := f.do(t, http.MethodPost, "/admin/login", nil, `{"password":"nope"}`, "application/json")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid admin password", decode(t, rec)["error"])
	assert.Empty(t, rec.Result().Cookies())

	user := &access.Identity{UserEmail: "vip@x.com"}
	rec = f.do(t, http.MethodPost, "/admin/login", user, "password="+adminPassword, "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	id, err := f.sessions.Decode(cookies[0].Value)
	require.NoError(t, err)
	assert.True(t, id.IsAdmin)
	assert.Equal(t, "vip@x.com", id.UserEmail, "signed-in user is kept")
}

func TestServer_OAuthFlow(t *testing.T) {
	f := newFixture(t, gmailHandler(), nil)
	h := f.server.Handler()

	start := httptest.NewRecorder()
	h.ServeHTTP(start, httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	require.Equal(t, http.StatusFound, start.Code)
	loc, err := url.Parse(start.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	stateCookies := start.Result().Cookies()
	require.Len(t, stateCookies, 1)

	callback := func(query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?"+query, nil)
		for _, c := range stateCookies {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := callback("state=" + url.QueryEscape(state))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = callback("code=abc&state=forged")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = callback("code=abc&state=" + url.QueryEscape(state))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Empty(t, rec.Header().Get(HeaderProvisioning))

	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.DefaultCookieName {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)
	assert.True(t, sessionCookie.HttpOnly)
	id, err := f.sessions.Decode(sessionCookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", id.UserEmail)

	a, err := f.store.FindByEmail(context.Background(), "new@x.com")
	require.NoError(t, err)
	assert.Equal(t, "rt-new", a.RefreshToken)
	assert.Equal(t, account.TierPublic, a.Tier)
}

func TestServer_OAuthCallbackBindsSessionWhenStoreIsDown(t *testing.T) {
	f := newFixture(t, gmailHandler(), nil)
	require.NoError(t, f.store.Close())

	start := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(start, httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	loc, err := url.Parse(start.Header().Get("Location"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state="+url.QueryEscape(loc.Query().Get("state")), nil)
	for _, c := range start.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "degraded", rec.Header().Get(HeaderProvisioning))

	var bound bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.DefaultCookieName && c.Value != "" {
			bound = true
		}
	}
	assert.True(t, bound)
}

func TestServer_OAuthCallbackWithoutCredentialForNewAccount(t *testing.T) {
	f := newFixture(t, gmailHandler(), nil)
	f.auth.refresh = ""

	start := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(start, httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	loc, err := url.Parse(start.Header().Get("Location"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state="+url.QueryEscape(loc.Query().Get("state")), nil)
	for _, c := range start.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "rejected", rec.Header().Get(HeaderProvisioning))

	_, err = f.store.FindByEmail(context.Background(), "new@x.com")
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestServer_OAuthExchangeFailure(t *testing.T) {
	f := newFixture(t, gmailHandler(), nil)
	f.auth.exchangeErr = errors.New("invalid_grant")

	start := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(start, httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	loc, err := url.Parse(start.Header().Get("Location"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state="+url.QueryEscape(loc.Query().Get("state")), nil)
	for _, c := range start.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Authentication failed", decode(t, rec)["error"])
}

func TestServer_Logout(t *testing.T) {
	f := newFixture(t, gmailHandler(), nil)

	rec := f.do(t, http.MethodGet, "/logout", &access.Identity{UserEmail: "vip@x.com"}, "", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestServer_UnknownRoute(t *testing.T) {
	f := newFixture(t, gmailHandler(), nil)

	rec := f.do(t, http.MethodGet, "/nope", nil, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Route not found", decode(t, rec)["error"])
}

func TestServer_RateLimit(t *testing.T) {
	f := newFixture(t, gmailHandler(), NewRateLimiter(2, time.Minute, false))

	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodGet, "/healthz", nil, "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/healthz", nil, "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Rate limit exceeded. Please try again later.", decode(t, rec)["error"])
}

func TestServer_Readiness(t *testing.T) {
	f := newFixture(t, gmailHandler(), nil)

	rec := f.do(t, http.MethodGet, "/readyz", nil, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, f.store.Close())
	rec = f.do(t, http.MethodGet, "/readyz", nil, "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", decode(t, rec)["checks"].(map[string]any)["store"])

	rec = f.do(t, http.MethodGet, "/healthz", nil, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{name: "not found", err: &access.DenyError{Reason: access.ReasonNotFound}, wantCode: 404, wantMsg: "Account not found"},
		{name: "unavailable", err: &access.DenyError{Reason: access.ReasonServiceUnavailable}, wantCode: 503},
		{name: "premium", err: &access.DenyError{Reason: access.ReasonPremiumAccessDenied}, wantCode: 403},
		{name: "remote", err: &delegate.RemoteError{Op: "call", Err: errors.New("boom")}, wantCode: 500, wantMsg: "fallback"},
		{name: "store not found", err: account.ErrNotFound, wantCode: 404},
		{name: "store down", err: account.ErrStoreUnavailable, wantCode: 503},
		{name: "corrupt record", err: account.ErrCorrupt, wantCode: 500, wantMsg: "fallback"},
		{name: "deadline", err: context.DeadlineExceeded, wantCode: 504},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := statusForError(tt.err, "fallback")
			assert.Equal(t, tt.wantCode, code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, msg)
			}
		})
	}
}

package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/teemow/inboxshare/internal/access"
)

var testSecret = []byte(strings.Repeat("k", MinSecretLength))

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{Secret: testSecret})
	require.NoError(t, err)
	return m
}

func TestNewManager_RejectsShortSecret(t *testing.T) {
	_, err := NewManager(Config{Secret: []byte("short")})
	assert.Error(t, err)
}

func TestManager_RoundTripThroughCookie(t *testing.T) {
	m := newManager(t)

	rec := httptest.NewRecorder()
	require.NoError(t, m.Save(rec, access.Identity{UserEmail: " Foo@Bar.com", IsAdmin: true}))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, DefaultCookieName, cookies[0].Name)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	assert.Equal(t, access.Identity{UserEmail: "foo@bar.com", IsAdmin: true}, m.Load(req))
}

func TestManager_LoadFallsBackToAnonymous(t *testing.T) {
	m := newManager(t)
	other, err := NewManager(Config{Secret: []byte(strings.Repeat("z", MinSecretLength))})
	require.NoError(t, err)

	foreign, err := other.Encode(access.Identity{IsAdmin: true})
	require.NoError(t, err)

	expired := newManager(t)
	expired.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	old, err := expired.Encode(access.Identity{IsAdmin: true})
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Admin: true})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
	}{
		{name: "garbage", value: "not-a-jwt"},
		{name: "other secret", value: foreign},
		{name: "expired", value: old},
		{name: "alg none", value: unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Decode(tt.value)
			assert.ErrorIs(t, err, ErrInvalidSession)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: tt.value})
			assert.True(t, m.Load(req).Anonymous())
		})
	}

	assert.True(t, m.Load(httptest.NewRequest(http.MethodGet, "/", nil)).Anonymous())
}

func TestManager_Clear(t *testing.T) {
	m := newManager(t)
	rec := httptest.NewRecorder()
	m.Clear(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestManager_State(t *testing.T) {
	m := newManager(t)

	rec := httptest.NewRecorder()
	state := m.NewState(rec)
	require.NotEmpty(t, state)
	cookie := rec.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state="+state, nil)
	req.AddCookie(cookie)
	assert.True(t, m.VerifyState(httptest.NewRecorder(), req, state))
	assert.False(t, m.VerifyState(httptest.NewRecorder(), req, "forged"))
	assert.False(t, m.VerifyState(httptest.NewRecorder(), req, ""))

	bare := httptest.NewRequest(http.MethodGet, "/auth/google/callback", nil)
	assert.False(t, m.VerifyState(httptest.NewRecorder(), bare, state))
}

func TestAdminVerifier(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	v, err := NewAdminVerifier(string(hash))
	require.NoError(t, err)
	assert.True(t, v.Enabled())
	assert.True(t, v.Verify("correct horse"))
	assert.False(t, v.Verify("wrong"))
	assert.False(t, v.Verify(""))

	disabled, err := NewAdminVerifier("")
	require.NoError(t, err)
	assert.False(t, disabled.Enabled())
	assert.False(t, disabled.Verify("anything"))

	_, err = NewAdminVerifier("plaintext-password")
	assert.Error(t, err)

	var nilVerifier *AdminVerifier
	assert.False(t, nilVerifier.Verify("x"))
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	v, err := NewAdminVerifier(hash)
	require.NoError(t, err)
	assert.True(t, v.Verify("s3cret-pass"))

	_, err = HashPassword("short")
	assert.Error(t, err)
}

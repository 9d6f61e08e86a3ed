package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/teemow/inboxshare/internal/access"
	"github.com/teemow/inboxshare/internal/account"
)

const (
	// DefaultCookieName is the session cookie name.
	DefaultCookieName = "inboxshare_session"

	// DefaultMaxAge is the session lifetime.
	DefaultMaxAge = 24 * time.Hour

	// MinSecretLength is the minimum HMAC key size in bytes.
	MinSecretLength = 32

	issuer = "inboxshare"
)

// ErrInvalidSession is returned by Decode for any token that does not verify.
var ErrInvalidSession = errors.New("invalid session")

// Config configures a Manager.
type Config struct {
	Secret     []byte
	MaxAge     time.Duration
	Secure     bool
	CookieName string
}

// Claims is the JWT payload.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Admin bool   `json:"admin,omitempty"`
}

// Manager reads and writes session cookies.
type Manager struct {
	secret     []byte
	maxAge     time.Duration
	secure     bool
	cookieName string
	now        func() time.Time
}

// NewManager creates a Manager. The secret must be at least MinSecretLength
// bytes.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)
	}
	m := &Manager{
		secret:     cfg.Secret,
		maxAge:     cfg.MaxAge,
		secure:     cfg.Secure,
		cookieName: cfg.CookieName,
		now:        time.Now,
	}
	if m.maxAge <= 0 {
		m.maxAge = DefaultMaxAge
	}
	if m.cookieName == "" {
		m.cookieName = DefaultCookieName
	}
	return m, nil
}

// Encode signs id into a token.
func (m *Manager) Encode(id access.Identity) (string, error) {
	now := m.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
		},
		Email: account.NormalizeEmail(id.UserEmail),
		Admin: id.IsAdmin,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return token, nil
}

// Decode verifies token and returns the identity it carries.
func (m *Manager) Decode(token string) (access.Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return access.Identity{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	return access.Identity{UserEmail: claims.Email, IsAdmin: claims.Admin}, nil
}

// Load returns the identity of r, or an anonymous identity.
func (m *Manager) Load(r *http.Request) access.Identity {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return access.Identity{}
	}
	id, err := m.Decode(c.Value)
	if err != nil {
		return access.Identity{}
	}
	return id
}

// Save writes id as the session cookie.
func (m *Manager) Save(w http.ResponseWriter, id access.Identity) error {
	token, err := m.Encode(id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear removes the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

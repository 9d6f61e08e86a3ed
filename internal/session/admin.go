package session

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// AdminVerifier checks the admin password. The zero value rejects everything.
type AdminVerifier struct {
	hash []byte
}

// NewAdminVerifier creates a verifier for a bcrypt hash. An empty hash
// disables admin login.
func NewAdminVerifier(hash string) (*AdminVerifier, error) {
	if hash == "" {
		return &AdminVerifier{}, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid admin password hash: %w", err)
	}
	return &AdminVerifier{hash: []byte(hash)}, nil
}

// Enabled reports whether an admin password is configured.
func (v *AdminVerifier) Enabled() bool {
	return v != nil && len(v.hash) > 0
}

// Verify reports whether password matches.
func (v *AdminVerifier) Verify(password string) bool {
	if !v.Enabled() || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(v.hash, []byte(password)) == nil
}

// HashPassword returns a bcrypt hash suitable for the admin password setting.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

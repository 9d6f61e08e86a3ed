package account

import (
	"fmt"
	"strings"
	"time"
)

// Tier controls who may read an account without owning it.
type Tier string

const (
	// TierPublic accounts are readable by any caller, including anonymous ones.
	TierPublic Tier = "PUBLIC"
	// TierPremium accounts are readable only by their owner or an admin.
	TierPremium Tier = "PREMIUM"
)

// ParseTier parses a tier name case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToUpper(strings.TrimSpace(s))) {
	case TierPublic:
		return TierPublic, nil
	case TierPremium:
		return TierPremium, nil
	default:
		return "", fmt.Errorf("unknown visibility tier %q", s)
	}
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierPublic || t == TierPremium
}

// IsPremium is a convenience for the JSON surfaces that expose the tier as a flag.
func (t Tier) IsPremium() bool {
	return t == TierPremium
}

// Account is one delegated mailbox identity.
//
// RefreshToken is the long-lived delegated credential. It is never empty on a
// persisted Account and must not leave the process except towards the
// provider's token endpoint.
type Account struct {
	Email          string    `json:"email"`
	RefreshToken   string    `json:"refresh_token"`
	Tier           Tier      `json:"tier"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// Summary returns the credential-free view of the account.
func (a *Account) Summary() Summary {
	return Summary{
		Email:          a.Email,
		Tier:           a.Tier,
		CreatedAt:      a.CreatedAt,
		LastAccessedAt: a.LastAccessedAt,
	}
}

// Summary is an Account without its credential, safe to list and display.
type Summary struct {
	Email          string
	Tier           Tier
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// NormalizeEmail lowercases and trims an email address. All store lookups and
// identity comparisons go through it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SameEmail reports whether two addresses are equal after normalization.
// Empty addresses never match.
func SameEmail(a, b string) bool {
	na, nb := NormalizeEmail(a), NormalizeEmail(b)
	return na != "" && na == nb
}

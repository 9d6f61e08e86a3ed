package access

import (
	"time"

	"github.com/google/uuid"

	"github.com/teemow/inboxshare/internal/account"
)

// Basis records which predicate allowed a Grant.
type Basis string

const (
	BasisOwner  Basis = "owner"
	BasisAdmin  Basis = "admin"
	BasisPublic Basis = "public"
)

// Grant proves that policy evaluation passed for one account. It carries the
// delegated credential but never exposes it through String or JSON.
type Grant struct {
	id         string
	email      string
	tier       account.Tier
	credential string
	basis      Basis
	issuedAt   time.Time
}

func newGrant(a *account.Account, basis Basis, now time.Time) *Grant {
	return &Grant{
		id:         uuid.NewString(),
		email:      a.Email,
		tier:       a.Tier,
		credential: a.RefreshToken,
		basis:      basis,
		issuedAt:   now,
	}
}

// ID uniquely identifies the grant in logs and audit events.
func (g *Grant) ID() string { return g.id }

// Email is the normalized account the grant applies to.
func (g *Grant) Email() string { return g.email }

// Tier is the account tier at evaluation time.
func (g *Grant) Tier() account.Tier { return g.tier }

// Basis is the predicate that allowed access.
func (g *Grant) Basis() Basis { return g.basis }

// IssuedAt is when the grant was minted.
func (g *Grant) IssuedAt() time.Time { return g.issuedAt }

// Valid reports whether g was minted by this package.
func (g *Grant) Valid() bool {
	return g != nil && g.id != "" && g.email != ""
}

// RefreshToken returns the delegated credential bound to the grant.
func (g *Grant) RefreshToken() string {
	if g == nil {
		return ""
	}
	return g.credential
}

// String never includes the credential.
func (g *Grant) String() string {
	if g == nil {
		return "<nil grant>"
	}
	return "grant " + g.id + " (" + string(g.basis) + ")"
}

// MarshalJSON hides the grant from accidental serialization.
func (g *Grant) MarshalJSON() ([]byte, error) {
	return []byte(`"` + g.String() + `"`), nil
}

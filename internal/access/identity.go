package access

import "github.com/teemow/inboxshare/internal/account"

// Identity is the request-scoped session identity of a caller.
// The zero value is an anonymous caller.
type Identity struct {
	// UserEmail is set once a Google authorization has been bound to the
	// session. Empty for anonymous callers.
	UserEmail string

	// IsAdmin is asserted by an out-of-band admin login.
	IsAdmin bool
}

// Anonymous reports whether the caller has neither a user nor admin claim.
func (id Identity) Anonymous() bool {
	return account.NormalizeEmail(id.UserEmail) == "" && !id.IsAdmin
}

// Owns reports whether the caller's bound email is email.
func (id Identity) Owns(email string) bool {
	return account.SameEmail(id.UserEmail, email)
}

package account

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrNotFound is returned when no account exists for a normalized email.
	ErrNotFound = errors.New("account not found")

	// ErrStoreUnavailable wraps any failure to reach the backing store. It is
	// never used for a missing record.
	ErrStoreUnavailable = errors.New("account store unavailable")

	// ErrCredentialRequired is returned by UpsertByEmail when it would create
	// an account without a delegated credential.
	ErrCredentialRequired = errors.New("delegated credential required to create account")

	// ErrInvalidEmail is returned for an empty email after normalization.
	ErrInvalidEmail = errors.New("email is required")

	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("account record is corrupt")

	errStoreClosed = errors.New("store is closed")
)

// Store is the persistent keyed record store for accounts. Every method
// normalizes the email it is given.
//
// UpsertByEmail and SetVisibilityTier are atomic per email; concurrent calls
// for the same email are serialized by the backend.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	UpsertByEmail(ctx context.Context, email string, update Update) (*Account, error)
	UpdateLastAccessed(ctx context.Context, email string, at time.Time) error
	SetVisibilityTier(ctx context.Context, email string, tier Tier) (*Account, error)
	ListAll(ctx context.Context, filter Filter) ([]Summary, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Update carries the partial fields written by UpsertByEmail.
type Update struct {
	// RefreshToken replaces the stored credential when non-empty. An empty
	// value keeps the stored credential.
	RefreshToken string

	// AccessedAt is recorded as LastAccessedAt, and as CreatedAt when the
	// account is new.
	AccessedAt time.Time
}

// Order selects the ordering of ListAll results.
type Order int

const (
	// OrderByEmail sorts ascending by email.
	OrderByEmail Order = iota
	// OrderByCreatedDesc sorts newest first.
	OrderByCreatedDesc
)

// Filter selects which accounts ListAll returns.
//
// An account matches when All is set, when it is public, or when its email
// equals Owner.
type Filter struct {
	All   bool
	Owner string
	Order Order
}

// Match reports whether a summary passes the filter.
func (f Filter) Match(s Summary) bool {
	if f.All || s.Tier == TierPublic {
		return true
	}
	return SameEmail(f.Owner, s.Email)
}

// SortSummaries orders summaries in place according to o.
func SortSummaries(list []Summary, o Order) {
	switch o {
	case OrderByCreatedDesc:
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].CreatedAt.Equal(list[j].CreatedAt) {
				return list[i].Email < list[j].Email
			}
			return list[i].CreatedAt.After(list[j].CreatedAt)
		})
	default:
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Email < list[j].Email
		})
	}
}

// applyUpsert computes the record written by UpsertByEmail. existing is nil
// when the account does not exist yet. A present credential is never
// replaced by an absent one.
func applyUpsert(existing *Account, email string, u Update) (*Account, error) {
	at := u.AccessedAt
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	if existing == nil {
		if u.RefreshToken == "" {
			return nil, ErrCredentialRequired
		}
		return &Account{
			Email:          email,
			RefreshToken:   u.RefreshToken,
			Tier:           TierPublic,
			CreatedAt:      at,
			LastAccessedAt: at,
		}, nil
	}

	next := *existing
	if u.RefreshToken != "" {
		next.RefreshToken = u.RefreshToken
	}
	next.LastAccessedAt = at
	return &next, nil
}

// unavailable wraps a backend failure so callers can match ErrStoreUnavailable
// while the cause stays in the message.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", ErrStoreUnavailable, op, err)
}

// isDomainError reports whether err is one of the sentinel results that
// backends pass through unchanged.
func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCredentialRequired) ||
		errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrCorrupt) ||
		errors.Is(err, ErrStoreUnavailable)
}

func normalizeKey(email string) (string, error) {
	key := NormalizeEmail(email)
	if key == "" {
		return "", ErrInvalidEmail
	}
	return key, nil
}

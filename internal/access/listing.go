package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/teemow/inboxshare/internal/account"
	"github.com/teemow/inboxshare/internal/logging"
)

// Listing is the result of Available.
type Listing struct {
	Accounts []account.Summary

	// Degraded is set when the store could not be read and Accounts is
	// empty for that reason rather than because nothing matched.
	Degraded bool
}

// Available lists the accounts id may see, sorted by email: public accounts
// for everyone, plus the caller's own account, or everything for admins.
//
// Unlike Authorize, this read path degrades: a store outage yields an empty
// Degraded listing and a nil error.
func (e *Engine) Available(ctx context.Context, id Identity) (Listing, error) {
	filter := account.Filter{
		All:   id.IsAdmin,
		Owner: account.NormalizeEmail(id.UserEmail),
		Order: account.OrderByEmail,
	}

	listCtx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	defer cancel()

	list, err := e.store.ListAll(listCtx, filter)
	if errors.Is(err, account.ErrStoreUnavailable) {
		e.logger.Warn("account store unavailable, returning empty listing", logging.Err(err))
		return Listing{Accounts: []account.Summary{}, Degraded: true}, nil
	}
	if err != nil {
		return Listing{}, fmt.Errorf("failed to list available accounts: %w", err)
	}
	if list == nil {
		list = []account.Summary{}
	}
	return Listing{Accounts: list}, nil
}

// All lists every account, newest first. It does not check the caller;
// callers gate it behind an admin check. Store outages are returned as
// errors wrapping account.ErrStoreUnavailable.
func (e *Engine) All(ctx context.Context) ([]account.Summary, error) {
	listCtx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	defer cancel()

	list, err := e.store.ListAll(listCtx, account.Filter{All: true, Order: account.OrderByCreatedDesc})
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	if list == nil {
		list = []account.Summary{}
	}
	return list, nil
}

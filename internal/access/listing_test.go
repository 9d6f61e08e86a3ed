package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxshare/internal/account"
)

func summaryEmails(list []account.Summary) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.Email)
	}
	return out
}

func TestEngine_Available(t *testing.T) {
	engine := NewEngine(seedStore(t, map[string]account.Tier{
		"zed@x.com": account.TierPublic,
		"amy@x.com": account.TierPremium,
		"bob@x.com": account.TierPremium,
		"cat@x.com": account.TierPublic,
	}))

	tests := []struct {
		name string
		id   Identity
		want []string
	}{
		{name: "anonymous sees public", id: Identity{}, want: []string{"cat@x.com", "zed@x.com"}},
		{name: "user sees own premium", id: Identity{UserEmail: "BOB@x.com"}, want: []string{"bob@x.com", "cat@x.com", "zed@x.com"}},
		{name: "unknown user sees public", id: Identity{UserEmail: "new@x.com"}, want: []string{"cat@x.com", "zed@x.com"}},
		{name: "admin sees all", id: Identity{IsAdmin: true}, want: []string{"amy@x.com", "bob@x.com", "cat@x.com", "zed@x.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listing, err := engine.Available(context.Background(), tt.id)
			require.NoError(t, err)
			assert.False(t, listing.Degraded)
			assert.Equal(t, tt.want, summaryEmails(listing.Accounts))
		})
	}
}

func TestEngine_AvailableDegrades(t *testing.T) {
	store := account.NewMemoryStore()
	require.NoError(t, store.Close())

	listing, err := NewEngine(store).Available(context.Background(), Identity{IsAdmin: true})
	require.NoError(t, err)
	assert.True(t, listing.Degraded)
	assert.NotNil(t, listing.Accounts)
	assert.Empty(t, listing.Accounts)
}

func TestEngine_All(t *testing.T) {
	engine := NewEngine(account.NewMemoryStore())
	list, err := engine.All(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	store := account.NewMemoryStore()
	require.NoError(t, store.Close())
	_, err = NewEngine(store).All(context.Background())
	assert.ErrorIs(t, err, account.ErrStoreUnavailable)
}

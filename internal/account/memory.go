package account

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps accounts in process memory. Data is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
	}
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	key, err := normalizeKey(email)
	if err != nil {
		return nil, err
	}
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) UpsertByEmail(ctx context.Context, email string, update Update) (*Account, error) {
	key, err := normalizeKey(email)
	if err != nil {
		return nil, err
	}
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := applyUpsert(s.accounts[key], key, update)
	if err != nil {
		return nil, err
	}
	s.accounts[key] = next
	cp := *next
	return &cp, nil
}

func (s *MemoryStore) UpdateLastAccessed(ctx context.Context, email string, at time.Time) error {
	key, err := normalizeKey(email)
	if err != nil {
		return err
	}
	if err := s.check(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[key]
	if !ok {
		return ErrNotFound
	}
	a.LastAccessedAt = at.UTC()
	return nil
}

func (s *MemoryStore) SetVisibilityTier(ctx context.Context, email string, tier Tier) (*Account, error) {
	key, err := normalizeKey(email)
	if err != nil {
		return nil, err
	}
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[key]
	if !ok {
		return nil, ErrNotFound
	}
	a.Tier = tier
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAll(ctx context.Context, filter Filter) ([]Summary, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]Summary, 0, len(s.accounts))
	for _, a := range s.accounts {
		if sum := a.Summary(); filter.Match(sum) {
			out = append(out, sum)
		}
	}
	s.mu.RUnlock()

	SortSummaries(out, filter.Order)
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return s.check(ctx)
}

// Close marks the store closed; later calls report ErrStoreUnavailable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return unavailable("reach memory store", err)
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return unavailable("reach memory store", errStoreClosed)
	}
	return nil
}

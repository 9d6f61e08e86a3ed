package account

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultRedialInterval is the minimum time between connection attempts of
// a ReconnectingStore that has not reached its backend yet.
const DefaultRedialInterval = 5 * time.Second

var errNotConnected = errors.New("not connected")

// ReconnectingStore defers connecting to a networked backend. Until dial
// succeeds every call fails with ErrStoreUnavailable, so the service can
// start and run degraded while the backend is down. Once connected, calls go
// straight to the dialed store, which handles its own reconnects.
//
// At most one dial runs at a time and failed dials are retried no sooner
// than the redial interval; callers arriving in between fail fast.
type ReconnectingStore struct {
	dial     func() (Store, error)
	interval time.Duration
	now      func() time.Time

	mu          sync.Mutex
	store       Store
	dialing     bool
	lastAttempt time.Time
	lastErr     error
	closed      bool
}

// NewReconnectingStore makes one connection attempt right away and returns
// the store whether or not it succeeded. Connected reports the outcome.
func NewReconnectingStore(dial func() (Store, error), interval time.Duration) *ReconnectingStore {
	if interval <= 0 {
		interval = DefaultRedialInterval
	}
	r := &ReconnectingStore{dial: dial, interval: interval, now: time.Now}
	_, _ = r.get()
	return r
}

// Connected reports whether the backend has been reached.
func (r *ReconnectingStore) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store != nil
}

func (r *ReconnectingStore) get() (Store, error) {
	r.mu.Lock()
	switch {
	case r.store != nil:
		s := r.store
		r.mu.Unlock()
		return s, nil
	case r.closed:
		r.mu.Unlock()
		return nil, unavailable("connect", errStoreClosed)
	case r.dialing, !r.lastAttempt.IsZero() && r.now().Sub(r.lastAttempt) < r.interval:
		err := r.lastErr
		r.mu.Unlock()
		if err == nil {
			err = errNotConnected
		}
		return nil, unavailable("connect", err)
	}
	r.dialing = true
	r.lastAttempt = r.now()
	r.mu.Unlock()

	s, err := r.dial()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialing = false
	if err != nil {
		r.lastErr = err
		return nil, unavailable("connect", err)
	}
	if r.closed {
		_ = s.Close()
		return nil, unavailable("connect", errStoreClosed)
	}
	r.store = s
	r.lastErr = nil
	return s, nil
}

func (r *ReconnectingStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	s, err := r.get()
	if err != nil {
		return nil, err
	}
	return s.FindByEmail(ctx, email)
}

func (r *ReconnectingStore) UpsertByEmail(ctx context.Context, email string, update Update) (*Account, error) {
	s, err := r.get()
	if err != nil {
		return nil, err
	}
	return s.UpsertByEmail(ctx, email, update)
}

func (r *ReconnectingStore) UpdateLastAccessed(ctx context.Context, email string, at time.Time) error {
	s, err := r.get()
	if err != nil {
		return err
	}
	return s.UpdateLastAccessed(ctx, email, at)
}

func (r *ReconnectingStore) SetVisibilityTier(ctx context.Context, email string, tier Tier) (*Account, error) {
	s, err := r.get()
	if err != nil {
		return nil, err
	}
	return s.SetVisibilityTier(ctx, email, tier)
}

func (r *ReconnectingStore) ListAll(ctx context.Context, filter Filter) ([]Summary, error) {
	s, err := r.get()
	if err != nil {
		return nil, err
	}
	return s.ListAll(ctx, filter)
}

// Ping dials when needed, so readiness probes drive reconnection.
func (r *ReconnectingStore) Ping(ctx context.Context) error {
	s, err := r.get()
	if err != nil {
		return err
	}
	return s.Ping(ctx)
}

func (r *ReconnectingStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.store == nil {
		return nil
	}
	s := r.store
	r.store = nil
	return s.Close()
}

package account

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const accountsBucket = "accounts"

// BoltStore persists accounts in a single bbolt file. bbolt serializes write
// transactions, which gives per-email atomic upserts.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens or creates a bbolt database at path.
func OpenBolt(path string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("bolt store path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(accountsBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create accounts bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	key, err := normalizeKey(email)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable("read account", err)
	}

	var found *Account
	err = s.db.View(func(tx *bbolt.Tx) error {
		a, err := getAccount(tx, key)
		found = a
		return err
	})
	if err != nil {
		return nil, s.wrap("read account", err)
	}
	return found, nil
}

func (s *BoltStore) UpsertByEmail(ctx context.Context, email string, update Update) (*Account, error) {
	key, err := normalizeKey(email)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable("upsert account", err)
	}

	var saved *Account
	err = s.db.Update(func(tx *bbolt.Tx) error {
		existing, err := getAccount(tx, key)
		if err != nil && err != ErrNotFound {
			return err
		}
		next, err := applyUpsert(existing, key, update)
		if err != nil {
			return err
		}
		saved = next
		return putAccount(tx, next)
	})
	if err != nil {
		return nil, s.wrap("upsert account", err)
	}
	return saved, nil
}

func (s *BoltStore) UpdateLastAccessed(ctx context.Context, email string, at time.Time) error {
	_, err := s.mutate(ctx, email, "update last accessed", func(a *Account) {
		a.LastAccessedAt = at.UTC()
	})
	return err
}

func (s *BoltStore) SetVisibilityTier(ctx context.Context, email string, tier Tier) (*Account, error) {
	return s.mutate(ctx, email, "set visibility tier", func(a *Account) {
		a.Tier = tier
	})
}

func (s *BoltStore) ListAll(ctx context.Context, filter Filter) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("list accounts", err)
	}

	var out []Summary
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(accountsBucket))
		if bucket == nil {
			return fmt.Errorf("accounts bucket is missing")
		}
		return bucket.ForEach(func(k, v []byte) error {
			var a Account
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrCorrupt, k, err)
			}
			if sum := a.Summary(); filter.Match(sum) {
				out = append(out, sum)
			}
			return nil
		})
	})
	if err != nil {
		return nil, s.wrap("list accounts", err)
	}

	SortSummaries(out, filter.Order)
	return out, nil
}

func (s *BoltStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return unavailable("ping bolt store", err)
	}
	err := s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(accountsBucket)) == nil {
			return fmt.Errorf("accounts bucket is missing")
		}
		return nil
	})
	if err != nil {
		return unavailable("ping bolt store", err)
	}
	return nil
}

func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// mutate applies fn to an existing account inside one write transaction.
func (s *BoltStore) mutate(ctx context.Context, email, op string, fn func(*Account)) (*Account, error) {
	key, err := normalizeKey(email)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable(op, err)
	}

	var saved *Account
	err = s.db.Update(func(tx *bbolt.Tx) error {
		a, err := getAccount(tx, key)
		if err != nil {
			return err
		}
		fn(a)
		saved = a
		return putAccount(tx, a)
	})
	if err != nil {
		return nil, s.wrap(op, err)
	}
	return saved, nil
}

func (s *BoltStore) wrap(op string, err error) error {
	if isDomainError(err) {
		return err
	}
	return unavailable(op, err)
}

func getAccount(tx *bbolt.Tx, key string) (*Account, error) {
	bucket := tx.Bucket([]byte(accountsBucket))
	if bucket == nil {
		return nil, fmt.Errorf("accounts bucket is missing")
	}
	payload := bucket.Get([]byte(key))
	if payload == nil {
		return nil, ErrNotFound
	}
	var a Account
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return &a, nil
}

func putAccount(tx *bbolt.Tx, a *Account) error {
	bucket := tx.Bucket([]byte(accountsBucket))
	if bucket == nil {
		return fmt.Errorf("accounts bucket is missing")
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	return bucket.Put([]byte(a.Email), payload)
}

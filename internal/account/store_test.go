package account

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func TestMemoryStore(t *testing.T) {
	testStoreConformance(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestBoltStore(t *testing.T) {
	testStoreConformance(t, func(t *testing.T) Store {
		s, err := OpenBolt(filepath.Join(t.TempDir(), "accounts.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStore(t *testing.T) {
	testStoreConformance(t, func(t *testing.T) Store {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "accounts.sqlite"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestValkeyStore(t *testing.T) {
	url := os.Getenv("VALKEY_TEST_URL")
	if url == "" {
		t.Skip("VALKEY_TEST_URL not set")
	}
	testStoreConformance(t, func(t *testing.T) Store {
		s, err := OpenValkey(ValkeyConfig{
			URL:       url,
			KeyPrefix: "inboxshare-test:" + t.Name() + ":",
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMemoryStore_ClosedIsUnavailable(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())

	_, err := s.FindByEmail(context.Background(), "a@x.com")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = s.ListAll(context.Background(), Filter{All: true})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestMemoryStore_CancelledContextIsUnavailable(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.FindByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBoltStore_ClosedIsUnavailable(t *testing.T) {
	s, err := OpenBolt(filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.FindByEmail(context.Background(), "a@x.com")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestBoltStore_CorruptRecord(t *testing.T) {
	s, err := OpenBolt(filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	defer s.Close()

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(accountsBucket)).Put([]byte("bad@x.com"), []byte("{not json"))
	})
	require.NoError(t, err)

	_, err = s.FindByEmail(context.Background(), "bad@x.com")
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
}

func TestSQLiteStore_ClosedIsUnavailable(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "accounts.sqlite"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.FindByEmail(context.Background(), "a@x.com")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Error(t, s.Ping(context.Background()))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     StorageConfig
		wantErr bool
	}{
		{name: "default is memory", cfg: StorageConfig{}},
		{name: "memory", cfg: StorageConfig{Type: StorageTypeMemory}},
		{name: "bolt", cfg: StorageConfig{Type: StorageTypeBolt, Path: filepath.Join(dir, "a.db")}},
		{name: "sqlite", cfg: StorageConfig{Type: StorageTypeSQLite, Path: filepath.Join(dir, "a.sqlite")}},
		{name: "bolt without path", cfg: StorageConfig{Type: StorageTypeBolt}, wantErr: true},
		{name: "valkey without url", cfg: StorageConfig{Type: StorageTypeValkey}, wantErr: true},
		{name: "unknown", cfg: StorageConfig{Type: "mongo"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, s.Ping(context.Background()))
			assert.NoError(t, s.Close())
		})
	}
}

func TestInstrumentedStore(t *testing.T) {
	testStoreConformance(t, func(t *testing.T) Store {
		return Instrument(NewMemoryStore(), "memory")
	})
}

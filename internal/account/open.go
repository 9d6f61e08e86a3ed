package account

import "fmt"

// StorageType names a Store backend.
type StorageType string

const (
	StorageTypeMemory StorageType = "memory"
	StorageTypeBolt   StorageType = "bolt"
	StorageTypeSQLite StorageType = "sqlite"
	StorageTypeValkey StorageType = "valkey"
)

// StorageConfig selects and configures a Store backend.
type StorageConfig struct {
	Type StorageType

	// Path is the database file for the bolt and sqlite backends.
	Path string

	Valkey ValkeyConfig
}

// Validate checks that the selected backend has what it needs.
func (c StorageConfig) Validate() error {
	switch c.Type {
	case StorageTypeMemory, "":
		return nil
	case StorageTypeBolt, StorageTypeSQLite:
		if c.Path == "" {
			return fmt.Errorf("store path is required for %s storage", c.Type)
		}
		return nil
	case StorageTypeValkey:
		if c.Valkey.URL == "" {
			return fmt.Errorf("valkey URL is required for valkey storage")
		}
		return nil
	default:
		return fmt.Errorf("unsupported storage type %q (supported: memory, bolt, sqlite, valkey)", c.Type)
	}
}

// Open creates the configured Store, wrapped with tracing. An empty type
// selects memory.
//
// A Valkey server that cannot be reached is not an error: the returned store
// reports ErrStoreUnavailable until a later dial succeeds. Use Ping to find
// out whether the backend is up.
func Open(cfg StorageConfig) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		s   Store
		err error
	)
	switch cfg.Type {
	case StorageTypeBolt:
		s, err = OpenBolt(cfg.Path)
	case StorageTypeSQLite:
		s, err = OpenSQLite(cfg.Path)
	case StorageTypeValkey:
		s, err = OpenValkeyReconnecting(cfg.Valkey)
	default:
		s = NewMemoryStore()
		cfg.Type = StorageTypeMemory
	}
	if err != nil {
		return nil, err
	}
	return Instrument(s, string(cfg.Type)), nil
}

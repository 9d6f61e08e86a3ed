package account

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var sqliteSchema string

const accountColumns = `email, refresh_token, tier, created_at, last_accessed_at`

// SQLiteStore persists accounts in SQLite. The email primary key enforces
// uniqueness and each write is a single statement.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite store path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite store: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	key, err := normalizeKey(email)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ?`, key)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("read account", err)
	}
	return a, nil
}

func (s *SQLiteStore) UpsertByEmail(ctx context.Context, email string, update Update) (*Account, error) {
	key, err := normalizeKey(email)
	if err != nil {
		return nil, err
	}
	at := update.AccessedAt
	if at.IsZero() {
		at = time.Now()
	}

	// Without a credential only an existing row may be touched.
	if update.RefreshToken == "" {
		row := s.db.QueryRowContext(ctx,
			`UPDATE accounts SET last_accessed_at = ? WHERE email = ? RETURNING `+accountColumns,
			toMillis(at), key)
		a, err := scanAccount(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialRequired
		}
		if err != nil {
			return nil, unavailable("upsert account", err)
		}
		return a, nil
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET
		   refresh_token = excluded.refresh_token,
		   last_accessed_at = excluded.last_accessed_at
		 RETURNING `+accountColumns,
		key, update.RefreshToken, string(TierPublic), toMillis(at), toMillis(at))
	a, err := scanAccount(row)
	if err != nil {
		return nil, unavailable("upsert account", err)
	}
	return a, nil
}

func (s *SQLiteStore) UpdateLastAccessed(ctx context.Context, email string, at time.Time) error {
	key, err := normalizeKey(email)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET last_accessed_at = ? WHERE email = ?`, toMillis(at), key)
	if err != nil {
		return unavailable("update last accessed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("update last accessed", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SetVisibilityTier(ctx context.Context, email string, tier Tier) (*Account, error) {
	key, err := normalizeKey(email)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE accounts SET tier = ? WHERE email = ? RETURNING `+accountColumns,
		string(tier), key)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("set visibility tier", err)
	}
	return a, nil
}

func (s *SQLiteStore) ListAll(ctx context.Context, filter Filter) ([]Summary, error) {
	query := `SELECT email, tier, created_at, last_accessed_at FROM accounts`
	var args []any
	if !filter.All {
		query += ` WHERE tier = ? OR email = ?`
		args = append(args, string(TierPublic), NormalizeEmail(filter.Owner))
	}
	switch filter.Order {
	case OrderByCreatedDesc:
		query += ` ORDER BY created_at DESC, email ASC`
	default:
		query += ` ORDER BY email ASC`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list accounts", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sum                 Summary
			tier                string
			created, lastAccess int64
		)
		if err := rows.Scan(&sum.Email, &tier, &created, &lastAccess); err != nil {
			return nil, unavailable("scan account", err)
		}
		sum.Tier = Tier(tier)
		sum.CreatedAt = fromMillis(created)
		sum.LastAccessedAt = fromMillis(lastAccess)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list accounts", err)
	}
	return out, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping sqlite store", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var (
		a                   Account
		tier                string
		created, lastAccess int64
	)
	if err := row.Scan(&a.Email, &a.RefreshToken, &tier, &created, &lastAccess); err != nil {
		return nil, err
	}
	a.Tier = Tier(tier)
	a.CreatedAt = fromMillis(created)
	a.LastAccessedAt = fromMillis(lastAccess)
	return &a, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

package account

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyConfig holds connection settings for the Valkey backend.
type ValkeyConfig struct {
	// URL is the server address, e.g. "valkey.namespace.svc:6379".
	URL string

	Password string

	// TLSEnabled enables TLS. TLSCAFile optionally pins a private CA.
	TLSEnabled bool
	TLSCAFile  string

	// KeyPrefix namespaces every key (default "inboxshare:").
	KeyPrefix string

	DB int
}

// DefaultValkeyKeyPrefix is used when ValkeyConfig.KeyPrefix is empty.
const DefaultValkeyKeyPrefix = "inboxshare:"

// Each account is a hash under <prefix>account:<email>; <prefix>accounts is
// the set of known emails. Writes run as Lua scripts so the existence check
// and the write are one atomic step on the server.
var (
	upsertScript = valkey.NewLuaScript(`
local key, index = KEYS[1], KEYS[2]
local email, token, at = ARGV[1], ARGV[2], ARGV[3]
if redis.call('EXISTS', key) == 0 then
  if token == '' then return false end
  redis.call('HSET', key, 'email', email, 'refresh_token', token, 'tier', 'PUBLIC', 'created_at', at, 'last_accessed_at', at)
  redis.call('SADD', index, email)
else
  if token ~= '' then redis.call('HSET', key, 'refresh_token', token) end
  redis.call('HSET', key, 'last_accessed_at', at)
end
return redis.call('HGETALL', key)
`)

	setFieldScript = valkey.NewLuaScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return false end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return redis.call('HGETALL', KEYS[1])
`)
)

// ValkeyStore persists accounts in Valkey.
type ValkeyStore struct {
	client valkey.Client
	prefix string
}

// OpenValkey connects to the configured Valkey server.
func OpenValkey(cfg ValkeyConfig) (*ValkeyStore, error) {
	opt, prefix, err := valkeyClientOption(cfg)
	if err != nil {
		return nil, err
	}
	return dialValkey(opt, prefix)
}

// OpenValkeyReconnecting validates cfg and returns a store that keeps
// dialing Valkey until it is reachable. Only configuration errors fail.
func OpenValkeyReconnecting(cfg ValkeyConfig) (*ReconnectingStore, error) {
	opt, prefix, err := valkeyClientOption(cfg)
	if err != nil {
		return nil, err
	}
	return NewReconnectingStore(func() (Store, error) {
		return dialValkey(opt, prefix)
	}, DefaultRedialInterval), nil
}

func valkeyClientOption(cfg ValkeyConfig) (valkey.ClientOption, string, error) {
	if cfg.URL == "" {
		return valkey.ClientOption{}, "", fmt.Errorf("valkey URL is required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultValkeyKeyPrefix
	}

	opt := valkey.ClientOption{
		InitAddress: []string{cfg.URL},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	}
	if cfg.TLSEnabled {
		tlsConfig, err := valkeyTLSConfig(cfg.TLSCAFile)
		if err != nil {
			return valkey.ClientOption{}, "", err
		}
		opt.TLSConfig = tlsConfig
	}
	return opt, prefix, nil
}

func dialValkey(opt valkey.ClientOption, prefix string) (*ValkeyStore, error) {
	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}
	return &ValkeyStore{client: client, prefix: prefix}, nil
}

func valkeyTLSConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read valkey CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in valkey CA file %s", caFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

func (s *ValkeyStore) accountKey(email string) string {
	return s.prefix + "account:" + email
}

func (s *ValkeyStore) indexKey() string {
	return s.prefix + "accounts"
}

func (s *ValkeyStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	key, err := normalizeKey(email)
	if err != nil {
		return nil, err
	}

	fields, err := s.client.Do(ctx, s.client.B().Hgetall().Key(s.accountKey(key)).Build()).AsStrMap()
	if err != nil {
		return nil, unavailable("read account", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return accountFromHash(fields)
}

func (s *ValkeyStore) UpsertByEmail(ctx context.Context, email string, update Update) (*Account, error) {
	key, err := normalizeKey(email)
	if err != nil {
		return nil, err
	}
	at := update.AccessedAt
	if at.IsZero() {
		at = time.Now()
	}

	fields, err := upsertScript.Exec(ctx, s.client,
		[]string{s.accountKey(key), s.indexKey()},
		[]string{key, update.RefreshToken, strconv.FormatInt(toMillis(at), 10)},
	).AsStrMap()
	if valkey.IsValkeyNil(err) {
		return nil, ErrCredentialRequired
	}
	if err != nil {
		return nil, unavailable("upsert account", err)
	}
	return accountFromHash(fields)
}

func (s *ValkeyStore) UpdateLastAccessed(ctx context.Context, email string, at time.Time) error {
	_, err := s.setField(ctx, email, "update last accessed", "last_accessed_at", strconv.FormatInt(toMillis(at), 10))
	return err
}

func (s *ValkeyStore) SetVisibilityTier(ctx context.Context, email string, tier Tier) (*Account, error) {
	return s.setField(ctx, email, "set visibility tier", "tier", string(tier))
}

func (s *ValkeyStore) setField(ctx context.Context, email, op, field, value string) (*Account, error) {
	key, err := normalizeKey(email)
	if err != nil {
		return nil, err
	}

	fields, err := setFieldScript.Exec(ctx, s.client,
		[]string{s.accountKey(key)},
		[]string{field, value},
	).AsStrMap()
	if valkey.IsValkeyNil(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(op, err)
	}
	return accountFromHash(fields)
}

func (s *ValkeyStore) ListAll(ctx context.Context, filter Filter) ([]Summary, error) {
	emails, err := s.client.Do(ctx, s.client.B().Smembers().Key(s.indexKey()).Build()).AsStrSlice()
	if err != nil {
		return nil, unavailable("list accounts", err)
	}

	out := []Summary{}
	if len(emails) == 0 {
		return out, nil
	}

	cmds := make(valkey.Commands, 0, len(emails))
	for _, email := range emails {
		cmds = append(cmds, s.client.B().Hgetall().Key(s.accountKey(email)).Build())
	}
	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		fields, err := resp.AsStrMap()
		if err != nil {
			return nil, unavailable("list accounts", err)
		}
		if len(fields) == 0 {
			continue
		}
		a, err := accountFromHash(fields)
		if err != nil {
			return nil, err
		}
		if sum := a.Summary(); filter.Match(sum) {
			out = append(out, sum)
		}
	}

	SortSummaries(out, filter.Order)
	return out, nil
}

func (s *ValkeyStore) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return unavailable("ping valkey", err)
	}
	return nil
}

func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}

func accountFromHash(fields map[string]string) (*Account, error) {
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: created_at: %v", ErrCorrupt, fields["email"], err)
	}
	lastAccess, err := strconv.ParseInt(fields["last_accessed_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: last_accessed_at: %v", ErrCorrupt, fields["email"], err)
	}
	return &Account{
		Email:          fields["email"],
		RefreshToken:   fields["refresh_token"],
		Tier:           Tier(fields["tier"]),
		CreatedAt:      fromMillis(created),
		LastAccessedAt: fromMillis(lastAccess),
	}, nil
}

// Package config loads inboxshare settings.
//
// Values are layered, lowest priority first: built-in defaults, an optional
// TOML file, then environment variables. Command-line flags are applied on
// top by the cmd package.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/teemow/inboxshare/internal/account"
	"github.com/teemow/inboxshare/internal/session"
)

// EnvConfigFile names the environment variable holding the config file path.
const EnvConfigFile = "INBOXSHARE_CONFIG"

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Google    GoogleConfig    `toml:"google"`
	Session   SessionConfig   `toml:"session"`
	Admin     AdminConfig     `toml:"admin"`
	Store     StoreConfig     `toml:"store"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	Addr string `toml:"addr" env:"INBOXSHARE_ADDR"`

	// BaseURL is the externally visible URL. Derived from Addr when empty.
	BaseURL string `toml:"base_url" env:"BASE_URL"`

	// PostLoginRedirect is where the OAuth callback sends the browser.
	PostLoginRedirect string `toml:"post_login_redirect" env:"POST_LOGIN_REDIRECT"`

	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type GoogleConfig struct {
	ClientID     string `toml:"client_id" env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `toml:"client_secret" env:"GOOGLE_CLIENT_SECRET"`

	// RedirectURL defaults to <base_url>/auth/google/callback.
	RedirectURL string `toml:"redirect_url" env:"GOOGLE_REDIRECT_URL"`
}

type SessionConfig struct {
	Secret       string        `toml:"secret" env:"SESSION_SECRET"`
	MaxAge       time.Duration `toml:"max_age" env:"SESSION_MAX_AGE"`
	SecureCookie bool          `toml:"secure_cookie" env:"SESSION_SECURE_COOKIE"`
}

type AdminConfig struct {
	// PasswordHash is a bcrypt hash. Empty disables admin login.
	PasswordHash string `toml:"password_hash" env:"ADMIN_PASSWORD_HASH"`
}

type StoreConfig struct {
	Type    string        `toml:"type" env:"STORE_TYPE"`
	Path    string        `toml:"path" env:"STORE_PATH"`
	Timeout time.Duration `toml:"timeout" env:"STORE_TIMEOUT"`
	Valkey  ValkeyConfig  `toml:"valkey"`
}

type ValkeyConfig struct {
	URL        string `toml:"url" env:"VALKEY_URL"`
	Password   string `toml:"password" env:"VALKEY_PASSWORD"`
	TLSEnabled bool   `toml:"tls" env:"VALKEY_TLS_ENABLED"`
	TLSCAFile  string `toml:"tls_ca_file" env:"VALKEY_TLS_CA_FILE"`
	KeyPrefix  string `toml:"key_prefix" env:"VALKEY_KEY_PREFIX"`
	DB         int    `toml:"db" env:"VALKEY_DB"`
}

type RateLimitConfig struct {
	// Requests per Window per client. Zero disables limiting.
	Requests int           `toml:"requests" env:"RATE_LIMIT_REQUESTS"`
	Window   time.Duration `toml:"window" env:"RATE_LIMIT_WINDOW"`
	// TrustProxy keys clients by the X-Forwarded-For hop the fronting proxy
	// appended. Leave off unless every request arrives through that proxy.
	TrustProxy bool `toml:"trust_proxy" env:"RATE_LIMIT_TRUST_PROXY"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" env:"METRICS_ENABLED"`
	Addr    string `toml:"addr" env:"METRICS_ADDR"`
}

type LogConfig struct {
	Level  string `toml:"level" env:"LOG_LEVEL"`
	Format string `toml:"format" env:"LOG_FORMAT"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":3000",
			ShutdownTimeout: 30 * time.Second,
		},
		Session: SessionConfig{
			MaxAge: session.DefaultMaxAge,
		},
		Store: StoreConfig{
			Type:    string(account.StorageTypeMemory),
			Timeout: 10 * time.Second,
			Valkey: ValkeyConfig{
				KeyPrefix: account.DefaultValkeyKeyPrefix,
			},
		},
		RateLimit: RateLimitConfig{
			Requests: 120,
			Window:   time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a Config from defaults, the TOML file at path (if non-empty)
// and the environment. A nil environ reads the process environment.
func Load(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return Config{}, fmt.Errorf("unknown keys in config file %s: %s", path, strings.Join(keys, ", "))
		}
	}

	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

// StorageConfig returns the account store settings.
func (c Config) StorageConfig() account.StorageConfig {
	return account.StorageConfig{
		Type: account.StorageType(c.Store.Type),
		Path: c.Store.Path,
		Valkey: account.ValkeyConfig{
			URL:        c.Store.Valkey.URL,
			Password:   c.Store.Valkey.Password,
			TLSEnabled: c.Store.Valkey.TLSEnabled,
			TLSCAFile:  c.Store.Valkey.TLSCAFile,
			KeyPrefix:  c.Store.Valkey.KeyPrefix,
			DB:         c.Store.Valkey.DB,
		},
	}
}

// ResolvedBaseURL returns Server.BaseURL, or http://localhost<port> derived
// from Server.Addr.
func (c Config) ResolvedBaseURL() string {
	if c.Server.BaseURL != "" {
		return strings.TrimRight(c.Server.BaseURL, "/")
	}
	host, port, err := net.SplitHostPort(c.Server.Addr)
	if err != nil {
		return "http://localhost:3000"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// ResolvedRedirectURL returns the OAuth callback URL.
func (c Config) ResolvedRedirectURL() string {
	if c.Google.RedirectURL != "" {
		return c.Google.RedirectURL
	}
	return c.ResolvedBaseURL() + "/auth/google/callback"
}

// Validate checks settings shared by every command.
func (c Config) Validate() error {
	var errs []error
	if err := c.StorageConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("store timeout must be positive"))
	}
	if c.RateLimit.Requests < 0 {
		errs = append(errs, fmt.Errorf("rate limit requests must not be negative"))
	}
	if c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("rate limit window must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateServe additionally checks what the HTTP service needs.
func (c Config) ValidateServe() error {
	errs := []error{c.Validate()}
	if len(c.Session.Secret) < session.MinSecretLength {
		errs = append(errs, fmt.Errorf("session secret must be at least %d bytes (set SESSION_SECRET)", session.MinSecretLength))
	}
	if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
		errs = append(errs, fmt.Errorf("google client id and secret are required (set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET)"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("server address is required"))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, fmt.Errorf("metrics address is required when metrics are enabled"))
	}
	return errors.Join(errs...)
}

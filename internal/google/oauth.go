package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teemow/inboxshare/internal/instrumentation"
)

// ErrNoRefreshToken is returned by TokenSource callers that receive an
// empty stored credential.
var ErrNoRefreshToken = errors.New("no refresh token")

// Config is the OAuth client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Scopes defaults to DefaultOAuthScopes.
	Scopes []string

	// Endpoint overrides google.Endpoint.
	Endpoint oauth2.Endpoint

	// UserinfoEndpoint overrides the Google API base URL for userinfo lookups.
	UserinfoEndpoint string
}

// OAuth is the Google OAuth2 client. It is safe for concurrent use.
type OAuth struct {
	conf             *oauth2.Config
	userinfoEndpoint string
	base             http.RoundTripper
	metrics          *instrumentation.Metrics
}

// Option configures OAuth.
type Option func(*OAuth)

// WithBaseTransport sets the transport under the oauth2 transport.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *OAuth) { o.base = rt }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *OAuth) { o.metrics = m }
}

// NewOAuth creates the OAuth client from cfg.
func NewOAuth(cfg Config, opts ...Option) *OAuth {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" && endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultOAuthScopes
	}

	o := &OAuth{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		userinfoEndpoint: cfg.UserinfoEndpoint,
		base:             otelhttp.NewTransport(http.DefaultTransport),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// AuthCodeURL returns the consent URL. Offline access with forced consent
// makes Google issue a refresh token on every authorization.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token set. The returned
// token's RefreshToken may be empty when Google declines to reissue one.
func (o *OAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	start := time.Now()
	tok, err := o.conf.Exchange(o.withClient(ctx), code)
	o.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange, status(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return tok, nil
}

// TokenSource returns a fresh token source for refreshToken. The first
// Token call performs a refresh against the token endpoint.
func (o *OAuth) TokenSource(ctx context.Context, refreshToken string) oauth2.TokenSource {
	return o.conf.TokenSource(o.withClient(ctx), &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	})
}

// HTTPClient returns a client that authorizes each request with ts.
func (o *OAuth) HTTPClient(ts oauth2.TokenSource) *http.Client {
	return &http.Client{Transport: &oauth2.Transport{Source: ts, Base: o.base}}
}

func (o *OAuth) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: o.base})
}

func status(err error) string {
	if err != nil {
		return instrumentation.StatusError
	}
	return instrumentation.StatusSuccess
}

package google

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

// TokenProvider mints credentials for delegated calls.
// This abstraction lets the delegate package run against a fake provider in
// tests.
type TokenProvider interface {
	// TokenSource returns a new token source for one stored refresh token.
	TokenSource(ctx context.Context, refreshToken string) oauth2.TokenSource

	// HTTPClient returns a client that authorizes every request with ts.
	HTTPClient(ts oauth2.TokenSource) *http.Client
}

// StaticTokenProvider serves a fixed access token. It is meant for tests and
// local development against a fake Gmail endpoint.
type StaticTokenProvider struct {
	AccessToken string

	// Err, when set, is returned by every Token call.
	Err error

	// Base is the transport used by HTTPClient. Nil means http.DefaultTransport.
	Base http.RoundTripper
}

// TokenSource ignores refreshToken and serves p.AccessToken.
func (p *StaticTokenProvider) TokenSource(_ context.Context, _ string) oauth2.TokenSource {
	return staticSource{token: p.AccessToken, err: p.Err}
}

// HTTPClient returns a client that authorizes with ts.
func (p *StaticTokenProvider) HTTPClient(ts oauth2.TokenSource) *http.Client {
	return &http.Client{Transport: &oauth2.Transport{Source: ts, Base: p.Base}}
}

type staticSource struct {
	token string
	err   error
}

func (s staticSource) Token() (*oauth2.Token, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &oauth2.Token{AccessToken: s.token, TokenType: "Bearer"}, nil
}

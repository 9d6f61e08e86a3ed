// Package google wraps the Google OAuth2 client used by inboxshare.
//
// It builds the consent URL, exchanges authorization codes, resolves the
// signed-in email through the userinfo API, and mints per-credential token
// sources and HTTP clients for delegated Gmail calls. Token sources are
// never cached: every delegated call gets its own.
package google

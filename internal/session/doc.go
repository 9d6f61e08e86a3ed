// Package session carries the caller's identity between requests.
//
// The identity lives in an HS256-signed JWT stored in an HttpOnly cookie.
// A missing, expired or tampered cookie reads as an anonymous caller; it is
// never an error for the request. The package also verifies the admin
// password against a bcrypt hash and issues the OAuth state nonce.
package session

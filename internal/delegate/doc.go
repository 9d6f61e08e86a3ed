// Package delegate runs Gmail calls as the owner of an account.
//
// Invoke accepts only an access.Grant, binds the grant's stored refresh
// token into a token source and HTTP client created for that one call, and
// updates the account's last-accessed time after the call succeeds. The
// bookkeeping write is best-effort and never changes the call's result.
package delegate

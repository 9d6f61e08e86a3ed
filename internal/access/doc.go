// Package access decides whether a request may act on a mailbox account.
//
// Trust is derived from two inputs only: the requester's Identity and the
// target account's visibility tier. An account is reachable by its owner,
// by an administrator, or by anyone when it is public. Nothing else is
// persisted per user.
//
// A successful evaluation yields a Grant, an in-process capability that the
// delegate package requires before it will use the account's stored
// credential. Grants cannot be constructed outside this package.
package access

package delegate

import (
	"errors"
	"fmt"
)

// ErrInvalidGrant is returned when Invoke receives a grant not minted by
// the access engine.
var ErrInvalidGrant = errors.New("invalid access grant")

// RemoteError reports a failed delegated call: a refused or revoked
// credential, a provider error, or a network fault. It is never retried.
type RemoteError struct {
	// Op is "token" for credential refresh failures, "call" otherwise.
	Op string

	Err error
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	return fmt.Sprintf("delegated %s failed: %v", e.Op, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRemoteError reports whether err is a RemoteError.
func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

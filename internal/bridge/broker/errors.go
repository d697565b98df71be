package broker

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManyWaiters rejects a request when the pending queue is full.
	ErrTooManyWaiters = errors.New("too many pending credential requests")
	// ErrCredentialTimeout rejects a request whose context ended first.
	ErrCredentialTimeout = errors.New("timed out waiting for credential")
	// ErrBrokerClosed rejects requests after session teardown.
	ErrBrokerClosed = errors.New("credential broker closed")
)

// CredentialError is delivered to every pending request when acquisition
// fails.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

package session

import (
	cerrors "certagent/internal/errors"
)

// ExternalFailureError carries the failure text reported by the identity
// provider. It matches ErrExternalFailure.
type ExternalFailureError struct {
	Text string
}

func (e *ExternalFailureError) Error() string {
	return cerrors.ErrExternalFailure.Error() + ": " + e.Text
}

func (e *ExternalFailureError) Unwrap() error { return cerrors.ErrExternalFailure }

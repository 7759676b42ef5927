package store

import (
	"fmt"

	"certagent/internal/domain"
	cerrors "certagent/internal/errors"
)

// OpError records a failed storage operation. It matches ErrStorageRead for
// reads and ErrStorageWrite for writes and removals, as well as the
// underlying cause.
type OpError struct {
	Op      string
	Key     domain.StorageKey
	Backend string
	Err     error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Backend, e.Op, e.Key, e.Err)
}

// Unwrap exposes the sentinel and the cause.
func (e *OpError) Unwrap() []error {
	sentinel := cerrors.ErrStorageWrite
	if e.Op == "get" {
		sentinel = cerrors.ErrStorageRead
	}
	return []error{sentinel, e.Err}
}

func readErr(backend string, key domain.StorageKey, err error) error {
	return &OpError{Op: "get", Key: key, Backend: backend, Err: err}
}

func writeErr(backend, op string, key domain.StorageKey, err error) error {
	return &OpError{Op: op, Key: key, Backend: backend, Err: err}
}

package interfaces

import (
	"context"

	"certagent/internal/domain/types"
)

// KeyStorage is an asynchronous key/value store for session records.
// Get reports ok=false when the record is absent.
type KeyStorage interface {
	Get(ctx context.Context, key types.StorageKey) (value []byte, ok bool, err error)
	Set(ctx context.Context, key types.StorageKey, value []byte) error
	Remove(ctx context.Context, key types.StorageKey) error
}

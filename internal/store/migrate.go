package store

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"certagent/internal/domain"
	cerrors "certagent/internal/errors"
)

// Migrate copies each key that current lacks and legacy holds from legacy
// to current, then deletes the legacy copy. A failed read or write leaves the
// legacy value in place and is reported as ErrMigration; a failed legacy
// delete after a successful copy is only logged.
// Every key is attempted even when an earlier one fails.
func Migrate(ctx context.Context, legacy, current domain.KeyStorage, keys []domain.StorageKey, log zerolog.Logger) error {
	var errs []error
	for _, key := range keys {
		moved, err := migrateKey(ctx, legacy, current, key, log)
		if err != nil {
			log.Warn().Err(err).Str("key", key.String()).Msg("storage migration failed, legacy value kept")
			errs = append(errs, err)
			continue
		}
		if moved {
			log.Info().Str("key", key.String()).Msg("migrated record from legacy storage")
		}
	}
	if len(errs) > 0 {
		return cerrors.Wrap(cerrors.ErrMigration, errors.Join(errs...).Error())
	}
	return nil
}

func migrateKey(ctx context.Context, legacy, current domain.KeyStorage, key domain.StorageKey, log zerolog.Logger) (bool, error) {
	_, ok, err := current.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	value, ok, err := legacy.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := current.Set(ctx, key, value); err != nil {
		return false, err
	}
	if err := legacy.Remove(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("legacy record not removed after migration")
	}
	return true, nil
}

package config

import (
	"encoding/hex"
	"slices"

	"certagent/internal/errors"
)

var (
	storageBackends = []string{"file", "memory", "redis"}
	keyTypes        = []string{"ed25519", "secp256k1", "handle"}
	pollingProfiles = []string{"interactive", "batch"}
	kdfs            = []string{"argon2id", "scrypt"}
)

// Validate checks the configuration for invalid or inconsistent values.
// It returns an error describing the first validation failure found.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.Wrap(errors.ErrConfigInvalid, "nil config")
	}
	if err := validateReplica(&cfg.Replica); err != nil {
		return err
	}
	if err := validateIdentity(&cfg.Identity); err != nil {
		return err
	}
	if err := validateStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := validatePolling(&cfg.Polling); err != nil {
		return err
	}
	if cfg.Idle.Timeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalid, "idle.timeout must be positive, got %s", cfg.Idle.Timeout)
	}
	return nil
}

func validateReplica(cfg *ReplicaConfig) error {
	if cfg.URL == "" {
		return errors.Wrap(errors.ErrConfigInvalid, "replica.url must not be empty")
	}
	if cfg.RootKey != "" {
		if _, err := hex.DecodeString(cfg.RootKey); err != nil {
			return errors.Wrapf(errors.ErrConfigInvalid, "replica.root_key is not hex: %v", err)
		}
	}
	return nil
}

func validateIdentity(cfg *IdentityConfig) error {
	if cfg.MaxTimeToLive <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalid, "identity.max_time_to_live must be positive, got %s", cfg.MaxTimeToLive)
	}
	if !slices.Contains(keyTypes, cfg.KeyType) {
		return errors.Wrapf(errors.ErrConfigInvalid, "identity.key_type must be one of %v, got %q", keyTypes, cfg.KeyType)
	}
	return nil
}

func validateStorage(cfg *StorageConfig) error {
	if !slices.Contains(storageBackends, cfg.Backend) {
		return errors.Wrapf(errors.ErrConfigInvalid, "storage.backend must be one of %v, got %q", storageBackends, cfg.Backend)
	}
	if cfg.Backend == "redis" && cfg.RedisURL == "" {
		return errors.Wrap(errors.ErrConfigInvalid, "storage.redis_url is required for the redis backend")
	}
	if !slices.Contains(kdfs, cfg.KDF) {
		return errors.Wrapf(errors.ErrConfigInvalid, "storage.kdf must be one of %v, got %q", kdfs, cfg.KDF)
	}
	return nil
}

func validatePolling(cfg *PollingConfig) error {
	if !slices.Contains(pollingProfiles, cfg.Profile) {
		return errors.Wrapf(errors.ErrConfigInvalid, "polling.profile must be one of %v, got %q", pollingProfiles, cfg.Profile)
	}
	if cfg.MaxWait <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalid, "polling.max_wait must be positive, got %s", cfg.MaxWait)
	}
	if cfg.Timeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalid, "polling.timeout must be positive, got %s", cfg.Timeout)
	}
	if cfg.TransportRetries < 0 {
		return errors.Wrapf(errors.ErrConfigInvalid, "polling.transport_retries must not be negative, got %d", cfg.TransportRetries)
	}
	return nil
}

// Package config provides layered configuration for certagent.
//
// Configuration sources are loaded in the following order (highest precedence first):
//  1. Environment variables (CERTAGENT_* prefix, "." replaced by "_")
//  2. The config file (<home>/config.yaml)
//  3. Built-in defaults
//
// IMPORTANT: This package may import internal/errors, but MUST NOT import
// internal/domain or other internal packages.
package config

import "time"

// Config is the root configuration structure.
type Config struct {
	// Replica selects the replica certified reads are sent to.
	Replica ReplicaConfig `yaml:"replica" mapstructure:"replica"`

	// Identity configures the identity provider handshake and session keys.
	Identity IdentityConfig `yaml:"identity" mapstructure:"identity"`

	// Storage selects where session records are kept.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Polling configures the default call status polling strategy.
	Polling PollingConfig `yaml:"polling" mapstructure:"polling"`

	// Idle configures the idle logout policy.
	Idle IdleConfig `yaml:"idle" mapstructure:"idle"`

	// Log configures the log file sink.
	Log LogConfig `yaml:"log" mapstructure:"log"`
}

// ReplicaConfig holds replica connection settings.
type ReplicaConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
	// RootKey is the hex DER root public key certificates must chain to.
	RootKey string `yaml:"root_key" mapstructure:"root_key"`
	// FetchRootKey takes the root key from the replica status. Development only.
	FetchRootKey bool `yaml:"fetch_root_key" mapstructure:"fetch_root_key"`
	// Scope is the default canister principal in textual form.
	Scope string `yaml:"scope" mapstructure:"scope"`
}

// IdentityConfig holds handshake and key settings.
type IdentityConfig struct {
	Provider         string        `yaml:"provider" mapstructure:"provider"`
	MaxTimeToLive    time.Duration `yaml:"max_time_to_live" mapstructure:"max_time_to_live"`
	DerivationOrigin string        `yaml:"derivation_origin" mapstructure:"derivation_origin"`
	// KeyType is ed25519, secp256k1 or handle.
	KeyType          string   `yaml:"key_type" mapstructure:"key_type"`
	ScopeRestriction []string `yaml:"scope_restriction" mapstructure:"scope_restriction"`
	VerifyDelegation bool     `yaml:"verify_delegation" mapstructure:"verify_delegation"`
}

// StorageConfig selects the key storage backend.
type StorageConfig struct {
	// Backend is file, memory or redis.
	Backend string `yaml:"backend" mapstructure:"backend"`
	// Dir holds file records. Empty means <home>/keys.
	Dir string `yaml:"dir" mapstructure:"dir"`
	// LegacyDir, when set, is migrated into the selected backend.
	LegacyDir   string `yaml:"legacy_dir" mapstructure:"legacy_dir"`
	RedisURL    string `yaml:"redis_url" mapstructure:"redis_url"`
	RedisPrefix string `yaml:"redis_prefix" mapstructure:"redis_prefix"`
	// PassphraseEnv names the environment variable holding the storage
	// passphrase. Records are encrypted when it is set and non-empty.
	PassphraseEnv string `yaml:"passphrase_env" mapstructure:"passphrase_env"`
	// KDF is argon2id or scrypt.
	KDF string `yaml:"kdf" mapstructure:"kdf"`
}

// PollingConfig configures the default strategy.
type PollingConfig struct {
	// Profile is interactive or batch.
	Profile string        `yaml:"profile" mapstructure:"profile"`
	MaxWait time.Duration `yaml:"max_wait" mapstructure:"max_wait"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// TransportRetries is how many transport failures a poll tolerates.
	TransportRetries int `yaml:"transport_retries" mapstructure:"transport_retries"`
}

// IdleConfig configures idle logout.
type IdleConfig struct {
	Disable                bool          `yaml:"disable" mapstructure:"disable"`
	DisableDefaultCallback bool          `yaml:"disable_default_callback" mapstructure:"disable_default_callback"`
	Timeout                time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// LogConfig configures the rotating log file.
type LogConfig struct {
	FileEnabled bool `yaml:"file_enabled" mapstructure:"file_enabled"`
	MaxSizeMB   int  `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups  int  `yaml:"max_backups" mapstructure:"max_backups"`
}

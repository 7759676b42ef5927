package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared by DefaultConfig and the viper defaults.
const (
	DefaultReplicaURL    = "http://127.0.0.1:4943"
	DefaultProvider      = "https://identity.ic0.app"
	DefaultMaxTimeToLive = 8 * time.Hour
	DefaultPollMaxWait   = 10 * time.Second
	DefaultPollTimeout   = 5 * time.Minute
	DefaultIdleTimeout   = 10 * time.Minute
	DefaultPassphraseEnv = "CERTAGENT_PASSPHRASE"
	DefaultRedisPrefix   = "certagent:"
)

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Replica: ReplicaConfig{URL: DefaultReplicaURL},
		Identity: IdentityConfig{
			Provider:         DefaultProvider,
			MaxTimeToLive:    DefaultMaxTimeToLive,
			KeyType:          "ed25519",
			VerifyDelegation: true,
		},
		Storage: StorageConfig{
			Backend:       "file",
			RedisPrefix:   DefaultRedisPrefix,
			PassphraseEnv: DefaultPassphraseEnv,
			KDF:           "argon2id",
		},
		Polling: PollingConfig{
			Profile: "interactive",
			MaxWait: DefaultPollMaxWait,
			Timeout: DefaultPollTimeout,
		},
		Idle: IdleConfig{Timeout: DefaultIdleTimeout},
		Log:  LogConfig{FileEnabled: true, MaxSizeMB: 10, MaxBackups: 3},
	}
}

// setDefaults mirrors DefaultConfig on v.
// IMPORTANT: Keys must match the mapstructure tag names exactly.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("replica.url", d.Replica.URL)
	v.SetDefault("replica.root_key", "")
	v.SetDefault("replica.fetch_root_key", false)
	v.SetDefault("replica.scope", "")

	v.SetDefault("identity.provider", d.Identity.Provider)
	v.SetDefault("identity.max_time_to_live", d.Identity.MaxTimeToLive.String())
	v.SetDefault("identity.derivation_origin", "")
	v.SetDefault("identity.key_type", d.Identity.KeyType)
	v.SetDefault("identity.scope_restriction", []string{})
	v.SetDefault("identity.verify_delegation", d.Identity.VerifyDelegation)

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.dir", "")
	v.SetDefault("storage.legacy_dir", "")
	v.SetDefault("storage.redis_url", "")
	v.SetDefault("storage.redis_prefix", d.Storage.RedisPrefix)
	v.SetDefault("storage.passphrase_env", d.Storage.PassphraseEnv)
	v.SetDefault("storage.kdf", d.Storage.KDF)

	v.SetDefault("polling.profile", d.Polling.Profile)
	v.SetDefault("polling.max_wait", d.Polling.MaxWait.String())
	v.SetDefault("polling.timeout", d.Polling.Timeout.String())
	v.SetDefault("polling.transport_retries", 0)

	v.SetDefault("idle.disable", false)
	v.SetDefault("idle.disable_default_callback", false)
	v.SetDefault("idle.timeout", d.Idle.Timeout.String())

	v.SetDefault("log.file_enabled", d.Log.FileEnabled)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
}

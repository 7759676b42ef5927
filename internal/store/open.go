package store

import (
	"fmt"

	"certagent/internal/crypto"
	"certagent/internal/domain"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	Dir         string
	RedisURL    string
	RedisPrefix string
	// Passphrase enables the Encrypted decorator when non-empty.
	Passphrase string
	KDF        string
}

// Open builds the storage described by opts.
func Open(opts Options) (domain.KeyStorage, error) {
	var base domain.KeyStorage
	switch opts.Backend {
	case BackendMemory, "":
		base = NewMemory()
	case BackendFile:
		if opts.Dir == "" {
			return nil, fmt.Errorf("file storage requires a directory")
		}
		base = NewFileStore(opts.Dir)
	case BackendRedis:
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("redis storage requires a url")
		}
		base = NewRedis(opts.RedisURL, opts.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
	if opts.Passphrase == "" {
		return base, nil
	}
	kdf := opts.KDF
	if kdf == "" {
		kdf = crypto.KDFArgon2id
	}
	return NewEncrypted(base, opts.Passphrase, kdf)
}

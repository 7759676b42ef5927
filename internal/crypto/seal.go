package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// Supported passphrase key derivation functions.
const (
	KDFArgon2id = "argon2id"
	KDFScrypt   = "scrypt"
)

const (
	KeyBytes  = chacha20poly1305.KeySize
	SaltBytes = 16
)

// KDFParams records how a storage key was derived so it can be re-derived.
type KDFParams struct {
	Algorithm string `json:"alg"`
	Salt      []byte `json:"salt"`

	// argon2id
	Time    uint32 `json:"time,omitempty"`
	Memory  uint32 `json:"memory,omitempty"`
	Threads uint8  `json:"threads,omitempty"`

	// scrypt
	N int `json:"scrypt_N,omitempty"`
	R int `json:"scrypt_r,omitempty"`
	P int `json:"scrypt_p,omitempty"`
}

// NewKDFParams returns default parameters for alg with a fresh random salt.
func NewKDFParams(alg string) (KDFParams, error) {
	salt := make([]byte, SaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return KDFParams{}, err
	}
	switch alg {
	case KDFArgon2id, "":
		return KDFParams{Algorithm: KDFArgon2id, Salt: salt, Time: 1, Memory: 64 * 1024, Threads: 4}, nil
	case KDFScrypt:
		return KDFParams{Algorithm: KDFScrypt, Salt: salt, N: 1 << 15, R: 8, P: 1}, nil
	default:
		return KDFParams{}, fmt.Errorf("unknown kdf %q", alg)
	}
}

// DeriveKey derives a key-encryption key from passphrase.
func (p KDFParams) DeriveKey(passphrase []byte) ([]byte, error) {
	if len(p.Salt) != SaltBytes {
		return nil, fmt.Errorf("invalid salt size %d", len(p.Salt))
	}
	switch p.Algorithm {
	case KDFArgon2id:
		return argon2.IDKey(passphrase, p.Salt, p.Time, p.Memory, p.Threads, KeyBytes), nil
	case KDFScrypt:
		key, err := scrypt.Key(passphrase, p.Salt, p.N, p.R, p.P, KeyBytes)
		if err != nil {
			return nil, fmt.Errorf("scrypt: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unknown kdf %q", p.Algorithm)
	}
}

// Seal encrypts plaintext under key with a random nonce bound to ad. The
// nonce is prepended to the ciphertext.
func Seal(key, plaintext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, ad), nil
}

// Open reverses Seal.
func Open(key, sealed, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed value too short")
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ct, ad)
}

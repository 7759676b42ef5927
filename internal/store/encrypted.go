package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"unicode"

	"certagent/internal/crypto"
	"certagent/internal/domain"
)

const (
	// The current supported version of the integrity vector format.
	envelopeFormatVersion = 1

	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12

	checkPlaintext = "certagent"
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)

	// Returned when the passphrase is incorrect or the integrity vector has been modified.
	errWrongPassphrase = errors.New("wrong passphrase or corrupted integrity vector")
)

// envelope is the integrity-vector record: KDF parameters plus a sealed
// known value used to detect a wrong passphrase before touching records.
type envelope struct {
	V     int              `json:"v"`
	KDF   crypto.KDFParams `json:"kdf"`
	Check []byte           `json:"check"`
}

// Encrypted seals every record of inner except the integrity vector, which
// holds the key derivation parameters.
type Encrypted struct {
	inner      domain.KeyStorage
	passphrase []byte
	kdf        string

	mu  sync.Mutex
	key []byte
}

// NewEncrypted wraps inner. kdf selects the derivation function used when no
// integrity vector exists yet (crypto.KDFArgon2id or crypto.KDFScrypt).
func NewEncrypted(inner domain.KeyStorage, passphrase string, kdf string) (*Encrypted, error) {
	if !isSecurePassphrase(passphrase) {
		return nil, ErrWeakPassphrase
	}
	return &Encrypted{inner: inner, passphrase: []byte(passphrase), kdf: kdf}, nil
}

// dataKey derives (or loads) the key for the current integrity vector.
// create controls whether a missing vector is initialised.
func (e *Encrypted) dataKey(ctx context.Context, create bool) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	raw, ok, err := e.inner.Get(ctx, domain.StorageKeyIntegrityVector)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.wipeKey()
		if !create {
			return nil, nil
		}
		return e.initVector(ctx)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, readErr("encrypted", domain.StorageKeyIntegrityVector, err)
	}
	if env.V > envelopeFormatVersion {
		return nil, readErr("encrypted", domain.StorageKeyIntegrityVector, fmt.Errorf("unsupported version %d", env.V))
	}
	if e.key != nil {
		if _, err := crypto.Open(e.key, env.Check, []byte(domain.StorageKeyIntegrityVector)); err == nil {
			return e.key, nil
		}
	}
	key, err := env.KDF.DeriveKey(e.passphrase)
	if err != nil {
		return nil, readErr("encrypted", domain.StorageKeyIntegrityVector, err)
	}
	if _, err := crypto.Open(key, env.Check, []byte(domain.StorageKeyIntegrityVector)); err != nil {
		crypto.Wipe(key)
		return nil, readErr("encrypted", domain.StorageKeyIntegrityVector, errWrongPassphrase)
	}
	e.wipeKey()
	e.key = key
	return key, nil
}

func (e *Encrypted) initVector(ctx context.Context) ([]byte, error) {
	params, err := crypto.NewKDFParams(e.kdf)
	if err != nil {
		return nil, writeErr("encrypted", "set", domain.StorageKeyIntegrityVector, err)
	}
	key, err := params.DeriveKey(e.passphrase)
	if err != nil {
		return nil, writeErr("encrypted", "set", domain.StorageKeyIntegrityVector, err)
	}
	check, err := crypto.Seal(key, []byte(checkPlaintext), []byte(domain.StorageKeyIntegrityVector))
	if err != nil {
		return nil, writeErr("encrypted", "set", domain.StorageKeyIntegrityVector, err)
	}
	b, err := json.Marshal(envelope{V: envelopeFormatVersion, KDF: params, Check: check})
	if err != nil {
		return nil, writeErr("encrypted", "set", domain.StorageKeyIntegrityVector, err)
	}
	if err := e.inner.Set(ctx, domain.StorageKeyIntegrityVector, b); err != nil {
		return nil, err
	}
	e.key = key
	return key, nil
}

func (e *Encrypted) wipeKey() {
	if e.key != nil {
		crypto.Wipe(e.key)
		e.key = nil
	}
}

func (e *Encrypted) Get(ctx context.Context, key domain.StorageKey) ([]byte, bool, error) {
	if key == domain.StorageKeyIntegrityVector {
		return e.inner.Get(ctx, key)
	}
	sealed, ok, err := e.inner.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	k, err := e.dataKey(ctx, false)
	if err != nil {
		return nil, false, err
	}
	if k == nil {
		return nil, false, readErr("encrypted", key, errors.New("record present without integrity vector"))
	}
	pt, err := crypto.Open(k, sealed, []byte(key))
	if err != nil {
		return nil, false, readErr("encrypted", key, errors.New("record failed authentication"))
	}
	return pt, true, nil
}

func (e *Encrypted) Set(ctx context.Context, key domain.StorageKey, value []byte) error {
	if key == domain.StorageKeyIntegrityVector {
		return writeErr("encrypted", "set", key, errors.New("integrity vector is managed by the store"))
	}
	k, err := e.dataKey(ctx, true)
	if err != nil {
		return err
	}
	sealed, err := crypto.Seal(k, value, []byte(key))
	if err != nil {
		return writeErr("encrypted", "set", key, err)
	}
	return e.inner.Set(ctx, key, sealed)
}

func (e *Encrypted) Remove(ctx context.Context, key domain.StorageKey) error {
	if key == domain.StorageKeyIntegrityVector {
		e.mu.Lock()
		e.wipeKey()
		e.mu.Unlock()
	}
	return e.inner.Remove(ctx, key)
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

var _ domain.KeyStorage = (*Encrypted)(nil)

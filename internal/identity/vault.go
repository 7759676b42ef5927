package identity

import (
	"context"
	"crypto/ed25519"
	"sync"

	"github.com/google/uuid"

	"certagent/internal/crypto"
	cerrors "certagent/internal/errors"
)

// Vault holds non-extractable Ed25519 keys for the life of the process and
// signs with them by handle. Private material never leaves the vault.
type Vault struct {
	mu   sync.Mutex
	keys map[uuid.UUID]ed25519.PrivateKey
}

// NewVault returns an empty vault.
func NewVault() *Vault {
	return &Vault{keys: make(map[uuid.UUID]ed25519.PrivateKey)}
}

// Generate creates a key inside the vault.
func (v *Vault) Generate() (*HandleKey, error) {
	priv, pub, err := crypto.GenerateEd25519()
	if err != nil {
		return nil, err
	}
	der, err := crypto.EncodeEd25519DER(pub)
	if err != nil {
		return nil, err
	}
	h := uuid.New()

	v.mu.Lock()
	v.keys[h] = priv
	v.mu.Unlock()
	return &HandleKey{handle: h, der: der, vault: v}, nil
}

// Resolve returns the key for handle, or ErrNoSessionKey if the vault does
// not hold it.
func (v *Vault) Resolve(handle uuid.UUID) (*HandleKey, error) {
	v.mu.Lock()
	priv, ok := v.keys[handle]
	v.mu.Unlock()
	if !ok {
		return nil, cerrors.Wrapf(cerrors.ErrNoSessionKey, "vault handle %s", handle)
	}
	der, err := crypto.EncodeEd25519DER(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &HandleKey{handle: handle, der: der, vault: v}, nil
}

// Sign signs msg with the key behind handle.
func (v *Vault) Sign(_ context.Context, handle uuid.UUID, msg []byte) ([]byte, error) {
	v.mu.Lock()
	priv, ok := v.keys[handle]
	v.mu.Unlock()
	if !ok {
		return nil, cerrors.Wrapf(cerrors.ErrNoSessionKey, "vault handle %s", handle)
	}
	return crypto.SignEd25519(priv, msg), nil
}

// Delete destroys the key behind handle.
func (v *Vault) Delete(handle uuid.UUID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if priv, ok := v.keys[handle]; ok {
		crypto.Wipe(priv)
		delete(v.keys, handle)
	}
}

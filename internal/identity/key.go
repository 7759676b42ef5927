package identity

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"

	"certagent/internal/crypto"
	"certagent/internal/domain"
	cerrors "certagent/internal/errors"
)

// SessionKey is the asymmetric key a session signs requests with.
type SessionKey interface {
	domain.Signer
	Kind() domain.KeyKind
	// PublicKey returns the DER-encoded public key.
	PublicKey() []byte
}

// Ed25519Key is a portable Ed25519 session key.
type Ed25519Key struct {
	priv ed25519.PrivateKey
	der  []byte
}

// NewEd25519Key wraps priv.
func NewEd25519Key(priv ed25519.PrivateKey) (*Ed25519Key, error) {
	der, err := crypto.EncodeEd25519DER(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &Ed25519Key{priv: priv, der: der}, nil
}

func (k *Ed25519Key) Kind() domain.KeyKind { return domain.KeyKindEd25519 }
func (k *Ed25519Key) PublicKey() []byte    { return k.der }

func (k *Ed25519Key) Sign(_ context.Context, msg []byte) ([]byte, error) {
	return crypto.SignEd25519(k.priv, msg), nil
}

// Secp256k1Key is a portable secp256k1 session key.
type Secp256k1Key struct {
	priv *secp256k1.PrivateKey
	der  []byte
}

// NewSecp256k1Key wraps priv.
func NewSecp256k1Key(priv *secp256k1.PrivateKey) *Secp256k1Key {
	return &Secp256k1Key{priv: priv, der: crypto.EncodeSecp256k1DER(priv.PubKey())}
}

func (k *Secp256k1Key) Kind() domain.KeyKind { return domain.KeyKindSecp256k1 }
func (k *Secp256k1Key) PublicKey() []byte    { return k.der }

func (k *Secp256k1Key) Sign(_ context.Context, msg []byte) ([]byte, error) {
	return crypto.SignSecp256k1(k.priv, msg), nil
}

// HandleKey refers to a key held in a Vault.
type HandleKey struct {
	handle uuid.UUID
	der    []byte
	vault  *Vault
}

func (k *HandleKey) Kind() domain.KeyKind { return domain.KeyKindHandle }
func (k *HandleKey) PublicKey() []byte    { return k.der }

// Handle returns the vault reference.
func (k *HandleKey) Handle() uuid.UUID { return k.handle }

func (k *HandleKey) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	return k.vault.Sign(ctx, k.handle, msg)
}

// MarshalJSON always fails: handle keys are not exportable.
func (k *HandleKey) MarshalJSON() ([]byte, error) {
	return nil, cerrors.Wrapf(cerrors.ErrKeyNotExportable, "key %s", k.handle)
}

// GenerateKey creates a session key of kind. Handle keys are generated
// inside vault.
func GenerateKey(kind domain.KeyKind, vault *Vault) (SessionKey, error) {
	switch kind {
	case domain.KeyKindEd25519, "":
		priv, _, err := crypto.GenerateEd25519()
		if err != nil {
			return nil, err
		}
		return NewEd25519Key(priv)
	case domain.KeyKindSecp256k1:
		priv, err := crypto.GenerateSecp256k1()
		if err != nil {
			return nil, err
		}
		return NewSecp256k1Key(priv), nil
	case domain.KeyKindHandle:
		if vault == nil {
			return nil, fmt.Errorf("generate handle key: no vault configured")
		}
		return vault.Generate()
	default:
		return nil, cerrors.Wrapf(cerrors.ErrUnknownKeyKind, "%q", kind)
	}
}

// Compile-time assertions.
var (
	_ SessionKey = (*Ed25519Key)(nil)
	_ SessionKey = (*Secp256k1Key)(nil)
	_ SessionKey = (*HandleKey)(nil)
)

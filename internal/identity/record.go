package identity

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"certagent/internal/crypto"
	"certagent/internal/domain"
	cerrors "certagent/internal/errors"
)

// keyRecord is the persisted form of a session key. Portable keys carry
// their secret; handle keys carry only the vault reference.
type keyRecord struct {
	Kind      domain.KeyKind `json:"kind"`
	Secret    string         `json:"secret,omitempty"`
	Handle    string         `json:"handle,omitempty"`
	PublicKey string         `json:"publicKey"`
}

// MarshalJSON encodes the portable key record.
func (k *Ed25519Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(keyRecord{
		Kind:      domain.KeyKindEd25519,
		Secret:    hex.EncodeToString(k.priv.Seed()),
		PublicKey: hex.EncodeToString(k.der),
	})
}

// MarshalJSON encodes the portable key record.
func (k *Secp256k1Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(keyRecord{
		Kind:      domain.KeyKindSecp256k1,
		Secret:    hex.EncodeToString(k.priv.Serialize()),
		PublicKey: hex.EncodeToString(k.der),
	})
}

// EncodeKeyRecord returns the storage record for k: the key itself for
// portable keys, a handle reference otherwise.
func EncodeKeyRecord(k SessionKey) ([]byte, error) {
	if hk, ok := k.(*HandleKey); ok {
		return json.Marshal(keyRecord{
			Kind:      domain.KeyKindHandle,
			Handle:    hk.handle.String(),
			PublicKey: hex.EncodeToString(hk.der),
		})
	}
	return json.Marshal(k)
}

// DecodeKeyRecord parses a storage record. Handle records are resolved
// through vault.
func DecodeKeyRecord(data []byte, vault *Vault) (SessionKey, error) {
	var rec keyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode key record: %w", err)
	}
	switch rec.Kind {
	case domain.KeyKindEd25519:
		seed, err := hex.DecodeString(rec.Secret)
		if err != nil {
			return nil, fmt.Errorf("decode ed25519 secret: %w", err)
		}
		priv, err := crypto.Ed25519FromSeed(seed)
		if err != nil {
			return nil, err
		}
		return NewEd25519Key(priv)
	case domain.KeyKindSecp256k1:
		raw, err := hex.DecodeString(rec.Secret)
		if err != nil {
			return nil, fmt.Errorf("decode secp256k1 secret: %w", err)
		}
		priv, err := crypto.Secp256k1FromBytes(raw)
		if err != nil {
			return nil, err
		}
		return NewSecp256k1Key(priv), nil
	case domain.KeyKindHandle:
		if vault == nil {
			return nil, cerrors.Wrap(cerrors.ErrNoSessionKey, "handle record without a vault")
		}
		h, err := uuid.Parse(rec.Handle)
		if err != nil {
			return nil, fmt.Errorf("decode key handle: %w", err)
		}
		return vault.Resolve(h)
	default:
		return nil, cerrors.Wrapf(cerrors.ErrUnknownKeyKind, "%q", rec.Kind)
	}
}

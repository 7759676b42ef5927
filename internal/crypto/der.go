package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	cerrors "certagent/internal/errors"
)

// secp256k1DERPrefix is the SubjectPublicKeyInfo header for an uncompressed
// secp256k1 point (id-ecPublicKey, secp256k1).
var secp256k1DERPrefix = mustHex("3056301006072a8648ce3d020106052b8104000a034200")

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// EncodeEd25519DER returns the DER SubjectPublicKeyInfo of pub.
func EncodeEd25519DER(pub ed25519.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("encode ed25519 der: %w", err)
	}
	return der, nil
}

// EncodeSecp256k1DER returns the DER SubjectPublicKeyInfo of pub.
func EncodeSecp256k1DER(pub *secp256k1.PublicKey) []byte {
	point := pub.SerializeUncompressed()
	out := make([]byte, 0, len(secp256k1DERPrefix)+len(point))
	out = append(out, secp256k1DERPrefix...)
	return append(out, point...)
}

// PublicKey is a parsed DER public key. Exactly one field is set.
type PublicKey struct {
	Ed25519   ed25519.PublicKey
	Secp256k1 *secp256k1.PublicKey
}

// Verify checks sig over msg with whichever key is set.
func (k PublicKey) Verify(msg, sig []byte) bool {
	switch {
	case k.Ed25519 != nil:
		return VerifyEd25519(k.Ed25519, msg, sig)
	case k.Secp256k1 != nil:
		return VerifySecp256k1(k.Secp256k1, msg, sig)
	default:
		return false
	}
}

// ParseDER decodes a DER SubjectPublicKeyInfo holding an Ed25519 or
// secp256k1 key.
func ParseDER(der []byte) (PublicKey, error) {
	if bytes.HasPrefix(der, secp256k1DERPrefix) {
		pub, err := secp256k1.ParsePubKey(der[len(secp256k1DERPrefix):])
		if err != nil {
			return PublicKey{}, fmt.Errorf("parse secp256k1 der: %w", err)
		}
		return PublicKey{Secp256k1: pub}, nil
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return PublicKey{}, fmt.Errorf("parse der: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return PublicKey{}, fmt.Errorf("parse der: unsupported key type %T", key)
	}
	return PublicKey{Ed25519: pub}, nil
}

// DERVerifier verifies signatures under DER-encoded public keys.
type DERVerifier struct{}

// Verify returns ErrInvalidSignature unless sig is valid for message under
// derPublicKey.
func (DERVerifier) Verify(derPublicKey, message, signature []byte) error {
	pub, err := ParseDER(derPublicKey)
	if err != nil {
		return cerrors.Wrap(cerrors.ErrInvalidSignature, err.Error())
	}
	if !pub.Verify(message, signature) {
		return cerrors.ErrInvalidSignature
	}
	return nil
}

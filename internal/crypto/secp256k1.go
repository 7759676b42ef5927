package crypto

import (
	"crypto/sha256"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Secp256k1SignatureSize is the length of an r||s signature.
const Secp256k1SignatureSize = 64

// GenerateSecp256k1 returns a new secp256k1 private key.
func GenerateSecp256k1() (*secp256k1.PrivateKey, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate secp256k1: %w", err)
	}
	return priv, nil
}

// Secp256k1FromBytes rebuilds a private key from its 32-byte scalar.
func Secp256k1FromBytes(b []byte) (*secp256k1.PrivateKey, error) {
	if len(b) != secp256k1.PrivKeyBytesLen {
		return nil, fmt.Errorf("secp256k1 key: want %d bytes, got %d", secp256k1.PrivKeyBytesLen, len(b))
	}
	return secp256k1.PrivKeyFromBytes(b), nil
}

// SignSecp256k1 signs sha256(msg) and returns the 64-byte r||s form.
func SignSecp256k1(priv *secp256k1.PrivateKey, msg []byte) []byte {
	digest := sha256.Sum256(msg)
	compact := ecdsa.SignCompact(priv, digest[:], false)
	return compact[1:]
}

// VerifySecp256k1 verifies a 64-byte r||s signature over sha256(msg).
func VerifySecp256k1(pub *secp256k1.PublicKey, msg, sig []byte) bool {
	if pub == nil || len(sig) != Secp256k1SignatureSize {
		return false
	}
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow {
		return false
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return false
	}
	digest := sha256.Sum256(msg)
	return ecdsa.NewSignature(&r, &s).Verify(digest[:], pub)
}

package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"strings"
)

const (
	selfAuthenticatingSuffix = 0x02
	anonymousSuffix          = 0x04
	maxPrincipalLength       = 29
)

var principalEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Principal identifies a caller or a scope (canister) on the replica.
type Principal []byte

// AnonymousPrincipal returns the principal of unauthenticated callers.
func AnonymousPrincipal() Principal { return Principal{anonymousSuffix} }

// SelfAuthenticating derives the principal owned by a DER-encoded public key.
func SelfAuthenticating(derPublicKey []byte) Principal {
	sum := sha256.Sum224(derPublicKey)
	out := make(Principal, 0, len(sum)+1)
	out = append(out, sum[:]...)
	return append(out, selfAuthenticatingSuffix)
}

// IsAnonymous reports whether p is the anonymous principal.
func (p Principal) IsAnonymous() bool {
	return len(p) == 1 && p[0] == anonymousSuffix
}

// Equal reports whether p and o hold the same bytes.
func (p Principal) Equal(o Principal) bool { return bytes.Equal(p, o) }

// Hex returns the lowercase hex form of the raw bytes.
func (p Principal) Hex() string { return hex.EncodeToString(p) }

// String returns the textual form: base32 of crc32 || bytes, grouped by five.
func (p Principal) String() string {
	var crc [4]byte
	binary.BigEndian.PutUint32(crc[:], crc32.ChecksumIEEE(p))
	enc := strings.ToLower(principalEncoding.EncodeToString(append(crc[:], p...)))

	var b strings.Builder
	for i := 0; i < len(enc); i += 5 {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + 5
		if end > len(enc) {
			end = len(enc)
		}
		b.WriteString(enc[i:end])
	}
	return b.String()
}

// ParsePrincipal decodes the textual form produced by String.
func ParsePrincipal(text string) (Principal, error) {
	raw, err := principalEncoding.DecodeString(strings.ToUpper(strings.ReplaceAll(text, "-", "")))
	if err != nil {
		return nil, fmt.Errorf("principal %q: %w", text, err)
	}
	if len(raw) < 4 || len(raw)-4 > maxPrincipalLength {
		return nil, fmt.Errorf("principal %q: invalid length", text)
	}
	p := Principal(raw[4:])
	if binary.BigEndian.Uint32(raw[:4]) != crc32.ChecksumIEEE(p) {
		return nil, fmt.Errorf("principal %q: checksum mismatch", text)
	}
	if p.String() != strings.ToLower(text) {
		return nil, fmt.Errorf("principal %q: not in canonical form", text)
	}
	return p, nil
}

package types

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// KeyKind names a session key algorithm or backing.
type KeyKind string

// Supported session key kinds.
const (
	KeyKindEd25519   KeyKind = "ed25519"
	KeyKindSecp256k1 KeyKind = "secp256k1"
	KeyKindHandle    KeyKind = "handle"
)

// String returns the kind name.
func (k KeyKind) String() string { return string(k) }

package types

import "time"

// Delegation grants PublicKey the right to act for its signer until
// Expiration (Unix nanoseconds). A nil Targets means no restriction; a
// non-nil empty slice restricts to nothing.
type Delegation struct {
	PublicKey  []byte      `json:"pubkey" cbor:"pubkey"`
	Expiration uint64      `json:"expiration" cbor:"expiration"`
	Targets    []Principal `json:"targets,omitempty" cbor:"targets,omitempty"`
}

// ExpiresAt returns Expiration as a time.Time.
func (d Delegation) ExpiresAt() time.Time {
	return time.Unix(0, int64(d.Expiration))
}

// SignedDelegation is a Delegation plus the signature of the granting key.
type SignedDelegation struct {
	Delegation Delegation `json:"delegation" cbor:"delegation"`
	Signature  []byte     `json:"signature" cbor:"signature"`
}

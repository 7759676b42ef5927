package interfaces

import (
	"context"

	"certagent/internal/domain/types"
)

// Signer produces signatures with a session key.
type Signer interface {
	Sign(ctx context.Context, message []byte) ([]byte, error)
}

// Identity is the credential a request is issued under.
type Identity interface {
	Signer
	// Principal returns the caller principal requests are attributed to.
	Principal() types.Principal
	// PublicKey returns the DER public key presented as the request sender, or
	// nil when anonymous.
	PublicKey() []byte
	// Delegations returns the chain linking PublicKey to Principal, if any.
	Delegations() []types.SignedDelegation
}

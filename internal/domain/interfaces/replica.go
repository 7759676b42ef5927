package interfaces

import (
	"context"

	"certagent/internal/domain/types"
)

// ReplicaClient performs certified reads against a replica.
type ReplicaClient interface {
	// ReadState fetches a certificate covering req.Paths within req.Scope.
	ReadState(ctx context.Context, req *types.ReadStateRequest) (*types.ReadStateResponse, error)
}

// ReadStatePreparer is implemented by clients that can prepare (encode and
// sign) a read once so it can be resent on every poll attempt.
type ReadStatePreparer interface {
	PrepareReadState(ctx context.Context, scope types.Principal, paths []types.Path) (*types.ReadStateRequest, error)
}

// SignatureVerifier checks a certificate signature under a DER public key.
type SignatureVerifier interface {
	Verify(derPublicKey, message, signature []byte) error
}

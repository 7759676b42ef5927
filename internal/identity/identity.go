package identity

import (
	"bytes"
	"context"

	"certagent/internal/delegation"
	"certagent/internal/domain"
	cerrors "certagent/internal/errors"
)

// Anonymous is the identity of unauthenticated callers. It does not sign.
type Anonymous struct{}

func (Anonymous) Principal() domain.Principal                  { return domain.AnonymousPrincipal() }
func (Anonymous) PublicKey() []byte                            { return nil }
func (Anonymous) Delegations() []domain.SignedDelegation       { return nil }
func (Anonymous) Sign(context.Context, []byte) ([]byte, error) { return nil, nil }

// KeyIdentity signs directly with a session key.
type KeyIdentity struct {
	Key SessionKey
}

func (k KeyIdentity) Principal() domain.Principal {
	return domain.SelfAuthenticating(k.Key.PublicKey())
}
func (k KeyIdentity) PublicKey() []byte                      { return k.Key.PublicKey() }
func (k KeyIdentity) Delegations() []domain.SignedDelegation { return nil }
func (k KeyIdentity) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	return k.Key.Sign(ctx, msg)
}

// DelegationIdentity signs with a session key on behalf of the chain's root.
type DelegationIdentity struct {
	key   SessionKey
	chain *delegation.Chain
}

// NewDelegationIdentity composes key with chain. The chain must end in key.
func NewDelegationIdentity(key SessionKey, chain *delegation.Chain) (*DelegationIdentity, error) {
	if chain == nil || len(chain.Delegations) == 0 {
		return nil, cerrors.Wrap(cerrors.ErrChainMalformed, "empty delegation chain")
	}
	if !bytes.Equal(chain.SessionKey(), key.PublicKey()) {
		return nil, cerrors.Wrap(cerrors.ErrChainMalformed, "chain does not delegate to the session key")
	}
	return &DelegationIdentity{key: key, chain: chain}, nil
}

func (d *DelegationIdentity) Principal() domain.Principal { return d.chain.Principal() }

// PublicKey returns the public key of the chain's root, as senders present it.
func (d *DelegationIdentity) PublicKey() []byte { return d.chain.PublicKey }

func (d *DelegationIdentity) Delegations() []domain.SignedDelegation { return d.chain.Delegations }

func (d *DelegationIdentity) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	return d.key.Sign(ctx, msg)
}

// Chain returns the delegation chain.
func (d *DelegationIdentity) Chain() *delegation.Chain { return d.chain }

// IsAnonymous reports whether id is the anonymous identity.
func IsAnonymous(id domain.Identity) bool {
	return id == nil || id.Principal().IsAnonymous()
}

var (
	_ domain.Identity = Anonymous{}
	_ domain.Identity = KeyIdentity{}
	_ domain.Identity = (*DelegationIdentity)(nil)
)

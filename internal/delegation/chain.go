// Package delegation models delegation chains: ordered, time-boxed grants
// linking a root identity key to a session key.
package delegation

import (
	"context"
	"fmt"
	"time"

	"certagent/internal/crypto"
	"certagent/internal/domain"
	cerrors "certagent/internal/errors"
)

// Chain is an ordered sequence of signed delegations, root-most first.
// PublicKey is the DER key of the identity that signed the first delegation.
type Chain struct {
	Delegations []domain.SignedDelegation
	PublicKey   []byte
}

// FromDelegations builds a chain from already signed delegations, keeping
// their order. Signatures are not checked here; see Verify.
func FromDelegations(delegations []domain.SignedDelegation, publicKey []byte) *Chain {
	ds := make([]domain.SignedDelegation, len(delegations))
	copy(ds, delegations)
	return &Chain{Delegations: ds, PublicKey: append([]byte(nil), publicKey...)}
}

// Create signs a delegation from the holder of fromKey to toKey and appends
// it to previous. With a nil previous the new chain is rooted at fromKey.
func Create(ctx context.Context, from domain.Signer, fromKey, toKey []byte, expiration time.Time, targets []domain.Principal, previous *Chain) (*Chain, error) {
	d := domain.Delegation{
		PublicKey:  append([]byte(nil), toKey...),
		Expiration: uint64(expiration.UnixNano()),
		Targets:    targets,
	}
	msg, err := crypto.DelegationSignable(d)
	if err != nil {
		return nil, err
	}
	sig, err := from.Sign(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("sign delegation: %w", err)
	}
	signed := domain.SignedDelegation{Delegation: d, Signature: sig}

	if previous == nil {
		return FromDelegations([]domain.SignedDelegation{signed}, fromKey), nil
	}
	return FromDelegations(append(previous.Delegations[:len(previous.Delegations):len(previous.Delegations)], signed), previous.PublicKey), nil
}

// IsValid reports whether every delegation expires after now. An empty chain
// is vacuously valid; callers treat it as the anonymous case.
func IsValid(c *Chain, now time.Time) bool {
	if c == nil {
		return false
	}
	n := uint64(now.UnixNano())
	for _, d := range c.Delegations {
		if d.Delegation.Expiration <= n {
			return false
		}
	}
	return true
}

// IsValid reports whether every delegation in c expires after now.
func (c *Chain) IsValid(now time.Time) bool { return IsValid(c, now) }

// Check returns ErrDelegationExpired when c is not valid at now and
// ErrChainMalformed when it has no delegations or no public key.
func (c *Chain) Check(now time.Time) error {
	if c == nil || len(c.Delegations) == 0 || len(c.PublicKey) == 0 {
		return cerrors.Wrap(cerrors.ErrChainMalformed, "empty delegation chain")
	}
	if !c.IsValid(now) {
		return cerrors.Wrapf(cerrors.ErrDelegationExpired, "chain expired at %s", c.Expiration().UTC().Format(time.RFC3339Nano))
	}
	return nil
}

// Expiration returns the earliest expiration in the chain.
func (c *Chain) Expiration() time.Time {
	var min uint64
	for i, d := range c.Delegations {
		if i == 0 || d.Delegation.Expiration < min {
			min = d.Delegation.Expiration
		}
	}
	return time.Unix(0, int64(min))
}

// SessionKey returns the key the last delegation grants to.
func (c *Chain) SessionKey() []byte {
	if len(c.Delegations) == 0 {
		return c.PublicKey
	}
	return c.Delegations[len(c.Delegations)-1].Delegation.PublicKey
}

// Principal returns the principal the chain acts for.
func (c *Chain) Principal() domain.Principal {
	return domain.SelfAuthenticating(c.PublicKey)
}

// Verify checks that delegation 0 is signed by PublicKey and each later
// delegation by the key granted in the previous one.
func (c *Chain) Verify(sv domain.SignatureVerifier) error {
	if sv == nil {
		sv = crypto.DERVerifier{}
	}
	signer := c.PublicKey
	for i, d := range c.Delegations {
		msg, err := crypto.DelegationSignable(d.Delegation)
		if err != nil {
			return cerrors.Wrapf(cerrors.ErrChainMalformed, "delegation %d: %v", i, err)
		}
		if err := sv.Verify(signer, msg, d.Signature); err != nil {
			return cerrors.Wrapf(cerrors.ErrChainMalformed, "delegation %d: %v", i, err)
		}
		signer = d.Delegation.PublicKey
	}
	return nil
}

// Equal reports whether two chains hold the same delegations and key.
func (c *Chain) Equal(o *Chain) bool {
	a, errA := c.MarshalJSON()
	b, errB := o.MarshalJSON()
	return errA == nil && errB == nil && string(a) == string(b)
}

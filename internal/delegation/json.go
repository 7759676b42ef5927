package delegation

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"certagent/internal/domain"
	cerrors "certagent/internal/errors"
)

// The textual encoding uses hex for all byte strings and a hex string for
// the nanosecond expiration so no precision is lost in JSON numbers.
type jsonChain struct {
	Delegations []jsonSigned `json:"delegations"`
	PublicKey   string       `json:"publicKey"`
}

type jsonSigned struct {
	Delegation jsonDelegation `json:"delegation"`
	Signature  string         `json:"signature"`
}

type jsonDelegation struct {
	Expiration string    `json:"expiration"`
	PublicKey  string    `json:"pubkey"`
	Targets    *[]string `json:"targets,omitempty"`
}

// MarshalJSON encodes c in its persistent textual form.
func (c *Chain) MarshalJSON() ([]byte, error) {
	out := jsonChain{PublicKey: hex.EncodeToString(c.PublicKey), Delegations: make([]jsonSigned, 0, len(c.Delegations))}
	for _, d := range c.Delegations {
		jd := jsonDelegation{
			Expiration: strconv.FormatUint(d.Delegation.Expiration, 16),
			PublicKey:  hex.EncodeToString(d.Delegation.PublicKey),
		}
		if d.Delegation.Targets != nil {
			ts := make([]string, len(d.Delegation.Targets))
			for i, t := range d.Delegation.Targets {
				ts[i] = t.Hex()
			}
			jd.Targets = &ts
		}
		out.Delegations = append(out.Delegations, jsonSigned{Delegation: jd, Signature: hex.EncodeToString(d.Signature)})
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (c *Chain) UnmarshalJSON(data []byte) error {
	var in jsonChain
	if err := json.Unmarshal(data, &in); err != nil {
		return cerrors.Wrap(cerrors.ErrChainMalformed, err.Error())
	}
	pub, err := hex.DecodeString(in.PublicKey)
	if err != nil {
		return cerrors.Wrapf(cerrors.ErrChainMalformed, "public key: %v", err)
	}
	ds := make([]domain.SignedDelegation, 0, len(in.Delegations))
	for i, jd := range in.Delegations {
		d, err := decodeSigned(jd)
		if err != nil {
			return cerrors.Wrapf(cerrors.ErrChainMalformed, "delegation %d: %v", i, err)
		}
		ds = append(ds, d)
	}
	c.PublicKey, c.Delegations = pub, ds
	return nil
}

func decodeSigned(jd jsonSigned) (domain.SignedDelegation, error) {
	var out domain.SignedDelegation
	exp, err := strconv.ParseUint(jd.Delegation.Expiration, 16, 64)
	if err != nil {
		return out, fmt.Errorf("expiration: %w", err)
	}
	pub, err := hex.DecodeString(jd.Delegation.PublicKey)
	if err != nil {
		return out, fmt.Errorf("pubkey: %w", err)
	}
	sig, err := hex.DecodeString(jd.Signature)
	if err != nil {
		return out, fmt.Errorf("signature: %w", err)
	}
	out.Delegation = domain.Delegation{PublicKey: pub, Expiration: exp}
	if jd.Delegation.Targets != nil {
		out.Delegation.Targets = make([]domain.Principal, len(*jd.Delegation.Targets))
		for i, t := range *jd.Delegation.Targets {
			p, err := hex.DecodeString(t)
			if err != nil {
				return out, fmt.Errorf("target %d: %w", i, err)
			}
			out.Delegation.Targets[i] = p
		}
	}
	out.Signature = sig
	return out, nil
}

// Parse decodes a chain from its textual form.
func Parse(data []byte) (*Chain, error) {
	c := &Chain{}
	if err := c.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return c, nil
}

// FromWire builds a chain from delegations delivered by an identity provider.
func FromWire(ws []domain.WireDelegation, userPublicKey []byte) *Chain {
	ds := make([]domain.SignedDelegation, len(ws))
	for i, w := range ws {
		d := domain.Delegation{PublicKey: w.Delegation.PublicKey, Expiration: w.Delegation.Expiration}
		if w.Delegation.Targets != nil {
			d.Targets = make([]domain.Principal, len(w.Delegation.Targets))
			for j, t := range w.Delegation.Targets {
				d.Targets[j] = t
			}
		}
		ds[i] = domain.SignedDelegation{Delegation: d, Signature: w.Signature}
	}
	return FromDelegations(ds, userPublicKey)
}

// ToWire converts c's delegations to the form providers deliver.
func ToWire(c *Chain) []domain.WireDelegation {
	out := make([]domain.WireDelegation, len(c.Delegations))
	for i, d := range c.Delegations {
		out[i].Delegation.PublicKey = d.Delegation.PublicKey
		out[i].Delegation.Expiration = d.Delegation.Expiration
		if d.Delegation.Targets != nil {
			out[i].Delegation.Targets = make([][]byte, len(d.Delegation.Targets))
			for j, t := range d.Delegation.Targets {
				out[i].Delegation.Targets[j] = t
			}
		}
		out[i].Signature = d.Signature
	}
	return out
}

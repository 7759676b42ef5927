package certificate

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"certagent/internal/crypto"
	"certagent/internal/domain"
	cerrors "certagent/internal/errors"
)

// selfDescribeTag is the optional CBOR self-describe prefix (tag 55799).
var selfDescribeTag = []byte{0xd9, 0xd9, 0xf7}

// Certificate is a decoded certificate. Values returned by Verify have had
// their signature and delegation checked.
type Certificate struct {
	Tree       Node
	Signature  []byte
	Delegation *Delegation
}

// Delegation links a certificate to a subnet key certified by the root.
type Delegation struct {
	SubnetID    []byte
	Certificate []byte
}

type wireCertificate struct {
	Tree       cbor.RawMessage `cbor:"tree"`
	Signature  []byte          `cbor:"signature"`
	Delegation *wireDelegation `cbor:"delegation,omitempty"`
}

type wireDelegation struct {
	SubnetID    []byte `cbor:"subnet_id"`
	Certificate []byte `cbor:"certificate"`
}

// Decode parses a CBOR certificate without verifying it.
func Decode(data []byte) (*Certificate, error) {
	data = bytes.TrimPrefix(data, selfDescribeTag)
	var w wireCertificate
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, cerrors.Wrapf(cerrors.ErrMalformedCertificate, "decode certificate: %v", err)
	}
	if len(w.Tree) == 0 || len(w.Signature) == 0 {
		return nil, cerrors.Wrap(cerrors.ErrMalformedCertificate, "certificate missing tree or signature")
	}
	tree, err := DecodeTree(w.Tree)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrMalformedCertificate, err.Error())
	}
	c := &Certificate{Tree: tree, Signature: w.Signature}
	if w.Delegation != nil {
		c.Delegation = &Delegation{SubnetID: w.Delegation.SubnetID, Certificate: w.Delegation.Certificate}
	}
	return c, nil
}

// Encode returns the CBOR encoding of c.
func (c *Certificate) Encode() ([]byte, error) {
	tree, err := EncodeTree(c.Tree)
	if err != nil {
		return nil, err
	}
	w := wireCertificate{Tree: tree, Signature: c.Signature}
	if c.Delegation != nil {
		w.Delegation = &wireDelegation{SubnetID: c.Delegation.SubnetID, Certificate: c.Delegation.Certificate}
	}
	return cbor.Marshal(w)
}

// Lookup resolves path in the certificate's tree.
func (c *Certificate) Lookup(path domain.Path) LookupResult {
	return LookupPath(c.Tree, path)
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithSignatureVerifier replaces the signature primitive (DER ed25519 and
// secp256k1 by default).
func WithSignatureVerifier(sv domain.SignatureVerifier) Option {
	return func(v *Verifier) { v.sigs = sv }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(v *Verifier) { v.log = l }
}

// Verifier validates certificates against a trusted root key.
type Verifier struct {
	sigs domain.SignatureVerifier
	log  zerolog.Logger
}

// NewVerifier returns a Verifier.
func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{sigs: crypto.DERVerifier{}, log: zerolog.Nop()}
	for _, o := range opts {
		o(v)
	}
	v.log = v.log.With().Str("component", "certificate").Logger()
	return v
}

// Verify decodes raw and checks its signature against rootKey, following
// a subnet delegation if present. scope is the canister the certificate is
// expected to speak for; it is checked against the delegation's canister
// ranges when those are certified.
func (v *Verifier) Verify(raw, rootKey []byte, scope domain.Principal) (*Certificate, error) {
	return v.verify(raw, rootKey, scope, false)
}

func (v *Verifier) verify(raw, rootKey []byte, scope domain.Principal, inner bool) (*Certificate, error) {
	c, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	key := rootKey
	if c.Delegation != nil {
		if inner {
			return nil, cerrors.Wrap(cerrors.ErrMalformedCertificate, "nested certificate delegation")
		}
		key, err = v.subnetKey(c.Delegation, rootKey, scope)
		if err != nil {
			return nil, err
		}
	}

	root := c.Tree.Digest()
	if err := v.sigs.Verify(key, crypto.StateRootSignable(root[:]), c.Signature); err != nil {
		v.log.Debug().Err(err).Bool("delegated", c.Delegation != nil).Msg("certificate signature rejected")
		if cerrors.Is(err, cerrors.ErrInvalidSignature) {
			return nil, err
		}
		return nil, cerrors.Wrap(cerrors.ErrInvalidSignature, err.Error())
	}
	return c, nil
}

func (v *Verifier) subnetKey(d *Delegation, rootKey []byte, scope domain.Principal) ([]byte, error) {
	inner, err := v.verify(d.Certificate, rootKey, scope, true)
	if err != nil {
		return nil, fmt.Errorf("subnet delegation: %w", err)
	}

	keyPath := domain.NewPath("subnet", d.SubnetID, "public_key")
	res := inner.Lookup(keyPath)
	if res.Status != Found {
		return nil, cerrors.Wrapf(cerrors.ErrUntrustedRoot, "subnet public key %s", res.Status)
	}

	if len(scope) == 0 {
		return res.Value, nil
	}
	ranges := inner.Lookup(domain.NewPath("subnet", d.SubnetID, "canister_ranges"))
	switch ranges.Status {
	case Found:
		ok, err := inRanges(ranges.Value, scope)
		if err != nil {
			return nil, cerrors.Wrap(cerrors.ErrMalformedCertificate, err.Error())
		}
		if !ok {
			return nil, cerrors.Wrapf(cerrors.ErrUntrustedRoot, "scope %s outside subnet canister ranges", scope)
		}
	case Absent:
	default:
		return nil, cerrors.Wrapf(cerrors.ErrUntrustedRoot, "canister ranges %s", ranges.Status)
	}
	return res.Value, nil
}

func inRanges(encoded []byte, scope domain.Principal) (bool, error) {
	var ranges [][2][]byte
	if err := cbor.Unmarshal(encoded, &ranges); err != nil {
		return false, fmt.Errorf("decode canister ranges: %w", err)
	}
	for _, r := range ranges {
		if bytes.Compare(scope, r[0]) >= 0 && bytes.Compare(scope, r[1]) <= 0 {
			return true, nil
		}
	}
	return false, nil
}

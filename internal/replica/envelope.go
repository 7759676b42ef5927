package replica

import (
	"bytes"
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"

	"certagent/internal/crypto"
	"certagent/internal/delegation"
	"certagent/internal/domain"
	cerrors "certagent/internal/errors"
)

// Request types carried in envelope content.
const (
	RequestTypeCall      = "call"
	RequestTypeReadState = "read_state"
)

var selfDescribeTag = []byte{0xd9, 0xd9, 0xf7}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
	mapType = reflect.TypeOf(map[string]any(nil))
)

func init() {
	var err error
	if encMode, err = cbor.CanonicalEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{DefaultMapType: mapType}).DecMode(); err != nil {
		panic(err)
	}
}

// Envelope is a request as sent over the wire. Content is kept as a generic
// map so the request id can be recomputed from any decoded envelope.
type Envelope struct {
	Content          map[string]any   `cbor:"content"`
	SenderPubkey     []byte           `cbor:"sender_pubkey,omitempty"`
	SenderSig        []byte           `cbor:"sender_sig,omitempty"`
	SenderDelegation []wireDelegation `cbor:"sender_delegation,omitempty"`
}

type wireDelegation struct {
	Delegation struct {
		Pubkey     []byte    `cbor:"pubkey"`
		Expiration uint64    `cbor:"expiration"`
		Targets    *[][]byte `cbor:"targets,omitempty"`
	} `cbor:"delegation"`
	Signature []byte `cbor:"signature"`
}

func toWire(ds []domain.SignedDelegation) []wireDelegation {
	if len(ds) == 0 {
		return nil
	}
	out := make([]wireDelegation, len(ds))
	for i, d := range ds {
		out[i].Delegation.Pubkey = d.Delegation.PublicKey
		out[i].Delegation.Expiration = d.Delegation.Expiration
		if d.Delegation.Targets != nil {
			ts := make([][]byte, len(d.Delegation.Targets))
			for j, t := range d.Delegation.Targets {
				ts[j] = t
			}
			out[i].Delegation.Targets = &ts
		}
		out[i].Signature = d.Signature
	}
	return out
}

func fromWire(ws []wireDelegation) []domain.SignedDelegation {
	out := make([]domain.SignedDelegation, len(ws))
	for i, w := range ws {
		d := domain.Delegation{PublicKey: w.Delegation.Pubkey, Expiration: w.Delegation.Expiration}
		if w.Delegation.Targets != nil {
			d.Targets = make([]domain.Principal, len(*w.Delegation.Targets))
			for j, t := range *w.Delegation.Targets {
				d.Targets[j] = t
			}
		}
		out[i] = domain.SignedDelegation{Delegation: d, Signature: w.Signature}
	}
	return out
}

// Encode returns the self-describing CBOR encoding of e.
func (e *Envelope) Encode() ([]byte, error) {
	b, err := encMode.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return append(append([]byte{}, selfDescribeTag...), b...), nil
}

// DecodeEnvelope parses an envelope, with or without the self-describe tag.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	data = bytes.TrimPrefix(data, selfDescribeTag)
	var e Envelope
	if err := decMode.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if e.Content == nil {
		return nil, fmt.Errorf("decode envelope: missing content")
	}
	return &e, nil
}

// RequestID returns the id of the request the envelope carries.
func (e *Envelope) RequestID() (domain.RequestID, error) {
	return crypto.RequestID(e.Content)
}

// RequestType returns content.request_type.
func (e *Envelope) RequestType() string {
	s, _ := e.Content["request_type"].(string)
	return s
}

// Sender returns content.sender.
func (e *Envelope) Sender() domain.Principal {
	switch v := e.Content["sender"].(type) {
	case domain.Principal:
		return v
	case []byte:
		return v
	default:
		return nil
	}
}

// Verify checks the sender signature and delegation chain at now. Anonymous
// envelopes carry neither and are accepted as-is.
func (e *Envelope) Verify(sv domain.SignatureVerifier, now time.Time) error {
	sender := e.Sender()
	if sender.IsAnonymous() {
		if e.SenderPubkey != nil || e.SenderSig != nil {
			return fmt.Errorf("anonymous envelope carries a signature")
		}
		return nil
	}
	if !sender.Equal(domain.SelfAuthenticating(e.SenderPubkey)) {
		return fmt.Errorf("sender %s does not match sender_pubkey", sender)
	}
	signer := e.SenderPubkey
	if len(e.SenderDelegation) > 0 {
		chain := delegation.FromDelegations(fromWire(e.SenderDelegation), e.SenderPubkey)
		if err := chain.Check(now); err != nil {
			return err
		}
		if err := chain.Verify(sv); err != nil {
			return err
		}
		signer = chain.SessionKey()
	}
	id, err := e.RequestID()
	if err != nil {
		return err
	}
	if sv == nil {
		sv = crypto.DERVerifier{}
	}
	if err := sv.Verify(signer, crypto.RequestSignable(id), e.SenderSig); err != nil {
		return cerrors.Wrap(err, "sender signature")
	}
	return nil
}

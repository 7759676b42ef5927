package types

// Handshake message kinds.
const (
	KindAuthorizeReady   = "authorize-ready"
	KindAuthorizeClient  = "authorize-client"
	KindAuthorizeSuccess = "authorize-client-success"
	KindAuthorizeFailure = "authorize-client-failure"
)

// SurfaceEvent is one message received from an authentication surface
// together with the origin it was sent from.
type SurfaceEvent struct {
	Origin string
	Data   []byte
}

// MessageHeader is decoded first to dispatch on Kind.
type MessageHeader struct {
	Kind string `json:"kind"`
}

// AuthorizeClientRequest asks the provider to delegate to SessionPublicKey.
type AuthorizeClientRequest struct {
	Kind             string      `json:"kind"`
	SessionPublicKey []byte      `json:"sessionPublicKey"`
	MaxTimeToLive    uint64      `json:"maxTimeToLive"`
	ScopeRestriction []Principal `json:"scopeRestriction,omitempty"`
	DerivationOrigin string      `json:"derivationOrigin,omitempty"`
}

// WireDelegation is a delegation as delivered by the provider.
type WireDelegation struct {
	Delegation struct {
		PublicKey  []byte   `json:"pubkey"`
		Expiration uint64   `json:"expiration"`
		Targets    [][]byte `json:"targets,omitempty"`
	} `json:"delegation"`
	Signature []byte `json:"signature"`
}

// AuthorizeSuccess delivers a new delegation chain.
type AuthorizeSuccess struct {
	Kind          string           `json:"kind"`
	Delegations   []WireDelegation `json:"delegations"`
	UserPublicKey []byte           `json:"userPublicKey"`
	AuthnMethod   string           `json:"authnMethod,omitempty"`
}

// AuthorizeFailure carries the provider's failure text.
type AuthorizeFailure struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

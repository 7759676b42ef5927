package domain

import (
	interfaces "certagent/internal/domain/interfaces"
	types "certagent/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Principal              = types.Principal
	RequestID              = types.RequestID
	Label                  = types.Label
	Path                   = types.Path
	CallStatus             = types.CallStatus
	RejectInfo             = types.RejectInfo
	Delegation             = types.Delegation
	SignedDelegation       = types.SignedDelegation
	ReadStateRequest       = types.ReadStateRequest
	ReadStateResponse      = types.ReadStateResponse
	StorageKey             = types.StorageKey
	SurfaceEvent           = types.SurfaceEvent
	MessageHeader          = types.MessageHeader
	AuthorizeClientRequest = types.AuthorizeClientRequest
	AuthorizeSuccess       = types.AuthorizeSuccess
	AuthorizeFailure       = types.AuthorizeFailure
	WireDelegation         = types.WireDelegation
	Fingerprint            = types.Fingerprint
	KeyKind                = types.KeyKind
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	ReplicaClient     = interfaces.ReplicaClient
	ReadStatePreparer = interfaces.ReadStatePreparer
	SignatureVerifier = interfaces.SignatureVerifier
	KeyStorage        = interfaces.KeyStorage
	Signer            = interfaces.Signer
	Identity          = interfaces.Identity
	Surface           = interfaces.Surface
	SurfaceOpener     = interfaces.SurfaceOpener
	IdleDetector      = interfaces.IdleDetector
)

// Status values.
const (
	StatusUnknown    = types.StatusUnknown
	StatusReceived   = types.StatusReceived
	StatusProcessing = types.StatusProcessing
	StatusReplied    = types.StatusReplied
	StatusRejected   = types.StatusRejected
	StatusDone       = types.StatusDone
)

// Storage record names.
const (
	StorageKeySessionKey      = types.StorageKeySessionKey
	StorageKeyDelegationChain = types.StorageKeyDelegationChain
	StorageKeyIntegrityVector = types.StorageKeyIntegrityVector
)

// Key kinds.
const (
	KeyKindEd25519   = types.KeyKindEd25519
	KeyKindSecp256k1 = types.KeyKindSecp256k1
	KeyKindHandle    = types.KeyKindHandle
)

// Handshake message kinds.
const (
	KindAuthorizeReady   = types.KindAuthorizeReady
	KindAuthorizeClient  = types.KindAuthorizeClient
	KindAuthorizeSuccess = types.KindAuthorizeSuccess
	KindAuthorizeFailure = types.KindAuthorizeFailure
)

// Constructors re-exported for callers that only import domain.
var (
	AnonymousPrincipal = types.AnonymousPrincipal
	SelfAuthenticating = types.SelfAuthenticating
	ParsePrincipal     = types.ParsePrincipal
	ParseRequestID     = types.ParseRequestID
	ParseCallStatus    = types.ParseCallStatus
	NewPath            = types.NewPath
	RequestStatusPath  = types.RequestStatusPath
	SessionStorageKeys = types.SessionStorageKeys
)

package types

// ReadStateRequest is a prepared certified read. Envelope is the encoded,
// possibly signed request body; transports that support reuse send it as-is
// on every attempt.
type ReadStateRequest struct {
	Scope    Principal
	Paths    []Path
	Envelope []byte
}

// ReadStateResponse carries a certificate together with the root key that
// must be used to validate it.
type ReadStateResponse struct {
	Certificate []byte
	RootKey     []byte
}

// Package main runs an in-memory development replica for certagent.
//
// HTTP API
//
//	GET /api/v2/status
//	    CBOR status document carrying the root key certificates are
//	    signed with.
//
//	POST /api/v2/canister/{scope}/call
//	    Accept a signed call envelope. The call moves through received and
//	    processing to replied, one step per --delay. The reply echoes the
//	    argument; calls to the method "reject" are rejected instead.
//
//	POST /api/v2/canister/{scope}/read_state
//	    Return a certificate over the requested request_status paths and
//	    the replica time, signed by the root key.
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - A fresh root key is generated on every start. Its hex encoding is
//     logged so clients can pin it with replica.root_key.
//   - Envelopes are verified, including sender delegation chains. A
//     request status is only served to the sender of the call.
//   - The default listen address is 127.0.0.1:4943.
package main

// Package replica provides an HTTP implementation of domain.ReplicaClient.
//
// Requests are CBOR envelopes carrying the request content, the sender's
// public key, signature and delegation chain. The client supports:
//   - Preparing and signing a read_state request once for reuse.
//   - Sending read_state requests and returning the certificate together
//     with the root key it must be verified against.
//   - Submitting calls and returning their request id.
//   - Fetching the replica status, which carries the root key.
//
// Non-2xx statuses are returned as errors with the HTTP method, path and
// status text to aid diagnostics.
//
// Server is the counterpart used for development: an in-memory replica that
// certifies request status with its own root key.
package replica

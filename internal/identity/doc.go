// Package identity manages session keys and the identities requests are
// issued under.
//
// A session key is either portable (Ed25519, secp256k1: serialisable as a
// JSON record) or a handle to a key held in a Vault, which never exposes the
// private material; only the handle reference is persisted. Identities
// compose a session key with an optional delegation chain.
package identity

// Package crypto exposes the primitives used by certagent.
//
// Contents
//
//   - Ed25519 and secp256k1 key generation, signing and verification
//   - DER SubjectPublicKeyInfo encoding of session public keys (EncodeDER,
//     ParseDER) and a DER-dispatching signature verifier (DERVerifier)
//   - Representation-independent hashing of request content and delegations
//     (HashOfMap, RequestSignable, DelegationSignable)
//   - Unsigned LEB128 encoding (EncodeULEB128, DecodeULEB128)
//   - Passphrase key derivation and AEAD sealing for stored records
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// Callers should treat returned secrets as sensitive and rely on Wipe when
// practical to reduce lifetime in memory.
package crypto

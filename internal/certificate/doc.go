// Package certificate validates certified state returned by a replica.
//
// A certificate is a CBOR map {tree, signature, delegation?}. The tree is a
// Merkle hash tree whose root digest, prefixed with the state-root domain
// separator, is signed by the root key (or by a subnet key that is itself
// certified by the root key through the delegation). Verify checks all of
// this; Lookup then resolves paths in the verified tree without any further
// I/O.
//
// The package also builds and signs trees (Subtree, Sign, Prune) for the
// development replica and tests.
package certificate

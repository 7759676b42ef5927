// Package store provides persistence for session records.
//
// It contains concrete implementations of domain.KeyStorage:
//   - Memory: process-local map, the default when no durable backend is set
//   - FileStore: one file per record under a directory, written atomically
//   - Redis: records under a key prefix on a Redis server
//   - Encrypted: a decorator that seals every value with a passphrase-derived
//     key; the KDF parameters live in the integrity-vector record
//
// All backends are safe for concurrent use and give last-write-wins
// semantics across processes sharing the same backing medium. Migrate moves
// records from a legacy backend to the current one without ever destroying
// the legacy copy before the new write succeeded.
package store

package types

// StorageKey is a logical record name in secure key storage.
type StorageKey string

// String returns the storage key name.
func (k StorageKey) String() string { return string(k) }

// Logical records kept for a session.
const (
	StorageKeySessionKey      StorageKey = "session-key"
	StorageKeyDelegationChain StorageKey = "delegation-chain"
	StorageKeyIntegrityVector StorageKey = "integrity-vector"
)

// SessionStorageKeys lists every record removed on logout.
func SessionStorageKeys() []StorageKey {
	return []StorageKey{StorageKeySessionKey, StorageKeyDelegationChain, StorageKeyIntegrityVector}
}

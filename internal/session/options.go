package session

import (
	"time"

	"github.com/rs/zerolog"

	"certagent/internal/clock"
	"certagent/internal/domain"
	"certagent/internal/identity"
	"certagent/internal/idle"
)

const (
	// DefaultProvider is used when LoginOptions.Provider is empty.
	DefaultProvider = "https://identity.ic0.app"
	// DefaultMaxTimeToLive bounds requested delegations when unset.
	DefaultMaxTimeToLive = 8 * time.Hour
	// DefaultLivenessInterval is how often an open surface is checked for closure.
	DefaultLivenessInterval = 500 * time.Millisecond

	authorizeFragment = "authorize"
)

// IdleOptions configures the idle policy.
type IdleOptions struct {
	// Disable turns idle detection off entirely.
	Disable bool
	// DisableDefaultCallback keeps the detector but does not log out on idle.
	DisableDefaultCallback bool
	Timeout                time.Duration
	// OnIdle runs on idle in addition to the default callback.
	OnIdle func()
	// OnLoggedOut is notified after the default callback logged out.
	OnLoggedOut func()
}

// Options configures Restore.
type Options struct {
	// Storage holds the session records. Defaults to in-memory storage.
	Storage domain.KeyStorage
	// LegacyStorage, when set, is migrated into Storage on restore.
	LegacyStorage domain.KeyStorage
	// KeyType selects the kind of generated session keys.
	KeyType domain.KeyKind
	// Vault holds handle keys. Required for KeyKindHandle.
	Vault *identity.Vault
	// Identity is a caller-supplied session key. Key storage is then not
	// consulted for the key.
	Identity identity.SessionKey
	Idle     IdleOptions
	// NewIdleDetector builds the idle detector. Defaults to idle.New.
	NewIdleDetector func(IdleOptions, zerolog.Logger) domain.IdleDetector
	// Opener opens the authentication surface for handshakes.
	Opener domain.SurfaceOpener
	// VerifyDelegations checks delegation signatures on restore and on
	// handshake completion.
	VerifyDelegations bool
	Clock             clock.Clock
	Logger            zerolog.Logger
}

// LoginOptions configures one handshake.
type LoginOptions struct {
	// Provider is the identity provider URL. Its fragment is forced to
	// "#authorize".
	Provider string
	// MaxTimeToLive is the longest delegation the session asks for.
	MaxTimeToLive    time.Duration
	DerivationOrigin string
	ScopeRestriction []domain.Principal
	// CustomValues are merged into the authorize-client message.
	CustomValues map[string]any
	// WindowFeatures is passed to the surface opener.
	WindowFeatures   string
	LivenessInterval time.Duration
}

func defaultIdleDetector(o IdleOptions, log zerolog.Logger) domain.IdleDetector {
	return idle.New(idle.Options{Timeout: o.Timeout, OnIdle: o.OnIdle, Logger: log})
}

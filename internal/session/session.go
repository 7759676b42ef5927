package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"certagent/internal/clock"
	"certagent/internal/delegation"
	"certagent/internal/domain"
	cerrors "certagent/internal/errors"
	"certagent/internal/identity"
	"certagent/internal/store"
)

// Session holds the session key, the delegation chain and the effective
// identity derived from them. It is safe for concurrent use.
type Session struct {
	storage      domain.KeyStorage
	keyType      domain.KeyKind
	vault        *identity.Vault
	base         identity.SessionKey
	idleOpts     IdleOptions
	newIdle      func(IdleOptions, zerolog.Logger) domain.IdleDetector
	opener       domain.SurfaceOpener
	verify       bool
	clock        clock.Clock
	log          zerolog.Logger
	mu           sync.Mutex
	key          identity.SessionKey
	chain        *delegation.Chain
	ident        domain.Identity
	idle         domain.IdleDetector
	idleDefaults bool
	hs           *Handshake
}

// Restore builds a Session from storage.
//
// Records held only by LegacyStorage are migrated first; a failed migration
// is logged and the legacy values stay where they are. A stored chain that is
// expired, malformed or not bound to the stored key purges every record and
// leaves the Session anonymous. With nothing stored, a fresh key is generated
// and persisted.
func Restore(ctx context.Context, opts Options) (*Session, error) {
	s := &Session{
		storage:  opts.Storage,
		keyType:  opts.KeyType,
		vault:    opts.Vault,
		base:     opts.Identity,
		idleOpts: opts.Idle,
		newIdle:  opts.NewIdleDetector,
		opener:   opts.Opener,
		verify:   opts.VerifyDelegations,
		clock:    clock.OrReal(opts.Clock),
		log:      opts.Logger.With().Str("component", "session").Logger(),
		ident:    identity.Anonymous{},
	}
	if s.storage == nil {
		s.storage = store.NewMemory()
	}
	if s.keyType == "" {
		s.keyType = domain.KeyKindEd25519
	}
	if s.newIdle == nil {
		s.newIdle = defaultIdleDetector
	}

	if opts.LegacyStorage != nil {
		if err := store.Migrate(ctx, opts.LegacyStorage, s.storage, domain.SessionStorageKeys(), s.log); err != nil {
			s.log.Warn().Err(err).Msg("continuing with partially migrated storage")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.loadKey(ctx)
	if err != nil {
		return nil, err
	}
	chain, err := s.loadChain(ctx)
	if err != nil {
		return nil, err
	}

	switch {
	case chain != nil:
		ident, err := s.bind(key, chain)
		if err != nil {
			s.log.Info().Err(err).Msg("stored delegation chain unusable, purging session")
			if err := s.purgeLocked(ctx); err != nil {
				return nil, err
			}
			s.key = s.base
			break
		}
		s.key, s.chain, s.ident = key, chain, ident
	case key != nil:
		s.key = key
	default:
		if _, err := s.ensureKeyLocked(ctx); err != nil {
			return nil, err
		}
	}

	if s.chain != nil || s.base != nil {
		s.ensureIdleLocked()
	}
	s.log.Debug().Stringer("state", s.stateLocked()).Msg("session restored")
	return s, nil
}

func (s *Session) loadKey(ctx context.Context) (identity.SessionKey, error) {
	if s.base != nil {
		return s.base, nil
	}
	data, ok, err := s.storage.Get(ctx, domain.StorageKeySessionKey)
	if err != nil || !ok {
		return nil, err
	}
	key, err := identity.DecodeKeyRecord(data, s.vault)
	switch {
	case err == nil:
		return key, nil
	case errors.Is(err, cerrors.ErrNoSessionKey):
		// Handle keys do not outlive the vault that created them.
		s.log.Warn().Err(err).Msg("stored key handle is gone, purging session")
	default:
		s.log.Warn().Err(err).Msg("stored session key does not decode, purging session")
	}
	return nil, s.purgeLocked(ctx)
}

func (s *Session) loadChain(ctx context.Context) (*delegation.Chain, error) {
	data, ok, err := s.storage.Get(ctx, domain.StorageKeyDelegationChain)
	if err != nil || !ok {
		return nil, err
	}
	chain, err := delegation.Parse(data)
	if err != nil {
		s.log.Warn().Err(err).Msg("stored delegation chain does not decode")
		return delegation.FromDelegations(nil, nil), nil
	}
	return chain, nil
}

// bind checks chain and composes it with key.
func (s *Session) bind(key identity.SessionKey, chain *delegation.Chain) (*identity.DelegationIdentity, error) {
	if key == nil {
		return nil, cerrors.ErrNoSessionKey
	}
	if err := chain.Check(s.clock.Now()); err != nil {
		return nil, err
	}
	if s.verify {
		if err := chain.Verify(nil); err != nil {
			return nil, err
		}
	}
	return identity.NewDelegationIdentity(key, chain)
}

// ensureKeyLocked returns the held key, generating and persisting one when
// none is held.
func (s *Session) ensureKeyLocked(ctx context.Context) (identity.SessionKey, error) {
	if s.key != nil {
		return s.key, nil
	}
	key, err := identity.GenerateKey(s.keyType, s.vault)
	if err != nil {
		return nil, cerrors.Wrap(err, "generate session key")
	}
	rec, err := identity.EncodeKeyRecord(key)
	if err != nil {
		return nil, err
	}
	if err := s.storage.Set(ctx, domain.StorageKeySessionKey, rec); err != nil {
		return nil, cerrors.Wrap(err, "persist session key")
	}
	s.key = key
	s.log.Debug().Str("kind", string(key.Kind())).Msg("generated session key")
	return key, nil
}

func (s *Session) ensureIdleLocked() {
	if s.idleOpts.Disable {
		return
	}
	if s.idle == nil {
		s.idle = s.newIdle(s.idleOpts, s.log)
	}
	if !s.idleOpts.DisableDefaultCallback && !s.idleDefaults {
		s.idle.RegisterCallback(s.onIdle)
		s.idleDefaults = true
	}
}

func (s *Session) onIdle() {
	s.log.Info().Msg("logging out idle session")
	if err := s.Logout(context.Background()); err != nil {
		s.log.Warn().Err(err).Msg("idle logout incomplete")
	}
	if s.idleOpts.OnLoggedOut != nil {
		s.idleOpts.OnLoggedOut()
	}
}

// purgeLocked removes every session record. All removals are attempted.
func (s *Session) purgeLocked(ctx context.Context) error {
	var errs []error
	for _, k := range domain.SessionStorageKeys() {
		if err := s.storage.Remove(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Logout supersedes any handshake in flight, removes every stored record and
// returns the Session to the anonymous identity. Calling it again is a no-op
// apart from repeating the storage removal.
func (s *Session) Logout(ctx context.Context) error {
	s.supersede()

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.purgeLocked(ctx)
	if hk, ok := s.key.(*identity.HandleKey); ok && s.vault != nil && s.key != s.base {
		s.vault.Delete(hk.Handle())
	}
	s.key = s.base
	s.chain = nil
	s.ident = identity.Anonymous{}
	if s.idle != nil {
		s.idle.Exit()
		s.idle = nil
		s.idleDefaults = false
	}
	s.log.Info().Msg("logged out")
	return err
}

// Identity returns the effective identity: the delegation identity while the
// chain is valid and the anonymous identity when no chain is held. A held but
// lapsed chain is reported as ErrDelegationExpired rather than substituted.
func (s *Session) Identity() (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chain != nil {
		if err := s.chain.Check(s.clock.Now()); err != nil {
			return nil, err
		}
	}
	return s.ident, nil
}

// IsAuthenticated reports whether the effective identity is backed by a
// delegation chain.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain != nil && !identity.IsAnonymous(s.ident)
}

// State reports the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case s.chain != nil && s.chain.IsValid(s.clock.Now()):
		return StateDelegated
	case s.chain != nil:
		return StateExpired
	case s.key != nil:
		return StateKeyOnly
	default:
		return StateAnonymous
	}
}

// Chain returns the held delegation chain, or nil.
func (s *Session) Chain() *delegation.Chain {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain
}

// Key returns the session key, or nil when none is held.
func (s *Session) Key() identity.SessionKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Touch records user activity with the idle detector.
func (s *Session) Touch() {
	s.mu.Lock()
	det := s.idle
	s.mu.Unlock()
	if t, ok := det.(interface{ Touch() }); ok {
		t.Touch()
	}
}

package app

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"certagent/internal/config"
	"certagent/internal/domain"
	"certagent/internal/identity"
	"certagent/internal/polling"
	"certagent/internal/replica"
	"certagent/internal/session"
	"certagent/internal/store"
	"certagent/internal/surface"
)

// Wire bundles storage, session and replica access for the CLI.
type Wire struct {
	Storage  domain.KeyStorage
	Session  *session.Session
	Settings *config.Config
	HTTP     *http.Client

	scope domain.Principal
	log   zerolog.Logger
}

// NewWire constructs the dependency graph from cfg and restores the session.
func NewWire(ctx context.Context, cfg Config) (*Wire, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.DefaultConfig()
	}
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	getenv := cfg.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	vault := cfg.Vault
	if vault == nil {
		vault = identity.NewVault()
	}

	var scope domain.Principal
	if settings.Replica.Scope != "" {
		p, err := domain.ParsePrincipal(settings.Replica.Scope)
		if err != nil {
			return nil, fmt.Errorf("replica.scope: %w", err)
		}
		scope = p
	}

	storage, err := openStorage(cfg.Home, settings.Storage, getenv)
	if err != nil {
		return nil, err
	}
	var legacy domain.KeyStorage
	if settings.Storage.LegacyDir != "" {
		legacy = store.NewFileStore(settings.Storage.LegacyDir)
	}

	opener := &surface.LoopbackOpener{Launch: cfg.Launch, Logger: cfg.Logger}
	if opener.Launch == nil {
		opener.Launch = logLauncher(cfg.Logger)
	}

	sess, err := session.Restore(ctx, session.Options{
		Storage:       storage,
		LegacyStorage: legacy,
		KeyType:       domain.KeyKind(settings.Identity.KeyType),
		Vault:         vault,
		Idle: session.IdleOptions{
			Disable:                settings.Idle.Disable,
			DisableDefaultCallback: settings.Idle.DisableDefaultCallback,
			Timeout:                settings.Idle.Timeout,
		},
		Opener:            opener,
		VerifyDelegations: settings.Identity.VerifyDelegation,
		Logger:            cfg.Logger,
	})
	if err != nil {
		_ = closeStorage(storage)
		return nil, fmt.Errorf("restore session: %w", err)
	}

	return &Wire{
		Storage:  storage,
		Session:  sess,
		Settings: settings,
		HTTP:     httpClient,
		scope:    scope,
		log:      cfg.Logger,
	}, nil
}

func openStorage(home string, cfg config.StorageConfig, getenv func(string) string) (domain.KeyStorage, error) {
	dir := cfg.Dir
	if dir == "" && home != "" {
		dir = filepath.Join(home, "keys")
	}
	passphrase := ""
	if cfg.PassphraseEnv != "" {
		passphrase = getenv(cfg.PassphraseEnv)
	}
	s, err := store.Open(store.Options{
		Backend:     cfg.Backend,
		Dir:         dir,
		RedisURL:    cfg.RedisURL,
		RedisPrefix: cfg.RedisPrefix,
		Passphrase:  passphrase,
		KDF:         cfg.KDF,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return s, nil
}

func logLauncher(log zerolog.Logger) surface.Launcher {
	return func(_ context.Context, providerURL, _ string) error {
		log.Info().Str("url", providerURL).Msg("open this URL to authenticate")
		return nil
	}
}

// Close releases storage connections.
func (w *Wire) Close() error {
	return closeStorage(w.Storage)
}

func closeStorage(s domain.KeyStorage) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Scope returns the configured default scope, which may be nil.
func (w *Wire) Scope() domain.Principal { return w.scope }

// LoginOptions returns handshake options from the configuration.
func (w *Wire) LoginOptions() (session.LoginOptions, error) {
	id := w.Settings.Identity
	opts := session.LoginOptions{
		Provider:         id.Provider,
		MaxTimeToLive:    id.MaxTimeToLive,
		DerivationOrigin: id.DerivationOrigin,
	}
	for _, s := range id.ScopeRestriction {
		p, err := domain.ParsePrincipal(s)
		if err != nil {
			return opts, fmt.Errorf("identity.scope_restriction: %w", err)
		}
		opts.ScopeRestriction = append(opts.ScopeRestriction, p)
	}
	return opts, nil
}

// Replica returns a replica client signing as the session's current
// effective identity.
func (w *Wire) Replica() (*replica.Client, error) {
	id, err := w.Session.Identity()
	if err != nil {
		return nil, err
	}
	opts := []replica.Option{
		replica.WithHTTPClient(w.HTTP),
		replica.WithIdentity(id),
		replica.WithFetchRootKey(w.Settings.Replica.FetchRootKey),
		replica.WithLogger(w.log),
	}
	if w.Settings.Replica.RootKey != "" {
		der, err := hex.DecodeString(w.Settings.Replica.RootKey)
		if err != nil {
			return nil, fmt.Errorf("replica.root_key: %w", err)
		}
		opts = append(opts, replica.WithRootKey(der))
	}
	return replica.New(w.Settings.Replica.URL, opts...), nil
}

// Strategy returns a fresh polling strategy for one call.
func (w *Wire) Strategy() polling.Strategy {
	p := w.Settings.Polling
	var s polling.Strategy
	if p.Profile == "batch" {
		s = polling.BatchStrategy(p.MaxWait, p.Timeout, nil)
	} else {
		s = polling.DefaultStrategy(p.MaxWait, p.Timeout, nil)
	}
	if p.TransportRetries > 0 {
		s = polling.RetryTransport(s, p.TransportRetries)
	}
	return s
}

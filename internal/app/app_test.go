package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certagent/internal/config"
	"certagent/internal/domain"
	"certagent/internal/identity"
	"certagent/internal/polling"
	"certagent/internal/session"
	"certagent/internal/surface"
)

const providerURL = "http://provider.test"

func testSettings() *config.Config {
	s := config.DefaultConfig()
	s.Storage.Backend = "memory"
	s.Identity.Provider = providerURL + "/authorize"
	s.Replica.Scope = "rrkah-fqaaa-aaaaa-aaaaq-cai"
	return s
}

func TestNewWireRestoresKeyOnlySession(t *testing.T) {
	w, err := NewWire(context.Background(), Config{Home: t.TempDir(), Settings: testSettings()})
	require.NoError(t, err)
	defer w.Close()

	who, err := w.Whoami()
	require.NoError(t, err)
	assert.Equal(t, session.StateKeyOnly, who.State)
	assert.True(t, who.Principal.IsAnonymous())
	assert.False(t, who.Authenticated)
	assert.NotEmpty(t, who.SessionKey)
	assert.Equal(t, "rrkah-fqaaa-aaaaa-aaaaq-cai", w.Scope().String())
}

func TestNewWireRejectsBadScope(t *testing.T) {
	s := testSettings()
	s.Replica.Scope = "not a principal"
	_, err := NewWire(context.Background(), Config{Settings: s})
	require.Error(t, err)
}

func TestLoginWithDevProvider(t *testing.T) {
	root, err := identity.GenerateKey(domain.KeyKindEd25519, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := &surface.DevProvider{Signer: root, PublicKey: root.PublicKey(), Origin: providerURL}
	w, err := NewWire(ctx, Config{Home: t.TempDir(), Settings: testSettings(), Launch: p.Launch})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Login(ctx))
	who, err := w.Whoami()
	require.NoError(t, err)
	assert.Equal(t, session.StateDelegated, who.State)
	assert.True(t, who.Authenticated)
	assert.Equal(t, domain.SelfAuthenticating(root.PublicKey()), who.Principal)
	assert.NotEmpty(t, who.Expiration)

	require.NoError(t, w.Session.Logout(ctx))
	who, err = w.Whoami()
	require.NoError(t, err)
	assert.Equal(t, session.StateAnonymous, who.State)
}

func TestLoginOptionsFromSettings(t *testing.T) {
	s := testSettings()
	s.Identity.MaxTimeToLive = time.Hour
	s.Identity.ScopeRestriction = []string{"rrkah-fqaaa-aaaaa-aaaaq-cai"}
	w, err := NewWire(context.Background(), Config{Settings: s})
	require.NoError(t, err)

	opts, err := w.LoginOptions()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, opts.MaxTimeToLive)
	require.Len(t, opts.ScopeRestriction, 1)
	assert.Equal(t, w.Scope(), opts.ScopeRestriction[0])
}

func TestStrategyHonoursTransportRetries(t *testing.T) {
	s := testSettings()
	s.Polling.TransportRetries = 2
	w, err := NewWire(context.Background(), Config{Settings: s})
	require.NoError(t, err)

	tp, ok := w.Strategy().(polling.TransportPolicy)
	require.True(t, ok)
	assert.True(t, tp.RetryTransport(nil, 2))
	assert.False(t, tp.RetryTransport(nil, 3))
}

func TestPollRequiresScope(t *testing.T) {
	s := testSettings()
	s.Replica.Scope = ""
	w, err := NewWire(context.Background(), Config{Settings: s})
	require.NoError(t, err)

	_, err = w.Poll(context.Background(), nil, domain.RequestID{})
	require.Error(t, err)
}

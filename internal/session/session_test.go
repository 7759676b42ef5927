package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certagent/internal/delegation"
	"certagent/internal/domain"
	cerrors "certagent/internal/errors"
	"certagent/internal/identity"
	"certagent/internal/store"
)

const provider = "https://id.example"

type fakeSurface struct {
	events chan domain.SurfaceEvent
	posted chan any

	mu       sync.Mutex
	closed   bool
	torndown bool
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{events: make(chan domain.SurfaceEvent, 8), posted: make(chan any, 8)}
}

func (f *fakeSurface) Events() <-chan domain.SurfaceEvent { return f.events }

func (f *fakeSurface) Post(_ context.Context, msg any, targetOrigin string) error {
	if targetOrigin != provider {
		return errors.New("wrong target origin")
	}
	f.posted <- msg
	return nil
}

func (f *fakeSurface) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSurface) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.torndown = true
	return nil
}

func (f *fakeSurface) userClose() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSurface) tornDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.torndown
}

func (f *fakeSurface) send(t *testing.T, origin string, msg any) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	f.events <- domain.SurfaceEvent{Origin: origin, Data: data}
}

func (f *fakeSurface) nextPost(t *testing.T) map[string]any {
	t.Helper()
	select {
	case m := <-f.posted:
		data, err := json.Marshal(m)
		require.NoError(t, err)
		var out map[string]any
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("no message posted")
		return nil
	}
}

type fakeOpener struct {
	mu       sync.Mutex
	targets  []*url.URL
	surfaces []*fakeSurface
}

func (o *fakeOpener) Open(_ context.Context, target *url.URL, _ string) (domain.Surface, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := newFakeSurface()
	o.targets = append(o.targets, target)
	o.surfaces = append(o.surfaces, s)
	return s, nil
}

type fakeIdle struct {
	mu        sync.Mutex
	callbacks []func()
	exited    bool
}

func (f *fakeIdle) RegisterCallback(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, fn)
}

func (f *fakeIdle) Exit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exited = true
}

func (f *fakeIdle) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.callbacks)
}

func (f *fakeIdle) fire() {
	f.mu.Lock()
	cbs := f.callbacks
	f.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

type idleFactory struct {
	mu      sync.Mutex
	created []*fakeIdle
}

func (f *idleFactory) New(IdleOptions, zerolog.Logger) domain.IdleDetector {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := &fakeIdle{}
	f.created = append(f.created, d)
	return d
}

func (f *idleFactory) last() *fakeIdle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	storage *store.Memory
	opener  *fakeOpener
	idle    *idleFactory
	clock   *testClock
	root    identity.SessionKey
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root, err := identity.GenerateKey(domain.KeyKindEd25519, nil)
	require.NoError(t, err)
	return &harness{
		storage: store.NewMemory(),
		opener:  &fakeOpener{},
		idle:    &idleFactory{},
		clock:   &testClock{now: time.Now()},
		root:    root,
	}
}

func (h *harness) options() Options {
	return Options{
		Storage:           h.storage,
		Opener:            h.opener,
		NewIdleDetector:   h.idle.New,
		VerifyDelegations: true,
		Clock:             h.clock,
	}
}

func (h *harness) restore(t *testing.T) *Session {
	t.Helper()
	s, err := Restore(context.Background(), h.options())
	require.NoError(t, err)
	return s
}

func (h *harness) chainFor(t *testing.T, sessionKey []byte, ttl time.Duration) *delegation.Chain {
	t.Helper()
	chain, err := delegation.Create(context.Background(), h.root, h.root.PublicKey(), sessionKey, h.clock.Now().Add(ttl), nil, nil)
	require.NoError(t, err)
	return chain
}

func (h *harness) success(t *testing.T, sessionKey []byte) domain.AuthorizeSuccess {
	t.Helper()
	chain := h.chainFor(t, sessionKey, time.Hour)
	return domain.AuthorizeSuccess{
		Kind:          domain.KindAuthorizeSuccess,
		Delegations:   delegation.ToWire(chain),
		UserPublicKey: h.root.PublicKey(),
	}
}

func (h *harness) surface(t *testing.T, i int) *fakeSurface {
	t.Helper()
	h.opener.mu.Lock()
	defer h.opener.mu.Unlock()
	require.Greater(t, len(h.opener.surfaces), i)
	return h.opener.surfaces[i]
}

func (h *harness) lastSurface(t *testing.T) *fakeSurface {
	t.Helper()
	h.opener.mu.Lock()
	defer h.opener.mu.Unlock()
	require.NotEmpty(t, h.opener.surfaces)
	return h.opener.surfaces[len(h.opener.surfaces)-1]
}

func (h *harness) login(t *testing.T, s *Session) {
	t.Helper()
	hs, err := s.BeginHandshake(context.Background(), LoginOptions{Provider: provider})
	require.NoError(t, err)
	surf := h.lastSurface(t)
	surf.send(t, provider, domain.MessageHeader{Kind: domain.KindAuthorizeReady})
	surf.nextPost(t)
	surf.send(t, provider, h.success(t, s.Key().PublicKey()))
	require.NoError(t, hs.Wait(context.Background()))
}

func TestRestoreWithEmptyStorageGeneratesKey(t *testing.T) {
	h := newHarness(t)
	s := h.restore(t)

	assert.Equal(t, StateKeyOnly, s.State())
	assert.False(t, s.IsAuthenticated())
	id, err := s.Identity()
	require.NoError(t, err)
	assert.True(t, identity.IsAnonymous(id))

	rec, ok, err := h.storage.Get(context.Background(), domain.StorageKeySessionKey)
	require.NoError(t, err)
	require.True(t, ok)
	key, err := identity.DecodeKeyRecord(rec, nil)
	require.NoError(t, err)
	assert.Equal(t, s.Key().PublicKey(), key.PublicKey())
	assert.Nil(t, h.idle.last(), "no idle detector without a login")
}

func TestHandshakeIgnoresForeignOrigin(t *testing.T) {
	h := newHarness(t)
	s := h.restore(t)
	sessionKey := s.Key().PublicKey()

	hs, err := s.BeginHandshake(context.Background(), LoginOptions{
		Provider:     provider + "/login#ignored",
		CustomValues: map[string]any{"allowPinAuthentication": true, "kind": "overridden"},
	})
	require.NoError(t, err)
	assert.Equal(t, "authorize", h.opener.targets[0].Fragment)
	surf := h.surface(t, 0)

	surf.send(t, "https://evil.example", h.success(t, sessionKey))
	surf.send(t, provider, domain.MessageHeader{Kind: domain.KindAuthorizeReady})

	req := surf.nextPost(t)
	assert.Equal(t, domain.KindAuthorizeClient, req["kind"])
	assert.Equal(t, true, req["allowPinAuthentication"])
	assert.EqualValues(t, uint64(8*time.Hour), req["maxTimeToLive"])
	assert.NotEmpty(t, req["sessionPublicKey"])
	assert.Equal(t, StateKeyOnly, s.State(), "spoofed success must not be applied")

	surf.send(t, provider, h.success(t, sessionKey))
	require.NoError(t, hs.Wait(context.Background()))

	assert.Equal(t, StateDelegated, s.State())
	assert.True(t, s.IsAuthenticated())
	assert.True(t, surf.tornDown())
	id, err := s.Identity()
	require.NoError(t, err)
	assert.Equal(t, domain.SelfAuthenticating(h.root.PublicKey()), id.Principal())

	data, ok, err := h.storage.Get(context.Background(), domain.StorageKeyDelegationChain)
	require.NoError(t, err)
	require.True(t, ok)
	stored, err := delegation.Parse(data)
	require.NoError(t, err)
	assert.True(t, stored.Equal(s.Chain()))
}

func TestHandshakeExternalFailure(t *testing.T) {
	h := newHarness(t)
	s := h.restore(t)

	hs, err := s.BeginHandshake(context.Background(), LoginOptions{Provider: provider})
	require.NoError(t, err)
	surf := h.surface(t, 0)
	surf.send(t, provider, domain.AuthorizeFailure{Kind: domain.KindAuthorizeFailure, Text: "user denied"})

	err = hs.Wait(context.Background())
	require.ErrorIs(t, err, cerrors.ErrExternalFailure)
	var ext *ExternalFailureError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "user denied", ext.Text)
	assert.Equal(t, StateKeyOnly, s.State())
	assert.True(t, surf.tornDown())
}

func TestHandshakeExternalFailureKeepsUndecodableText(t *testing.T) {
	h := newHarness(t)
	s := h.restore(t)

	hs, err := s.BeginHandshake(context.Background(), LoginOptions{Provider: provider})
	require.NoError(t, err)
	h.surface(t, 0).send(t, provider, map[string]any{"kind": domain.KindAuthorizeFailure, "text": 42})

	err = hs.Wait(context.Background())
	var ext *ExternalFailureError
	require.ErrorAs(t, err, &ext)
	assert.Contains(t, ext.Text, "42")
}

func TestHandshakeNormalisesProviderOrigin(t *testing.T) {
	h := newHarness(t)
	s := h.restore(t)

	hs, err := s.BeginHandshake(context.Background(), LoginOptions{Provider: "HTTPS://ID.Example:443/login"})
	require.NoError(t, err)
	surf := h.surface(t, 0)
	surf.send(t, provider, domain.MessageHeader{Kind: domain.KindAuthorizeReady})
	surf.nextPost(t)
	surf.send(t, provider, h.success(t, s.Key().PublicKey()))
	require.NoError(t, hs.Wait(context.Background()))
	assert.Equal(t, StateDelegated, s.State())
}

func TestSerializeOrigin(t *testing.T) {
	tests := map[string]string{
		"https://id.example/a":         "https://id.example",
		"HTTPS://ID.Example:443/login": "https://id.example",
		"http://localhost:80/":         "http://localhost",
		"http://127.0.0.1:4943/#x":     "http://127.0.0.1:4943",
		"https://[::1]:8443/authorize": "https://[::1]:8443",
	}
	for in, want := range tests {
		u, err := url.Parse(in)
		require.NoError(t, err)
		assert.Equal(t, want, serializeOrigin(u), in)
	}
}

func TestHandshakeUserInterrupt(t *testing.T) {
	h := newHarness(t)
	s := h.restore(t)

	hs, err := s.BeginHandshake(context.Background(), LoginOptions{Provider: provider, LivenessInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	h.surface(t, 0).userClose()

	err = hs.Wait(context.Background())
	require.ErrorIs(t, err, cerrors.ErrUserInterrupted)
	assert.Equal(t, err, hs.Err())
	assert.False(t, s.IsAuthenticated())
}

func TestBeginHandshakeSupersedesPrevious(t *testing.T) {
	h := newHarness(t)
	s := h.restore(t)

	first, err := s.BeginHandshake(context.Background(), LoginOptions{Provider: provider})
	require.NoError(t, err)
	second, err := s.BeginHandshake(context.Background(), LoginOptions{Provider: provider})
	require.NoError(t, err)

	require.ErrorIs(t, first.Wait(context.Background()), cerrors.ErrHandshakeSuperseded)
	assert.True(t, h.surface(t, 0).tornDown())

	surf := h.surface(t, 1)
	surf.send(t, provider, domain.MessageHeader{Kind: domain.KindAuthorizeReady})
	surf.nextPost(t)
	surf.send(t, provider, h.success(t, s.Key().PublicKey()))
	require.NoError(t, second.Wait(context.Background()))
	assert.Equal(t, StateDelegated, s.State())
}

func TestHandshakeRejectsChainForOtherKey(t *testing.T) {
	h := newHarness(t)
	s := h.restore(t)
	other, err := identity.GenerateKey(domain.KeyKindEd25519, nil)
	require.NoError(t, err)

	hs, err := s.BeginHandshake(context.Background(), LoginOptions{Provider: provider})
	require.NoError(t, err)
	h.surface(t, 0).send(t, provider, h.success(t, other.PublicKey()))

	require.ErrorIs(t, hs.Wait(context.Background()), cerrors.ErrChainMalformed)
	assert.Equal(t, StateKeyOnly, s.State())
}

func TestLogoutIsIdempotent(t *testing.T) {
	h := newHarness(t)
	s := h.restore(t)
	h.login(t, s)
	require.Equal(t, StateDelegated, s.State())
	det := h.idle.last()
	require.NotNil(t, det)

	require.NoError(t, s.Logout(context.Background()))
	first := s.State()
	require.NoError(t, s.Logout(context.Background()))

	assert.Equal(t, StateAnonymous, first)
	assert.Equal(t, StateAnonymous, s.State())
	assert.Equal(t, 0, h.storage.Len())
	assert.Nil(t, s.Chain())
	assert.Nil(t, s.Key())
	assert.True(t, det.exited)
	id, err := s.Identity()
	require.NoError(t, err)
	assert.True(t, identity.IsAnonymous(id))
}

func TestLogoutSupersedesHandshake(t *testing.T) {
	h := newHarness(t)
	s := h.restore(t)
	hs, err := s.BeginHandshake(context.Background(), LoginOptions{Provider: provider})
	require.NoError(t, err)

	require.NoError(t, s.Logout(context.Background()))
	require.ErrorIs(t, hs.Err(), cerrors.ErrHandshakeSuperseded)
	assert.True(t, h.surface(t, 0).tornDown())
}

func TestLoginAfterLogoutGeneratesFreshKey(t *testing.T) {
	h := newHarness(t)
	s := h.restore(t)
	before := s.Key().PublicKey()
	require.NoError(t, s.Logout(context.Background()))

	h.login(t, s)
	assert.NotEqual(t, before, s.Key().PublicKey())
	assert.Equal(t, StateDelegated, s.State())
}

func TestRestoreDelegatedSession(t *testing.T) {
	h := newHarness(t)
	first := h.restore(t)
	h.login(t, first)

	s := h.restore(t)
	assert.Equal(t, StateDelegated, s.State())
	assert.True(t, s.IsAuthenticated())
	assert.True(t, s.Chain().Equal(first.Chain()))
	assert.Equal(t, first.Key().PublicKey(), s.Key().PublicKey())
}

func TestRestoreExpiredChainPurgesStorage(t *testing.T) {
	h := newHarness(t)
	first := h.restore(t)
	h.login(t, first)
	require.Equal(t, 2, h.storage.Len())

	h.clock.advance(2 * time.Hour)
	assert.Equal(t, StateExpired, first.State())
	_, err := first.Identity()
	require.ErrorIs(t, err, cerrors.ErrDelegationExpired)

	s := h.restore(t)
	assert.Equal(t, StateAnonymous, s.State())
	assert.Nil(t, s.Key())
	assert.Equal(t, 0, h.storage.Len())
}

func TestRestorePurgesUndecodableChain(t *testing.T) {
	h := newHarness(t)
	h.restore(t)
	require.NoError(t, h.storage.Set(context.Background(), domain.StorageKeyDelegationChain, []byte("{not json")))

	s := h.restore(t)
	assert.Equal(t, StateAnonymous, s.State())
	assert.Equal(t, 0, h.storage.Len())
}

func TestRestorePurgesUndecodableKey(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.storage.Set(ctx, domain.StorageKeySessionKey, []byte("{not json")))
	require.NoError(t, h.storage.Set(ctx, domain.StorageKeyDelegationChain, []byte("{}")))

	s := h.restore(t)
	assert.Equal(t, StateKeyOnly, s.State())
	rec, ok, err := h.storage.Get(ctx, domain.StorageKeySessionKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, []byte("{not json"), rec)
	_, ok, err = h.storage.Get(ctx, domain.StorageKeyDelegationChain)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Logout(ctx))
	assert.Equal(t, 0, h.storage.Len())
}

func TestIdleCallbackRegisteredOncePerLogin(t *testing.T) {
	h := newHarness(t)
	loggedOut := make(chan struct{}, 1)
	opts := h.options()
	opts.Idle.OnLoggedOut = func() { loggedOut <- struct{}{} }
	s, err := Restore(context.Background(), opts)
	require.NoError(t, err)

	h.login(t, s)
	h.login(t, s)
	require.Len(t, h.idle.created, 1)
	det := h.idle.last()
	assert.Equal(t, 1, det.count())

	det.fire()
	select {
	case <-loggedOut:
	case <-time.After(time.Second):
		t.Fatal("caller was not notified")
	}
	assert.Equal(t, StateAnonymous, s.State())
	assert.Equal(t, 0, h.storage.Len())
}

func TestIdleDefaultCallbackDisabled(t *testing.T) {
	h := newHarness(t)
	opts := h.options()
	opts.Idle.DisableDefaultCallback = true
	s, err := Restore(context.Background(), opts)
	require.NoError(t, err)
	h.login(t, s)

	det := h.idle.last()
	require.NotNil(t, det)
	assert.Equal(t, 0, det.count())
}

func TestIdleDisabled(t *testing.T) {
	h := newHarness(t)
	opts := h.options()
	opts.Idle.Disable = true
	s, err := Restore(context.Background(), opts)
	require.NoError(t, err)
	h.login(t, s)
	assert.Nil(t, h.idle.last())
}

func TestBaseIdentityBypassesKeyStorage(t *testing.T) {
	h := newHarness(t)
	base, err := identity.GenerateKey(domain.KeyKindSecp256k1, nil)
	require.NoError(t, err)
	opts := h.options()
	opts.Identity = base
	s, err := Restore(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, StateKeyOnly, s.State())
	assert.Equal(t, 0, h.storage.Len())
	assert.NotNil(t, h.idle.last(), "a supplied identity starts idle detection")

	require.NoError(t, s.Logout(context.Background()))
	assert.Equal(t, base.PublicKey(), s.Key().PublicKey())
}

func TestRestoreMigratesLegacyRecords(t *testing.T) {
	h := newHarness(t)
	legacy := store.NewMemory()
	key, err := identity.GenerateKey(domain.KeyKindEd25519, nil)
	require.NoError(t, err)
	rec, err := identity.EncodeKeyRecord(key)
	require.NoError(t, err)
	require.NoError(t, legacy.Set(context.Background(), domain.StorageKeySessionKey, rec))

	opts := h.options()
	opts.LegacyStorage = legacy
	s, err := Restore(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, key.PublicKey(), s.Key().PublicKey())
	_, ok, err := h.storage.Get(context.Background(), domain.StorageKeySessionKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, legacy.Len())
}

type failingWrites struct {
	*store.Memory
}

func (failingWrites) Set(context.Context, domain.StorageKey, []byte) error {
	return cerrors.ErrStorageWrite
}

func TestRestoreKeepsLegacyValueWhenMigrationFails(t *testing.T) {
	h := newHarness(t)
	legacy := store.NewMemory()
	require.NoError(t, legacy.Set(context.Background(), domain.StorageKeySessionKey, []byte(`{"kind":"ed25519"}`)))

	opts := h.options()
	opts.Storage = failingWrites{store.NewMemory()}
	opts.LegacyStorage = legacy
	_, err := Restore(context.Background(), opts)
	require.ErrorIs(t, err, cerrors.ErrStorageWrite)

	v, ok, err := legacy.Get(context.Background(), domain.StorageKeySessionKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"kind":"ed25519"}`, string(v))
}

func TestHandleKeySession(t *testing.T) {
	h := newHarness(t)
	vault := identity.NewVault()
	opts := h.options()
	opts.KeyType = domain.KeyKindHandle
	opts.Vault = vault
	s, err := Restore(context.Background(), opts)
	require.NoError(t, err)
	_, isHandle := s.Key().(*identity.HandleKey)
	require.True(t, isHandle)
	h.login(t, s)

	again, err := Restore(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, StateDelegated, again.State())

	opts.Vault = identity.NewVault()
	fresh, err := Restore(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, StateKeyOnly, fresh.State(), "a lost handle starts over with a new key")
	assert.NotEqual(t, s.Key().PublicKey(), fresh.Key().PublicKey())
}

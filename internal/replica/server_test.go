package replica

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certagent/internal/certificate"
	"certagent/internal/domain"
	"certagent/internal/identity"
	"certagent/internal/polling"
)

type steppedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppedClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type devReplica struct {
	root  identity.SessionKey
	clock *steppedClock
	url   string
}

func startServer(t *testing.T, step time.Duration) *devReplica {
	t.Helper()
	root, err := identity.GenerateKey(domain.KeyKindEd25519, nil)
	require.NoError(t, err)
	clk := &steppedClock{now: time.Now()}
	srv := httptest.NewServer(NewServer(root, root.PublicKey(), WithProcessingDelay(step), WithServerClock(clk)).Handler())
	t.Cleanup(srv.Close)
	return &devReplica{root: root, clock: clk, url: srv.URL}
}

func TestServerCallProgressesToReply(t *testing.T) {
	r := startServer(t, time.Second)
	c := New(r.url, WithIdentity(delegatedIdentity(t)), WithFetchRootKey(true))
	ctx := context.Background()

	id, err := c.Call(ctx, scope, "echo", []byte("hi"))
	require.NoError(t, err)

	var seen []domain.CallStatus
	p := polling.New(c, polling.WithSleeper(func(context.Context, time.Duration) error {
		r.clock.advance(time.Second)
		return nil
	}))
	res, err := p.Poll(ctx, scope, id, polling.StrategyFunc(func(_ context.Context, a polling.Attempt) (time.Duration, error) {
		seen = append(seen, a.Status)
		return time.Second, nil
	}))
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), res.Reply)
	assert.Equal(t, []domain.CallStatus{domain.StatusReceived, domain.StatusProcessing}, seen)
}

func TestServerRejectsRejectMethod(t *testing.T) {
	r := startServer(t, 0)
	c := New(r.url, WithFetchRootKey(true))
	ctx := context.Background()

	id, err := c.Call(ctx, scope, RejectMethod, nil)
	require.NoError(t, err)

	_, err = polling.New(c).Poll(ctx, scope, id, polling.MaxAttempts(1))
	var rej *polling.RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, uint64(rejectCodeCanister), rej.Info.Code)
	assert.Equal(t, errorCodeRejected, rej.Info.ErrorCode)
	assert.Contains(t, rej.Info.Message, scope.String())
}

func TestServerUnknownRequestIsAbsent(t *testing.T) {
	r := startServer(t, 0)
	c := New(r.url, WithRootKey(r.root.PublicKey()))

	var id domain.RequestID
	id[0] = 0x7f
	resp, err := c.ReadState(context.Background(), &domain.ReadStateRequest{
		Scope: scope,
		Paths: []domain.Path{domain.RequestStatusPath(id)},
	})
	require.NoError(t, err)

	cert, err := certificate.NewVerifier().Verify(resp.Certificate, resp.RootKey, scope)
	require.NoError(t, err)
	assert.Equal(t, certificate.Absent, cert.Lookup(domain.RequestStatusPath(id).Child("status")).Status)
	assert.Equal(t, certificate.Found, cert.Lookup(domain.NewPath("time")).Status)
}

func TestServerHidesStatusFromOtherSenders(t *testing.T) {
	r := startServer(t, 0)
	ctx := context.Background()

	owner := New(r.url, WithIdentity(delegatedIdentity(t)), WithFetchRootKey(true))
	id, err := owner.Call(ctx, scope, "echo", []byte("x"))
	require.NoError(t, err)

	other := New(r.url, WithIdentity(delegatedIdentity(t)), WithFetchRootKey(true))
	_, err = other.ReadState(ctx, &domain.ReadStateRequest{Scope: scope, Paths: []domain.Path{domain.RequestStatusPath(id)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another sender")
}

func TestServerRejectsMismatchedCanister(t *testing.T) {
	r := startServer(t, 0)
	c := New(r.url)
	other := domain.Principal{0, 0, 0, 0, 0, 0, 0, 2, 1, 1}

	content := c.content(RequestTypeCall)
	content["canister_id"] = other
	content["method_name"] = "echo"
	content["arg"] = []byte{}
	env, _, err := c.sign(context.Background(), content)
	require.NoError(t, err)

	err = c.post(context.Background(), canisterPath(scope, RequestTypeCall), env, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "canister_id")
}

package polling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certagent/internal/certificate"
	"certagent/internal/clock"
	"certagent/internal/crypto"
	"certagent/internal/domain"
	cerrors "certagent/internal/errors"
)

var scope = domain.Principal{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x01, 0x01}

type certSigner struct {
	t    *testing.T
	sign certificate.SignFunc
	der  []byte
}

func newSigner(t *testing.T) certSigner {
	priv, pub, err := crypto.GenerateEd25519()
	require.NoError(t, err)
	der, err := crypto.EncodeEd25519DER(pub)
	require.NoError(t, err)
	return certSigner{t: t, der: der, sign: func(m []byte) ([]byte, error) { return crypto.SignEd25519(priv, m), nil }}
}

// statusCert certifies request_status/<id> with the given leaves.
func (s certSigner) statusCert(id domain.RequestID, leaves certificate.Subtree) []byte {
	s.t.Helper()
	tree := certificate.Subtree{}
	if leaves != nil {
		tree["request_status"] = certificate.Subtree{string(id[:]): leaves}
	}
	node, err := certificate.Build(tree)
	require.NoError(s.t, err)
	raw, err := certificate.Sign(node, s.sign, nil)
	require.NoError(s.t, err)
	return raw
}

type fakeReplica struct {
	mu        sync.Mutex
	responses [][]byte
	errs      []error
	rootKey   []byte
	reads     int
	prepared  int
	requests  []*domain.ReadStateRequest
}

func (f *fakeReplica) PrepareReadState(_ context.Context, scope domain.Principal, paths []domain.Path) (*domain.ReadStateRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepared++
	return &domain.ReadStateRequest{Scope: scope, Paths: paths, Envelope: []byte("signed")}, nil
}

func (f *fakeReplica) ReadState(_ context.Context, req *domain.ReadStateRequest) (*domain.ReadStateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.reads
	f.reads++
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return &domain.ReadStateResponse{Certificate: f.responses[i], RootKey: f.rootKey}, nil
}

type countingStrategy struct {
	decisions []Attempt
}

func (c *countingStrategy) Decide(_ context.Context, a Attempt) (time.Duration, error) {
	c.decisions = append(c.decisions, a)
	return time.Millisecond, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestPollReceivedProcessingReplied(t *testing.T) {
	s := newSigner(t)
	id := domain.RequestID{1}
	replica := &fakeReplica{rootKey: s.der, responses: [][]byte{
		s.statusCert(id, certificate.Subtree{"status": "received"}),
		s.statusCert(id, certificate.Subtree{"status": "processing"}),
		s.statusCert(id, certificate.Subtree{"status": "replied", "reply": []byte{0xde, 0xad, 0xbe, 0xef}}),
	}}
	strategy := &countingStrategy{}

	res, err := New(replica, WithSleeper(noSleep)).Poll(context.Background(), scope, id, strategy)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, res.Reply)
	assert.NotNil(t, res.Certificate)
	assert.Equal(t, 3, replica.reads)
	require.Len(t, strategy.decisions, 2)
	assert.Equal(t, domain.StatusReceived, strategy.decisions[0].Status)
	assert.Equal(t, domain.StatusProcessing, strategy.decisions[1].Status)
	assert.Equal(t, 2, strategy.decisions[1].Index)
}

func TestPollRetriesCertifiedUnknownStatus(t *testing.T) {
	s := newSigner(t)
	id := domain.RequestID{9}
	replica := &fakeReplica{rootKey: s.der, responses: [][]byte{
		s.statusCert(id, certificate.Subtree{"status": "unknown"}),
		s.statusCert(id, certificate.Subtree{"status": "replied", "reply": []byte("ok")}),
	}}
	strategy := &countingStrategy{}

	res, err := New(replica, WithSleeper(noSleep)).Poll(context.Background(), scope, id, strategy)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), res.Reply)
	assert.Equal(t, 2, replica.reads)
	require.Len(t, strategy.decisions, 1)
	assert.Equal(t, domain.StatusUnknown, strategy.decisions[0].Status)
}

func TestPollReusesPreparedRequest(t *testing.T) {
	s := newSigner(t)
	id := domain.RequestID{2}
	replica := &fakeReplica{rootKey: s.der, responses: [][]byte{
		s.statusCert(id, nil),
		s.statusCert(id, certificate.Subtree{"status": "replied", "reply": []byte("ok")}),
	}}

	_, err := New(replica, WithSleeper(noSleep)).Poll(context.Background(), scope, id, &countingStrategy{})
	require.NoError(t, err)
	assert.Equal(t, 1, replica.prepared)
	require.Len(t, replica.requests, 2)
	assert.Same(t, replica.requests[0], replica.requests[1])
}

func TestPollRejected(t *testing.T) {
	s := newSigner(t)
	id := domain.RequestID{3}
	replica := &fakeReplica{rootKey: s.der, responses: [][]byte{
		s.statusCert(id, certificate.Subtree{
			"status":         "rejected",
			"reject_code":    crypto.EncodeULEB128(5),
			"reject_message": "canister trapped",
		}),
	}}
	strategy := &countingStrategy{}

	_, err := New(replica, WithSleeper(noSleep)).Poll(context.Background(), scope, id, strategy)
	require.ErrorIs(t, err, cerrors.ErrCallRejected)
	var rej *RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, domain.RejectInfo{Code: 5, Message: "canister trapped"}, rej.Info)
	assert.Equal(t, 1, replica.reads)
	assert.Empty(t, strategy.decisions)
}

func TestPollRejectedCarriesErrorCode(t *testing.T) {
	s := newSigner(t)
	id := domain.RequestID{4}
	replica := &fakeReplica{rootKey: s.der, responses: [][]byte{
		s.statusCert(id, certificate.Subtree{
			"status":         "rejected",
			"reject_code":    crypto.EncodeULEB128(4),
			"reject_message": "out of cycles",
			"error_code":     "IC0501",
		}),
	}}

	_, err := New(replica, WithSleeper(noSleep)).Poll(context.Background(), scope, id, &countingStrategy{})
	var rej *RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "IC0501", rej.Info.ErrorCode)
	assert.Contains(t, err.Error(), "out of cycles")
}

func TestPollTerminalFailures(t *testing.T) {
	s := newSigner(t)
	id := domain.RequestID{5}
	tests := []struct {
		name   string
		leaves certificate.Subtree
		want   error
	}{
		{"done without reply", certificate.Subtree{"status": "done"}, cerrors.ErrDoneWithoutReply},
		{"replied without reply", certificate.Subtree{"status": "replied"}, cerrors.ErrMissingReply},
		{"unknown tag", certificate.Subtree{"status": "exploded"}, cerrors.ErrProtocol},
		{"reject without code", certificate.Subtree{"status": "rejected", "reject_message": "x"}, cerrors.ErrProtocol},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			replica := &fakeReplica{rootKey: s.der, responses: [][]byte{s.statusCert(id, tc.leaves)}}
			_, err := New(replica, WithSleeper(noSleep)).Poll(context.Background(), scope, id, &countingStrategy{})
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, 1, replica.reads)
		})
	}
}

func TestPollCertificateInvalidIsNotRetried(t *testing.T) {
	s, other := newSigner(t), newSigner(t)
	id := domain.RequestID{6}
	replica := &fakeReplica{rootKey: other.der, responses: [][]byte{
		s.statusCert(id, certificate.Subtree{"status": "replied", "reply": []byte("x")}),
	}}
	strategy := &countingStrategy{}

	_, err := New(replica, WithSleeper(noSleep)).Poll(context.Background(), scope, id, strategy)
	assert.ErrorIs(t, err, cerrors.ErrCertificateInvalid)
	assert.ErrorIs(t, err, cerrors.ErrInvalidSignature)
	assert.Empty(t, strategy.decisions)
}

func TestPollStrategyAbort(t *testing.T) {
	s := newSigner(t)
	id := domain.RequestID{7}
	replica := &fakeReplica{rootKey: s.der, responses: [][]byte{s.statusCert(id, certificate.Subtree{"status": "processing"})}}

	_, err := New(replica, WithSleeper(noSleep)).Poll(context.Background(), scope, id, MaxAttempts(3))
	assert.ErrorIs(t, err, cerrors.ErrPollCancelled)
	assert.Equal(t, 3, replica.reads)
}

func TestPollContextCancelledWhileSuspended(t *testing.T) {
	s := newSigner(t)
	id := domain.RequestID{8}
	replica := &fakeReplica{rootKey: s.der, responses: [][]byte{s.statusCert(id, certificate.Subtree{"status": "received"})}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(replica).Poll(ctx, scope, id, Throttle(time.Hour))
	assert.ErrorIs(t, err, cerrors.ErrPollCancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollTransportErrorNotRetriedByDefault(t *testing.T) {
	s := newSigner(t)
	id := domain.RequestID{9}
	replica := &fakeReplica{
		rootKey:   s.der,
		errs:      []error{errors.New("connection refused")},
		responses: [][]byte{s.statusCert(id, certificate.Subtree{"status": "replied", "reply": []byte("x")})},
	}

	_, err := New(replica, WithSleeper(noSleep)).Poll(context.Background(), scope, id, &countingStrategy{})
	assert.ErrorIs(t, err, cerrors.ErrTransport)
	assert.Equal(t, 1, replica.reads)
}

func TestPollTransportErrorRetriedWhenStrategyOptsIn(t *testing.T) {
	s := newSigner(t)
	id := domain.RequestID{10}
	replica := &fakeReplica{
		rootKey:   s.der,
		errs:      []error{errors.New("reset"), errors.New("reset")},
		responses: [][]byte{s.statusCert(id, certificate.Subtree{"status": "replied", "reply": []byte("x")})},
	}

	res, err := New(replica, WithSleeper(noSleep)).Poll(context.Background(), scope, id, RetryTransport(Throttle(0), 2))
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), res.Reply)
	assert.Equal(t, 3, replica.reads)

	replica = &fakeReplica{rootKey: s.der, errs: []error{errors.New("a"), errors.New("b")}}
	_, err = New(replica, WithSleeper(noSleep)).Poll(context.Background(), scope, id, RetryTransport(Throttle(0), 1))
	assert.ErrorIs(t, err, cerrors.ErrTransport)
	assert.Equal(t, 2, replica.reads)
}

func TestPollAll(t *testing.T) {
	s := newSigner(t)
	ok, bad := domain.RequestID{11}, domain.RequestID{12}

	replicas := map[domain.RequestID][]byte{
		ok:  s.statusCert(ok, certificate.Subtree{"status": "replied", "reply": []byte("fine")}),
		bad: s.statusCert(bad, certificate.Subtree{"status": "done"}),
	}
	client := &routingReplica{rootKey: s.der, byID: replicas}

	out := New(client, WithSleeper(noSleep)).PollAll(context.Background(), scope, []domain.RequestID{ok, bad},
		func() Strategy { return DefaultStrategy(0, 0, clock.RealClock{}) }, 2)
	require.Len(t, out, 2)
	require.NoError(t, out[0].Err)
	assert.Equal(t, "fine", string(out[0].Result.Reply))
	assert.ErrorIs(t, out[1].Err, cerrors.ErrDoneWithoutReply)
}

type routingReplica struct {
	rootKey []byte
	byID    map[domain.RequestID][]byte
}

func (r *routingReplica) ReadState(_ context.Context, req *domain.ReadStateRequest) (*domain.ReadStateResponse, error) {
	var id domain.RequestID
	copy(id[:], req.Paths[0][1])
	return &domain.ReadStateResponse{Certificate: r.byID[id], RootKey: r.rootKey}, nil
}

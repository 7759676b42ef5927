package polling

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"certagent/internal/certificate"
	"certagent/internal/crypto"
	"certagent/internal/domain"
	cerrors "certagent/internal/errors"
)

// CertificateVerifier validates a certificate for a scope.
type CertificateVerifier interface {
	Verify(raw, rootKey []byte, scope domain.Principal) (*certificate.Certificate, error)
}

// Sleeper suspends for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the default Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Result is the reply of a call together with the certificate proving it.
type Result struct {
	Reply       []byte
	Certificate *certificate.Certificate
}

// Option configures a Poller.
type Option func(*Poller)

// WithVerifier replaces the certificate verifier.
func WithVerifier(v CertificateVerifier) Option { return func(p *Poller) { p.verifier = v } }

// WithSleeper replaces the suspension primitive.
func WithSleeper(s Sleeper) Option { return func(p *Poller) { p.sleep = s } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(p *Poller) { p.log = l } }

// Poller polls request status through a replica client.
type Poller struct {
	client   domain.ReplicaClient
	verifier CertificateVerifier
	sleep    Sleeper
	log      zerolog.Logger
}

// New returns a Poller reading through client.
func New(client domain.ReplicaClient, opts ...Option) *Poller {
	p := &Poller{client: client, sleep: ContextSleep, log: zerolog.Nop()}
	for _, o := range opts {
		o(p)
	}
	if p.verifier == nil {
		p.verifier = certificate.NewVerifier(certificate.WithLogger(p.log))
	}
	p.log = p.log.With().Str("component", "poller").Logger()
	return p
}

// Poll reads the status of id under scope until a terminal status is seen
// or strategy aborts. The read request is prepared once and reused for every
// attempt when the client supports it.
func (p *Poller) Poll(ctx context.Context, scope domain.Principal, id domain.RequestID, strategy Strategy) (*Result, error) {
	statusPath := domain.RequestStatusPath(id)
	log := p.log.With().Str("request_id", id.Hex()).Str("scope", scope.String()).Logger()

	req, err := p.prepare(ctx, scope, statusPath)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare read_state: %w", cerrors.ErrTransport, err)
	}

	transportFailures := 0
	for attempt := 1; ; attempt++ {
		status, result, err := p.attempt(ctx, scope, id, req, statusPath)
		if err != nil {
			if !cerrors.Is(err, cerrors.ErrTransport) {
				return nil, err
			}
			transportFailures++
			tp, ok := strategy.(TransportPolicy)
			if !ok || !tp.RetryTransport(err, transportFailures) {
				return nil, err
			}
			log.Warn().Err(err).Int("attempt", attempt).Msg("retrying after transport failure")
			status = domain.StatusUnknown
		}
		if result != nil {
			log.Debug().Int("attempt", attempt).Msg("reply received")
			return result, nil
		}

		log.Debug().Int("attempt", attempt).Str("status", status.String()).Msg("call not yet terminal")
		wait, err := strategy.Decide(ctx, Attempt{Scope: scope, RequestID: id, Index: attempt, Status: status})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", cerrors.ErrPollCancelled, err)
		}
		if err := p.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("%w: %w", cerrors.ErrPollCancelled, err)
		}
	}
}

func (p *Poller) prepare(ctx context.Context, scope domain.Principal, path domain.Path) (*domain.ReadStateRequest, error) {
	if prep, ok := p.client.(domain.ReadStatePreparer); ok {
		return prep.PrepareReadState(ctx, scope, []domain.Path{path})
	}
	return &domain.ReadStateRequest{Scope: scope, Paths: []domain.Path{path}}, nil
}

// attempt performs one read. It returns a non-nil Result for a reply, a
// transient status to keep polling, or an error for every other outcome.
func (p *Poller) attempt(ctx context.Context, scope domain.Principal, id domain.RequestID, req *domain.ReadStateRequest, path domain.Path) (domain.CallStatus, *Result, error) {
	resp, err := p.client.ReadState(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", cerrors.ErrTransport, err)
	}
	cert, err := p.verifier.Verify(resp.Certificate, resp.RootKey, scope)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", cerrors.ErrCertificateInvalid, err)
	}

	status, err := readStatus(cert, path)
	if err != nil {
		return "", nil, err
	}

	switch status {
	case domain.StatusReplied:
		reply := cert.Lookup(path.Child("reply"))
		if reply.Status != certificate.Found {
			return "", nil, cerrors.Wrapf(cerrors.ErrMissingReply, "request %s: reply %s", id, reply.Status)
		}
		return status, &Result{Reply: reply.Value, Certificate: cert}, nil
	case domain.StatusReceived, domain.StatusProcessing, domain.StatusUnknown:
		return status, nil, nil
	case domain.StatusRejected:
		info, err := readReject(cert, path)
		if err != nil {
			return "", nil, err
		}
		return "", nil, &RejectError{RequestID: id, Info: info}
	case domain.StatusDone:
		return "", nil, cerrors.Wrapf(cerrors.ErrDoneWithoutReply, "request %s", id)
	default:
		return "", nil, cerrors.Wrapf(cerrors.ErrProtocol, "request %s: status %q", id, status)
	}
}

func readStatus(cert *certificate.Certificate, path domain.Path) (domain.CallStatus, error) {
	res := cert.Lookup(path.Child("status"))
	switch res.Status {
	case certificate.Found:
	case certificate.Absent, certificate.Unknown:
		return domain.StatusUnknown, nil
	default:
		return "", cerrors.Wrap(cerrors.ErrProtocol, "status is not a leaf")
	}
	status, ok := domain.ParseCallStatus(string(res.Value))
	if !ok {
		return "", cerrors.Wrapf(cerrors.ErrProtocol, "unrecognised status %q", res.Value)
	}
	return status, nil
}

func readReject(cert *certificate.Certificate, path domain.Path) (domain.RejectInfo, error) {
	var info domain.RejectInfo

	code := cert.Lookup(path.Child("reject_code"))
	if code.Status != certificate.Found {
		return info, cerrors.Wrapf(cerrors.ErrProtocol, "rejected call: reject_code %s", code.Status)
	}
	n, used, err := crypto.DecodeULEB128(code.Value)
	if err != nil || used != len(code.Value) {
		return info, cerrors.Wrapf(cerrors.ErrProtocol, "rejected call: reject_code %x", code.Value)
	}
	info.Code = n

	msg := cert.Lookup(path.Child("reject_message"))
	if msg.Status != certificate.Found || !utf8.Valid(msg.Value) {
		return info, cerrors.Wrapf(cerrors.ErrProtocol, "rejected call: reject_message %s", msg.Status)
	}
	info.Message = string(msg.Value)

	if ec := cert.Lookup(path.Child("error_code")); ec.Status == certificate.Found {
		info.ErrorCode = string(ec.Value)
	}
	return info, nil
}

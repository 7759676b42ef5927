package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"certagent/internal/delegation"
	"certagent/internal/domain"
	cerrors "certagent/internal/errors"
	"certagent/internal/identity"
)

// Handshake is one exchange with an identity provider.
type Handshake struct {
	id     uuid.UUID
	cancel chan struct{}
	once   sync.Once
	done   chan struct{}
	err    error
}

func newHandshake() *Handshake {
	return &Handshake{id: uuid.New(), cancel: make(chan struct{}), done: make(chan struct{})}
}

// ID identifies the handshake in logs.
func (h *Handshake) ID() uuid.UUID { return h.id }

// Done is closed when the handshake has finished and its surface is closed.
func (h *Handshake) Done() <-chan struct{} { return h.done }

// Err returns the outcome once Done is closed: nil on success,
// ErrUserInterrupted, ErrHandshakeSuperseded, an *ExternalFailureError or the
// error that stopped the handshake.
func (h *Handshake) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the handshake finishes or ctx ends.
func (h *Handshake) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handshake) stop() { h.once.Do(func() { close(h.cancel) }) }

// supersede stops the handshake in flight, if any, and waits for its
// teardown.
func (s *Session) supersede() {
	s.mu.Lock()
	prev := s.hs
	s.hs = nil
	s.mu.Unlock()
	if prev != nil {
		prev.stop()
		<-prev.done
	}
}

// Login runs a handshake and waits for it.
func (s *Session) Login(ctx context.Context, opts LoginOptions) error {
	h, err := s.BeginHandshake(ctx, opts)
	if err != nil {
		return err
	}
	return h.Wait(ctx)
}

// BeginHandshake opens an authentication surface at the provider and starts
// the authorize exchange in the background. Any handshake already in flight
// is superseded first. The handshake ends when ctx does.
func (s *Session) BeginHandshake(ctx context.Context, opts LoginOptions) (*Handshake, error) {
	if s.opener == nil {
		return nil, fmt.Errorf("begin handshake: no surface opener configured")
	}
	provider := opts.Provider
	if provider == "" {
		provider = DefaultProvider
	}
	target, err := url.Parse(provider)
	if err != nil {
		return nil, fmt.Errorf("parse provider url: %w", err)
	}
	target.Fragment = authorizeFragment
	if opts.MaxTimeToLive <= 0 {
		opts.MaxTimeToLive = DefaultMaxTimeToLive
	}
	if opts.LivenessInterval <= 0 {
		opts.LivenessInterval = DefaultLivenessInterval
	}

	s.supersede()

	h := newHandshake()
	s.mu.Lock()
	key, err := s.ensureKeyLocked(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	raced := s.hs
	s.hs = h
	s.mu.Unlock()
	if raced != nil {
		raced.stop()
	}

	log := s.log.With().Str("handshake_id", h.id.String()).Str("provider", target.Redacted()).Logger()
	surface, err := s.opener.Open(ctx, target, opts.WindowFeatures)
	if err != nil {
		s.finish(h, err)
		return nil, cerrors.Wrap(err, "open authentication surface")
	}
	log.Info().Msg("handshake started")

	run := &handshakeRun{
		s:       s,
		h:       h,
		surface: surface,
		key:     key,
		origin:  serializeOrigin(target),
		opts:    opts,
		log:     log,
	}
	go run.loop(ctx)
	return h, nil
}

// serializeOrigin renders u's origin as a browser reports it: lower-case
// scheme and host, default port omitted.
func serializeOrigin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	port := u.Port()
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host
}

// finish records the outcome of h and releases the session's reference to it.
func (s *Session) finish(h *Handshake, err error) {
	s.mu.Lock()
	if s.hs == h {
		s.hs = nil
	}
	s.mu.Unlock()
	h.err = err
	close(h.done)
}

type handshakeRun struct {
	s       *Session
	h       *Handshake
	surface domain.Surface
	key     identity.SessionKey
	origin  string
	opts    LoginOptions
	log     zerolog.Logger
}

func (r *handshakeRun) loop(ctx context.Context) {
	err := r.wait(ctx)
	if cerr := r.surface.Close(); cerr != nil {
		r.log.Debug().Err(cerr).Msg("close authentication surface")
	}
	if err != nil {
		r.log.Info().Err(err).Msg("handshake ended")
	} else {
		r.log.Info().Msg("handshake completed")
	}
	r.s.finish(r.h, err)
}

func (r *handshakeRun) wait(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.LivenessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.h.cancel:
			return cerrors.ErrHandshakeSuperseded
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if r.surface.Closed() {
				return cerrors.ErrUserInterrupted
			}
		case ev, ok := <-r.surface.Events():
			if !ok {
				return cerrors.ErrUserInterrupted
			}
			if done, err := r.handle(ctx, ev); done {
				return err
			}
		}
	}
}

// handle processes one event and reports whether the handshake is over.
func (r *handshakeRun) handle(ctx context.Context, ev domain.SurfaceEvent) (bool, error) {
	if ev.Origin != r.origin {
		r.log.Warn().Err(cerrors.ErrOriginMismatch).Str("origin", ev.Origin).Msg("ignoring message")
		return false, nil
	}
	var hdr domain.MessageHeader
	if err := json.Unmarshal(ev.Data, &hdr); err != nil {
		r.log.Debug().Err(err).Msg("ignoring undecodable message")
		return false, nil
	}
	switch hdr.Kind {
	case domain.KindAuthorizeReady:
		if err := r.surface.Post(ctx, r.request(), r.origin); err != nil {
			return true, cerrors.Wrap(err, "post authorize request")
		}
		return false, nil
	case domain.KindAuthorizeSuccess:
		var msg domain.AuthorizeSuccess
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			return true, cerrors.Wrapf(cerrors.ErrChainMalformed, "decode authorize success: %v", err)
		}
		return true, r.complete(ctx, msg)
	case domain.KindAuthorizeFailure:
		var msg domain.AuthorizeFailure
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			r.log.Debug().Err(err).Msg("undecodable authorize failure")
			msg.Text = string(ev.Data)
		}
		return true, &ExternalFailureError{Text: msg.Text}
	default:
		r.log.Debug().Str("kind", hdr.Kind).Msg("ignoring message of unknown kind")
		return false, nil
	}
}

// request builds the authorize-client message. Custom values never replace
// the fields the session sets itself.
func (r *handshakeRun) request() map[string]any {
	req := make(map[string]any, len(r.opts.CustomValues)+5)
	for k, v := range r.opts.CustomValues {
		req[k] = v
	}
	req["kind"] = domain.KindAuthorizeClient
	req["sessionPublicKey"] = r.key.PublicKey()
	req["maxTimeToLive"] = uint64(r.opts.MaxTimeToLive.Nanoseconds())
	if r.opts.DerivationOrigin != "" {
		req["derivationOrigin"] = r.opts.DerivationOrigin
	}
	if len(r.opts.ScopeRestriction) > 0 {
		req["scopeRestriction"] = r.opts.ScopeRestriction
	}
	return req
}

func (r *handshakeRun) complete(ctx context.Context, msg domain.AuthorizeSuccess) error {
	s := r.s
	chain := delegation.FromWire(msg.Delegations, msg.UserPublicKey)
	ident, err := s.bind(r.key, chain)
	if err != nil {
		return err
	}
	data, err := chain.MarshalJSON()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hs != r.h {
		return cerrors.ErrHandshakeSuperseded
	}
	if err := s.storage.Set(ctx, domain.StorageKeyDelegationChain, data); err != nil {
		return cerrors.Wrap(err, "persist delegation chain")
	}
	s.key, s.chain, s.ident = r.key, chain, ident
	s.ensureIdleLocked()
	r.log.Info().Str("principal", chain.Principal().String()).Time("expiration", chain.Expiration()).Msg("session delegated")
	return nil
}

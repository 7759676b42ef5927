package replica

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"certagent/internal/certificate"
	"certagent/internal/clock"
	"certagent/internal/crypto"
	"certagent/internal/domain"
)

const (
	// RejectMethod is the method name the development server rejects.
	RejectMethod = "reject"

	maxRequestSize = 2 << 20

	rejectCodeCanister = 4
	errorCodeRejected  = "IC0406"
)

// Server is an in-memory development replica. Calls are accepted for any
// scope and move through received and processing to replied, one step per
// ProcessingDelay. The reply echoes the call argument; calls to RejectMethod
// are rejected instead. All state is lost when the process exits.
type Server struct {
	root  domain.Signer
	key   []byte
	clock clock.Clock
	step  time.Duration
	log   zerolog.Logger

	mu    sync.Mutex
	calls map[domain.RequestID]*callRecord
}

type callRecord struct {
	scope    domain.Principal
	sender   domain.Principal
	method   string
	arg      []byte
	received time.Time
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithProcessingDelay sets how long a call stays in each transient status.
func WithProcessingDelay(d time.Duration) ServerOption { return func(s *Server) { s.step = d } }

// WithServerClock sets the clock used for status progression and expiry.
func WithServerClock(c clock.Clock) ServerOption { return func(s *Server) { s.clock = c } }

// WithServerLogger sets the access and event logger.
func WithServerLogger(l zerolog.Logger) ServerOption { return func(s *Server) { s.log = l } }

// NewServer returns a Server certifying state with root, whose DER public
// key is rootKey.
func NewServer(root domain.Signer, rootKey []byte, opts ...ServerOption) *Server {
	s := &Server{
		root:  root,
		key:   rootKey,
		step:  time.Second,
		log:   zerolog.Nop(),
		calls: make(map[domain.RequestID]*callRecord),
	}
	for _, o := range opts {
		o(s)
	}
	s.clock = clock.OrReal(s.clock)
	return s
}

// Handler returns the HTTP API of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v2/status", s.handleStatus)
	mux.HandleFunc("POST /api/v2/canister/{scope}/call", s.handleCall)
	mux.HandleFunc("POST /api/v2/canister/{scope}/read_state", s.handleReadState)
	return s.accessLog(mux)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeCBOR(w, Status{APIVersion: "0.18.0", ImplVersion: "certagent-dev", RootKey: s.key, Health: "healthy"})
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	scope, env, ok := s.readEnvelope(w, r, RequestTypeCall)
	if !ok {
		return
	}
	target, _ := env.Content["canister_id"].([]byte)
	if !bytes.Equal(target, scope) {
		http.Error(w, "canister_id does not match the request path", http.StatusBadRequest)
		return
	}
	method, _ := env.Content["method_name"].(string)
	arg, _ := env.Content["arg"].([]byte)
	id, err := env.RequestID()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if _, dup := s.calls[id]; !dup {
		s.calls[id] = &callRecord{scope: scope, sender: env.Sender(), method: method, arg: arg, received: s.clock.Now()}
	}
	s.mu.Unlock()

	s.log.Info().Str("request_id", id.Hex()).Str("scope", scope.String()).Str("method", method).Msg("call accepted")
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleReadState(w http.ResponseWriter, r *http.Request) {
	_, env, ok := s.readEnvelope(w, r, RequestTypeReadState)
	if !ok {
		return
	}
	paths, err := contentPaths(env.Content["paths"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := s.clock.Now()
	statuses := certificate.Subtree{}
	s.mu.Lock()
	for _, p := range paths {
		if len(p) < 2 || string(p[0]) != "request_status" || len(p[1]) != len(domain.RequestID{}) {
			continue
		}
		var id domain.RequestID
		copy(id[:], p[1])
		rec, known := s.calls[id]
		if !known {
			continue
		}
		if !rec.sender.Equal(env.Sender()) {
			s.mu.Unlock()
			http.Error(w, "request status belongs to another sender", http.StatusForbidden)
			return
		}
		statuses[string(p[1])] = s.statusOf(rec, now)
	}
	s.mu.Unlock()

	tree, err := certificate.Build(certificate.Subtree{
		"request_status": statuses,
		"time":           crypto.EncodeULEB128(uint64(now.UnixNano())),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	tree = certificate.Prune(tree, append(paths, domain.NewPath("time")))
	cert, err := certificate.Sign(tree, func(msg []byte) ([]byte, error) {
		return s.root.Sign(r.Context(), msg)
	}, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeCBOR(w, readStateResponse{Certificate: cert})
}

// statusOf returns the certified request status of rec at now.
func (s *Server) statusOf(rec *callRecord, now time.Time) certificate.Subtree {
	elapsed := now.Sub(rec.received)
	switch {
	case elapsed < s.step:
		return certificate.Subtree{"status": string(domain.StatusReceived)}
	case elapsed < 2*s.step:
		return certificate.Subtree{"status": string(domain.StatusProcessing)}
	case rec.method == RejectMethod:
		return certificate.Subtree{
			"status":         string(domain.StatusRejected),
			"reject_code":    crypto.EncodeULEB128(rejectCodeCanister),
			"reject_message": fmt.Sprintf("%s rejected the call", rec.scope),
			"error_code":     errorCodeRejected,
		}
	default:
		return certificate.Subtree{"status": string(domain.StatusReplied), "reply": rec.arg}
	}
}

// readEnvelope decodes and authenticates the request body. It writes the
// error response itself and reports whether handling should continue.
func (s *Server) readEnvelope(w http.ResponseWriter, r *http.Request, requestType string) (domain.Principal, *Envelope, bool) {
	scope, err := domain.ParsePrincipal(r.PathValue("scope"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}
	env, err := DecodeEnvelope(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}
	if got := env.RequestType(); got != requestType {
		http.Error(w, fmt.Sprintf("request_type %q, want %q", got, requestType), http.StatusBadRequest)
		return nil, nil, false
	}
	now := s.clock.Now()
	if exp, ok := env.Content["ingress_expiry"].(uint64); ok && time.Unix(0, int64(exp)).Before(now) {
		http.Error(w, "ingress_expiry has passed", http.StatusBadRequest)
		return nil, nil, false
	}
	if err := env.Verify(nil, now); err != nil {
		s.log.Debug().Err(err).Msg("envelope rejected")
		http.Error(w, err.Error(), http.StatusForbidden)
		return nil, nil, false
	}
	return scope, env, true
}

func contentPaths(v any) ([]domain.Path, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("paths: expected an array, got %T", v)
	}
	out := make([]domain.Path, 0, len(raw))
	for _, p := range raw {
		labels, ok := p.([]any)
		if !ok {
			return nil, fmt.Errorf("path: expected an array, got %T", p)
		}
		path := make(domain.Path, 0, len(labels))
		for _, l := range labels {
			b, ok := l.([]byte)
			if !ok {
				return nil, fmt.Errorf("path label: expected bytes, got %T", l)
			}
			path = append(path, domain.Label(b))
		}
		out = append(out, path)
	}
	return out, nil
}

func (s *Server) writeCBOR(w http.ResponseWriter, v any) {
	b, err := encMode.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeCBOR)
	_, _ = w.Write(append(append([]byte{}, selfDescribeTag...), b...))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", rec.status).
			Int("bytes", rec.bytes).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}


package surface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"certagent/internal/domain"
)

const (
	maxMessageBytes   = 1 << 20
	outboxPollWait    = 20 * time.Second
	defaultLiveness   = 5 * time.Second
	shutdownGrace     = 2 * time.Second
	eventBufferSize   = 16
	outboxBufferSize  = 8
	callbackParameter = "callback"
)

var errSurfaceClosed = errors.New("surface closed")

// Launcher presents the provider URL to the user (or to a headless provider).
type Launcher func(ctx context.Context, providerURL, features string) error

// Outgoing is a message queued for the provider.
type Outgoing struct {
	TargetOrigin string          `json:"targetOrigin"`
	Data         json.RawMessage `json:"data"`
}

// LoopbackOpener opens Loopback surfaces.
type LoopbackOpener struct {
	Launch   Launcher
	Liveness time.Duration
	Logger   zerolog.Logger
}

// Open starts a listener, appends its callback URL to target and launches it.
func (o *LoopbackOpener) Open(ctx context.Context, target *url.URL, features string) (domain.Surface, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("loopback listen: %w", err)
	}
	liveness := o.Liveness
	if liveness <= 0 {
		liveness = defaultLiveness
	}
	l := newLoopback(ln, origin(target), liveness, o.Logger)

	u := *target
	q := u.Query()
	q.Set(callbackParameter, l.CallbackURL())
	u.RawQuery = q.Encode()

	if o.Launch != nil {
		if err := o.Launch(ctx, u.String(), features); err != nil {
			_ = l.Close()
			return nil, fmt.Errorf("launch provider: %w", err)
		}
	}
	return l, nil
}

// Loopback is a surface reachable over HTTP on the loopback interface.
type Loopback struct {
	srv         *http.Server
	ln          net.Listener
	allowOrigin string
	liveness    time.Duration
	log         zerolog.Logger

	events chan domain.SurfaceEvent
	outbox chan Outgoing

	mu        sync.Mutex
	contacted bool
	inflight  int
	lastSeen  time.Time
	closed    bool

	done      chan struct{}
	closeOnce sync.Once
}

func newLoopback(ln net.Listener, allowOrigin string, liveness time.Duration, log zerolog.Logger) *Loopback {
	l := &Loopback{
		ln:          ln,
		allowOrigin: allowOrigin,
		liveness:    liveness,
		log:         log.With().Str("component", "loopback").Str("addr", ln.Addr().String()).Logger(),
		events:      make(chan domain.SurfaceEvent, eventBufferSize),
		outbox:      make(chan Outgoing, outboxBufferSize),
		done:        make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/message", l.cors(l.handleMessage))
	mux.HandleFunc("/outbox", l.cors(l.handleOutbox))
	mux.HandleFunc("/close", l.cors(l.handleClose))
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.log.Error().Err(err).Msg("loopback server stopped")
		}
	}()
	return l
}

// CallbackURL is the base URL the provider talks to.
func (l *Loopback) CallbackURL() string { return "http://" + l.ln.Addr().String() }

func (l *Loopback) Events() <-chan domain.SurfaceEvent { return l.events }

func (l *Loopback) Post(ctx context.Context, msg any, targetOrigin string) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	select {
	case <-l.done:
		return errSurfaceClosed
	default:
	}
	select {
	case l.outbox <- Outgoing{TargetOrigin: targetOrigin, Data: data}:
		return nil
	case <-l.done:
		return errSurfaceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loopback) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return true
	}
	return l.contacted && l.inflight == 0 && time.Since(l.lastSeen) > l.liveness
}

func (l *Loopback) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(l.done)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		err = l.srv.Shutdown(ctx)
	})
	return err
}

func (l *Loopback) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if l.allowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", l.allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func (l *Loopback) touch(delta int) {
	l.mu.Lock()
	l.contacted = true
	l.inflight += delta
	l.lastSeen = time.Now()
	l.mu.Unlock()
}

func (l *Loopback) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	l.touch(0)
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	ev := domain.SurfaceEvent{Origin: r.Header.Get("Origin"), Data: body}
	select {
	case l.events <- ev:
		w.WriteHeader(http.StatusNoContent)
	case <-l.done:
		http.Error(w, "surface closed", http.StatusGone)
	case <-r.Context().Done():
	}
}

func (l *Loopback) handleOutbox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	l.touch(1)
	defer l.touch(-1)

	t := time.NewTimer(outboxPollWait)
	defer t.Stop()
	select {
	case m := <-l.outbox:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m)
	case <-t.C:
		w.WriteHeader(http.StatusNoContent)
	case <-l.done:
		http.Error(w, "surface closed", http.StatusGone)
	case <-r.Context().Done():
	}
}

func (l *Loopback) handleClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// origin returns scheme://host of u.
func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

var (
	_ domain.Surface       = (*Loopback)(nil)
	_ domain.SurfaceOpener = (*LoopbackOpener)(nil)
)

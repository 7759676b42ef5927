// Package idle detects user inactivity and fires callbacks once a session
// has been idle for a configured period.
package idle

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"certagent/internal/domain"
)

// DefaultTimeout is used when Options.Timeout is not positive.
const DefaultTimeout = 10 * time.Minute

// Options configures a Manager.
type Options struct {
	Timeout time.Duration
	// OnIdle is registered as the first callback when set.
	OnIdle func()
	Logger zerolog.Logger
}

// Manager runs registered callbacks once after Timeout passes without a
// Touch. After firing, or after Exit, it is inert.
type Manager struct {
	mu        sync.Mutex
	timeout   time.Duration
	timer     *time.Timer
	callbacks []func()
	done      bool
	log       zerolog.Logger
}

// New starts a Manager.
func New(opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	m := &Manager{timeout: opts.Timeout, log: opts.Logger.With().Str("component", "idle").Logger()}
	if opts.OnIdle != nil {
		m.callbacks = append(m.callbacks, opts.OnIdle)
	}
	m.timer = time.AfterFunc(m.timeout, m.fire)
	return m
}

// RegisterCallback adds fn to the callbacks run on idle.
func (m *Manager) RegisterCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.done {
		m.callbacks = append(m.callbacks, fn)
	}
}

// Touch records activity and restarts the idle period.
func (m *Manager) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.done {
		m.timer.Reset(m.timeout)
	}
}

// Exit stops the manager without running callbacks.
func (m *Manager) Exit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done = true
	m.timer.Stop()
	m.callbacks = nil
}

func (m *Manager) fire() {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return
	}
	m.done = true
	cbs := m.callbacks
	m.callbacks = nil
	m.mu.Unlock()

	m.log.Info().Dur("timeout", m.timeout).Int("callbacks", len(cbs)).Msg("session idle")
	for _, cb := range cbs {
		cb()
	}
}

var _ domain.IdleDetector = (*Manager)(nil)

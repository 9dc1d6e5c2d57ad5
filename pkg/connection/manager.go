package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Manager errors.
var (
	ErrManagerClosed  = errors.New("connection manager closed")
	ErrAlreadyStarted = errors.New("connection manager already started")
)

// State is the link state of a Manager.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc establishes the link. It returns once connected; the link
// owner reports a later loss through Manager.NotifyConnectionLost.
type ConnectFunc func(ctx context.Context) error

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Name identifies the endpoint in log output.
	Name string

	// Connect dials the endpoint. Required.
	Connect ConnectFunc

	// Backoff parameters for redialing.
	Backoff BackoffConfig

	// ConnectTimeout bounds a single Connect call (default: 5s).
	ConnectTimeout time.Duration

	// OnStateChange is called on every state transition, from the manager
	// goroutine.
	OnStateChange func(oldState, newState State)

	// Logger for operational logging (default: slog.Default()).
	Logger *slog.Logger
}

// Manager dials an endpoint and redials it with backoff until closed.
type Manager struct {
	cfg     ManagerConfig
	backoff *Backoff
	logger  *slog.Logger

	mu      sync.RWMutex
	state   State
	started bool

	lostCh chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager. It does nothing until Start.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		backoff: NewBackoff(cfg.Backoff),
		logger:  logger.With("endpoint", cfg.Name),
		state:   StateDisconnected,
		lostCh:  make(chan struct{}, 1),
	}
}

// State returns the current link state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether the link is up.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Attempts returns the number of failed redials since the last connect.
func (m *Manager) Attempts() int {
	return m.backoff.Attempts()
}

// Start launches the connect loop. The first attempt is immediate.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		return ErrManagerClosed
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.run(ctx)
	return nil
}

// NotifyConnectionLost tells the manager the link established by the last
// successful Connect went down.
func (m *Manager) NotifyConnectionLost() {
	select {
	case m.lostCh <- struct{}{}:
	default:
	}
}

// Close stops the connect loop and waits for it. It is safe to call more
// than once.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.setState(StateClosed)
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		if m.State() == StateDisconnected {
			m.setState(StateConnecting)
		}
		// Drop losses reported for earlier links.
		select {
		case <-m.lostCh:
		default:
		}

		if err := m.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := m.backoff.Next()
			m.logger.Debug("connect failed", "error", err, "attempt", m.backoff.Attempts(), "retry_in", delay)
			m.setState(StateReconnecting)
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		m.backoff.Reset()
		m.setState(StateConnected)

		select {
		case <-ctx.Done():
			return
		case <-m.lostCh:
			m.logger.Debug("connection lost")
			m.setState(StateReconnecting)
			if !sleep(ctx, m.backoff.Next()) {
				return
			}
		}
	}
}

func (m *Manager) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	return m.cfg.Connect(ctx)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	old := m.state
	if old == s || old == StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()

	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(old, s)
	}
}

// sleep waits for d or until ctx is done; it reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

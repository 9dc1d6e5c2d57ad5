package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Run("doubles up to max", func(t *testing.T) {
		b := NewBackoff(BackoffConfig{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Jitter: -1})
		want := []time.Duration{10, 20, 40, 50, 50}
		for i, w := range want {
			if got := b.Next(); got != w*time.Millisecond {
				t.Errorf("step %d: got %v, want %v", i, got, w*time.Millisecond)
			}
		}
		if b.Attempts() != len(want) {
			t.Errorf("Attempts = %d, want %d", b.Attempts(), len(want))
		}
	})

	t.Run("jitter stays in range", func(t *testing.T) {
		b := NewBackoff(BackoffConfig{Initial: 100 * time.Millisecond, Jitter: 0.25})
		for i := 0; i < 20; i++ {
			b.Reset()
			d := b.Next()
			if d < 100*time.Millisecond || d > 125*time.Millisecond {
				t.Fatalf("delay %v outside [100ms, 125ms]", d)
			}
		}
	})

	t.Run("reset", func(t *testing.T) {
		b := NewBackoff(BackoffConfig{Initial: 10 * time.Millisecond, Jitter: -1})
		b.Next()
		b.Next()
		b.Reset()
		if b.Current() != 10*time.Millisecond || b.Attempts() != 0 {
			t.Errorf("after reset: current=%v attempts=%d", b.Current(), b.Attempts())
		}
	})

	t.Run("defaults", func(t *testing.T) {
		b := NewBackoff(BackoffConfig{})
		if b.Current() != InitialBackoff {
			t.Errorf("Current = %v, want %v", b.Current(), InitialBackoff)
		}
	})
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(_, s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) has(s State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.states {
		if got == s {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func TestManagerConnects(t *testing.T) {
	rec := &stateRecorder{}
	m := NewManager(ManagerConfig{
		Name:          "test",
		Connect:       func(context.Context) error { return nil },
		OnStateChange: rec.record,
	})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Close()

	waitFor(t, m.IsConnected)
	if !rec.has(StateConnecting) {
		t.Error("CONNECTING not reported")
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start: expected ErrAlreadyStarted, got %v", err)
	}
}

func TestManagerRetriesWithBackoff(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(ManagerConfig{
		Connect: func(context.Context) error {
			if calls.Add(1) < 3 {
				return errors.New("refused")
			}
			return nil
		},
		Backoff: BackoffConfig{Initial: time.Millisecond, Max: 5 * time.Millisecond},
	})
	m.Start(context.Background())
	defer m.Close()

	waitFor(t, m.IsConnected)
	if calls.Load() != 3 {
		t.Errorf("connect calls = %d, want 3", calls.Load())
	}
	if m.Attempts() != 0 {
		t.Errorf("Attempts after connect = %d, want 0", m.Attempts())
	}
}

func TestManagerReconnectsAfterLoss(t *testing.T) {
	var calls atomic.Int32
	rec := &stateRecorder{}
	m := NewManager(ManagerConfig{
		Connect: func(context.Context) error {
			calls.Add(1)
			return nil
		},
		Backoff:       BackoffConfig{Initial: time.Millisecond},
		OnStateChange: rec.record,
	})
	m.Start(context.Background())
	defer m.Close()

	waitFor(t, m.IsConnected)
	m.NotifyConnectionLost()
	waitFor(t, func() bool { return calls.Load() == 2 && m.IsConnected() })

	if !rec.has(StateReconnecting) {
		t.Error("RECONNECTING not reported")
	}
}

func TestManagerClose(t *testing.T) {
	m := NewManager(ManagerConfig{
		Connect: func(context.Context) error { return errors.New("down") },
		Backoff: BackoffConfig{Initial: time.Hour},
	})
	m.Start(context.Background())

	waitFor(t, func() bool { return m.State() == StateReconnecting })
	m.Close()
	m.Close()

	if m.State() != StateClosed {
		t.Errorf("State = %v, want CLOSED", m.State())
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Start after Close: expected ErrManagerClosed, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateDisconnected: "DISCONNECTED",
		StateConnecting:   "CONNECTING",
		StateConnected:    "CONNECTED",
		StateReconnecting: "RECONNECTING",
		StateClosed:       "CLOSED",
		State(99):         "UNKNOWN",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

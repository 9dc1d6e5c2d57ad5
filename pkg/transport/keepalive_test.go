package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeepAliveConfig(t *testing.T) {
	cfg := DefaultKeepAliveConfig()
	if cfg.PingInterval != DefaultPingInterval {
		t.Errorf("PingInterval = %v", cfg.PingInterval)
	}
	if got, want := cfg.DetectionDelay(), 17*time.Second; got != want {
		t.Errorf("DetectionDelay = %v, want %v", got, want)
	}
}

func TestKeepAliveSendsPings(t *testing.T) {
	var pings atomic.Int32
	ka := NewKeepAlive(KeepAliveConfig{PingInterval: 10 * time.Millisecond, PongTimeout: 5 * time.Millisecond, MaxMissedPongs: 100},
		func(uint32) error { pings.Add(1); return nil }, nil)

	ka.Start(context.Background())
	time.Sleep(55 * time.Millisecond)
	ka.Stop()

	if n := pings.Load(); n < 3 {
		t.Errorf("expected at least 3 pings, got %d", n)
	}
	if ka.IsRunning() {
		t.Error("keep-alive still running after Stop")
	}
}

func TestKeepAliveTimeout(t *testing.T) {
	timedOut := make(chan struct{})
	ka := NewKeepAlive(KeepAliveConfig{PingInterval: 10 * time.Millisecond, PongTimeout: 5 * time.Millisecond, MaxMissedPongs: 2},
		func(uint32) error { return nil }, func() { close(timedOut) })

	ka.Start(context.Background())
	defer ka.Stop()

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("timeout callback not called")
	}
	if ka.Stats().MissedPongs != 2 {
		t.Errorf("MissedPongs = %d, want 2", ka.Stats().MissedPongs)
	}
}

func TestKeepAlivePongResetsCounter(t *testing.T) {
	var ka *KeepAlive
	var mu sync.Mutex
	var timedOut bool

	ka = NewKeepAlive(KeepAliveConfig{PingInterval: 10 * time.Millisecond, PongTimeout: 5 * time.Millisecond, MaxMissedPongs: 2},
		func(seq uint32) error {
			go ka.PongReceived(seq)
			return nil
		},
		func() {
			mu.Lock()
			timedOut = true
			mu.Unlock()
		})

	ka.Start(context.Background())
	time.Sleep(80 * time.Millisecond)
	ka.Stop()

	mu.Lock()
	defer mu.Unlock()
	if timedOut {
		t.Error("answered pings should not time out")
	}
	stats := ka.Stats()
	if stats.MissedPongs != 0 {
		t.Errorf("MissedPongs = %d, want 0", stats.MissedPongs)
	}
	if stats.LastPongTime.IsZero() {
		t.Error("LastPongTime not recorded")
	}
}

func TestKeepAliveContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var pings atomic.Int32
	ka := NewKeepAlive(KeepAliveConfig{PingInterval: 10 * time.Millisecond, MaxMissedPongs: 100},
		func(uint32) error { pings.Add(1); return nil }, nil)

	ka.Start(ctx)
	time.Sleep(25 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	n := pings.Load()
	time.Sleep(30 * time.Millisecond)

	if pings.Load() != n {
		t.Error("pings continued after context cancel")
	}
	ka.Stop()
}

func TestKeepAliveStopIdempotent(t *testing.T) {
	ka := NewKeepAlive(KeepAliveConfig{}, func(uint32) error { return nil }, nil)
	ka.Stop()
	ka.Start(context.Background())
	ka.Stop()
	ka.Stop()
}

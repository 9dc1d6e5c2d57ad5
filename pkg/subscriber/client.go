package subscriber

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldbus/fieldbus-go/pkg/runtime"
	"github.com/fieldbus/fieldbus-go/pkg/sample"
	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

// Default cadence.
const (
	DefaultPeriod      = 500 * time.Millisecond
	DefaultSettleDelay = time.Second
)

// Config configures a Client.
type Config struct {
	// Period between two toggles. Zero or less disables the toggle loop;
	// the toggler then starts Unsubscribed and is driven through
	// Client.Toggler only.
	Period time.Duration

	// SettleDelay before the first toggle.
	SettleDelay time.Duration

	// Services to toggle, in order.
	Services []wire.ServiceKey

	Eventgroup wire.EventgroupID
	Event      wire.EventID

	// Logger for operational logging (default: slog.Default()).
	Logger *slog.Logger
}

// DefaultConfig returns the sample client configuration.
func DefaultConfig() Config {
	return Config{
		Period:      DefaultPeriod,
		SettleDelay: DefaultSettleDelay,
		Services:    sample.Services(),
		Eventgroup:  sample.Eventgroup,
		Event:       sample.Event,
	}
}

// Client wires the toggler and the observer to an application.
type Client struct {
	app      runtime.Application
	cfg      Config
	toggler  *Toggler
	observer *Observer
	logger   *slog.Logger

	mu          sync.Mutex
	initialized bool
	started     bool
	stopped     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	stopOnce    sync.Once
	stopErr     error
}

// NewClient creates the subscribing component on top of app.
func NewClient(app runtime.Application, cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	toggler := NewToggler(app, cfg.Eventgroup, cfg.Event, cfg.Services...)
	if cfg.Period <= 0 {
		// Nothing has been requested yet when toggling by hand.
		toggler.state = Unsubscribed
	}
	return &Client{
		app:      app,
		cfg:      cfg,
		toggler:  toggler,
		observer: NewObserver(logger),
		logger:   logger,
	}
}

// Toggler returns the toggler driven by the client.
func (c *Client) Toggler() *Toggler {
	return c.toggler
}

// Init initializes the application and registers one message handler for
// everything and one availability handler per service.
func (c *Client) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return runtime.ErrAlreadyInitialized
	}
	if err := c.app.Init(); err != nil {
		return fmt.Errorf("init application: %w", err)
	}

	c.app.RegisterMessageHandler(wire.AnyService, wire.AnyInstance, wire.AnyMethod, c.observer.OnMessage)
	for _, s := range c.cfg.Services {
		c.app.RegisterAvailabilityHandler(s.Service, s.Instance, c.observer.OnAvailability)
	}
	c.initialized = true
	return nil
}

// Start starts the application and the toggle loop.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.stopped:
		return runtime.ErrStopped
	case !c.initialized:
		return runtime.ErrNotInitialized
	case c.started:
		return runtime.ErrAlreadyStarted
	}

	if err := c.app.Start(); err != nil {
		return fmt.Errorf("start application: %w", err)
	}
	c.started = true

	if c.cfg.Period <= 0 {
		c.logger.Info("toggle loop disabled")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go c.run(ctx)

	c.logger.Info("toggling subscriptions", "services", len(c.cfg.Services), "period", c.cfg.Period, "settle", c.cfg.SettleDelay)
	return nil
}

// Stop ends the toggle loop and stops the application. It is safe to call
// more than once. Subscriptions are left as they are.
func (c *Client) Stop() error {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		cancel := c.cancel
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		c.stopErr = c.app.Stop()
		c.wg.Wait()
	})
	return c.stopErr
}

func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()

	if !sleep(ctx, c.cfg.SettleDelay) {
		return
	}
	for ctx.Err() == nil {
		state := c.toggler.Toggle()
		c.logger.Debug("toggled", "state", state.String())
		if !sleep(ctx, c.cfg.Period) {
			return
		}
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

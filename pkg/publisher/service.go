package publisher

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
	DefaultPeriod      = 50 * time.Millisecond
	DefaultSettleDelay = time.Second
)

// Config configures a Service.
type Config struct {
	// Period between two ticks.
	Period time.Duration

	// SettleDelay before the first tick.
	SettleDelay time.Duration

	// Services to offer and publish on, in publish order.
	Services []wire.ServiceKey

	Eventgroup wire.EventgroupID
	Event      wire.EventID
	Major      wire.MajorVersion
	Minor      wire.MinorVersion

	// Logger for operational logging (default: slog.Default()).
	Logger *slog.Logger
}

// DefaultConfig returns the sample service configuration.
func DefaultConfig() Config {
	return Config{
		Period:      DefaultPeriod,
		SettleDelay: DefaultSettleDelay,
		Services:    sample.Services(),
		Eventgroup:  sample.Eventgroup,
		Event:       sample.Event,
		Major:       sample.Major,
		Minor:       sample.Minor,
	}
}

// Service offers the configured services and runs the publish loop.
type Service struct {
	app       runtime.Application
	cfg       Config
	publisher *Publisher
	logger    *slog.Logger

	mu          sync.Mutex
	initialized bool
	started     bool
	stopped     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	stopOnce    sync.Once
	stopErr     error
}

// NewService creates the publishing component on top of app.
func NewService(app runtime.Application, cfg Config) *Service {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		app:       app,
		cfg:       cfg,
		publisher: NewPublisher(app, cfg.Event, cfg.Services...),
		logger:    logger,
	}
}

// Publisher returns the underlying publisher.
func (s *Service) Publisher() *Publisher {
	return s.publisher
}

// Init initializes the application, then offers every service with its
// field event.
func (s *Service) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return runtime.ErrAlreadyInitialized
	}
	if err := s.app.Init(); err != nil {
		return fmt.Errorf("init application: %w", err)
	}

	groups := []wire.EventgroupID{s.cfg.Eventgroup}
	for _, svc := range s.cfg.Services {
		s.app.OfferEvent(svc.Service, svc.Instance, s.cfg.Event, groups, wire.EventTypeField)
		s.app.OfferService(svc.Service, svc.Instance, s.cfg.Major, s.cfg.Minor)
	}
	s.initialized = true
	return nil
}

// Start starts the application and the publish loop.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.stopped:
		return runtime.ErrStopped
	case !s.initialized:
		return runtime.ErrNotInitialized
	case s.started:
		return runtime.ErrAlreadyStarted
	}

	if err := s.app.Start(); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.started = true
	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("publishing", "services", len(s.cfg.Services), "period", s.cfg.Period, "settle", s.cfg.SettleDelay)
	return nil
}

// Stop ends the publish loop and stops the application. It is safe to call
// more than once.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		cancel := s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		s.stopErr = s.app.Stop()
		s.wg.Wait()
	})
	return s.stopErr
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()

	if !sleep(ctx, s.cfg.SettleDelay) {
		return
	}
	for ctx.Err() == nil {
		value := s.publisher.Tick()
		s.logger.Debug("published", "value", value)
		if !sleep(ctx, s.cfg.Period) {
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

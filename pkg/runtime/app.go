package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/fieldbus/fieldbus-go/pkg/discovery"
	"github.com/fieldbus/fieldbus-go/pkg/subscription"
	"github.com/fieldbus/fieldbus-go/pkg/transport"
	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

// App is the TCP implementation of Application. A single App can offer
// services, consume remote ones, or both.
type App struct {
	cfg      Config
	logger   *slog.Logger
	handlers handlerTable
	dispatch *dispatcher

	mu          sync.Mutex
	initialized bool
	started     bool
	stopped     bool

	// Service side.
	server   *transport.Server
	registry *subscription.Registry
	offered  map[wire.ServiceKey]wire.ServiceEntry
	conns    map[string]*transport.ServerConn
	// pubMu orders priming notifications against regular ones.
	pubMu sync.Mutex

	// Client side. availMu orders availability reports.
	availMu  sync.Mutex
	dialer   *transport.Dialer
	links    map[string]*link
	offers   map[wire.ServiceKey]map[*link]wire.ServiceEntry
	requests map[wire.ServiceKey]serviceRequest
	events   map[eventRef]eventRequest
	subs     map[subscription.Key]*clientSub

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

type serviceRequest struct {
	major wire.MajorVersion
	minor wire.MinorVersion
}

type eventRef struct {
	key   wire.ServiceKey
	event wire.EventID
}

type eventRequest struct {
	groups []wire.EventgroupID
	typ    wire.EventType
}

// NewApp creates an application. Call Init and Start before use.
func NewApp(cfg Config) *App {
	cfg.applyDefaults()
	return &App{
		cfg:      cfg,
		logger:   cfg.Logger.With("app", cfg.Name),
		registry: subscription.NewRegistry(subscription.Config{}),
		offered:  make(map[wire.ServiceKey]wire.ServiceEntry),
		conns:    make(map[string]*transport.ServerConn),
		links:    make(map[string]*link),
		offers:   make(map[wire.ServiceKey]map[*link]wire.ServiceEntry),
		requests: make(map[wire.ServiceKey]serviceRequest),
		events:   make(map[eventRef]eventRequest),
		subs:     make(map[subscription.Key]*clientSub),
	}
}

// Name implements Application.
func (a *App) Name() string {
	return a.cfg.Name
}

// Init implements Application. It validates the configuration and builds
// the transport components without touching the network.
func (a *App) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return ErrAlreadyInitialized
	}
	if a.stopped {
		return ErrStopped
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.dispatch = newDispatcher(a.cfg.DispatchQueueSize, a.logger)
	a.dialer = transport.NewDialer(transport.ClientConfig{
		KeepAlive: a.cfg.KeepAlive,
		Logger:    a.cfg.ProtocolLogger,
	})
	if a.cfg.ListenAddress != "" {
		a.server = transport.NewServer(transport.ServerConfig{
			Address:      a.cfg.ListenAddress,
			Logger:       a.cfg.ProtocolLogger,
			OnConnect:    a.onConnect,
			OnDisconnect: a.onDisconnect,
			OnMessage:    a.onServerMessage,
			OnError: func(conn *transport.ServerConn, err error) {
				if conn == nil {
					a.logger.Warn("accept failed", "error", err)
					return
				}
				a.logger.Debug("connection error", "conn_id", conn.ConnID(), "error", err)
			},
		})
	}

	a.initialized = true
	a.logger.Debug("initialized", "listen", a.cfg.ListenAddress)
	return nil
}

// Start implements Application.
func (a *App) Start() error {
	a.mu.Lock()
	switch {
	case a.stopped:
		a.mu.Unlock()
		return ErrStopped
	case !a.initialized:
		a.mu.Unlock()
		return ErrNotInitialized
	case a.started:
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	a.ctx, a.cancel, a.group = gctx, cancel, g
	a.mu.Unlock()

	g.Go(func() error {
		return a.dispatch.run(gctx)
	})

	if a.server != nil {
		if err := a.server.Start(gctx); err != nil {
			_ = a.Stop()
			return fmt.Errorf("start server: %w", err)
		}
		a.logger.Info("listening", "addr", a.server.Addr().String())

		if a.cfg.Advertiser != nil {
			if err := a.cfg.Advertiser.Advertise(gctx, a.endpointInfo()); err != nil {
				a.logger.Warn("advertising failed", "error", err)
			}
		}
	}

	if a.cfg.Browser != nil {
		events, err := a.cfg.Browser.Browse(gctx)
		if err != nil {
			_ = a.Stop()
			return fmt.Errorf("start browsing: %w", err)
		}
		g.Go(func() error {
			a.browseLoop(gctx, events)
			return nil
		})
	}

	a.logger.Info("started")
	return nil
}

// Stop implements Application.
func (a *App) Stop() error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	links := make([]*link, 0, len(a.links))
	for _, l := range a.links {
		links = append(links, l)
	}
	clear(a.links)
	a.mu.Unlock()

	var result *multierror.Error
	if a.cfg.Advertiser != nil && a.server != nil {
		if err := a.cfg.Advertiser.Stop(); err != nil && !errors.Is(err, discovery.ErrNotAdvertising) {
			result = multierror.Append(result, fmt.Errorf("stop advertiser: %w", err))
		}
	}
	if a.cfg.Browser != nil {
		a.cfg.Browser.Stop()
	}

	for _, l := range links {
		l.close()
	}
	a.cancel()
	if a.server != nil {
		if err := a.server.Stop(); err != nil {
			result = multierror.Append(result, fmt.Errorf("stop server: %w", err))
		}
	}
	if err := a.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		result = multierror.Append(result, err)
	}

	a.logger.Info("stopped")
	return result.ErrorOrNil()
}

// ListenAddr returns the address the service side listens on, or nil when
// the app has no service side or is not started.
func (a *App) ListenAddr() net.Addr {
	if a.server == nil {
		return nil
	}
	return a.server.Addr()
}

// AvailableServices returns the remote services currently offered to this
// app, sorted by key.
func (a *App) AvailableServices() []wire.ServiceKey {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]wire.ServiceKey, 0, len(a.offers))
	for k := range a.offers {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// OfferedServices returns the locally offered services, sorted by key.
func (a *App) OfferedServices() []wire.ServiceEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.offeredEntriesLocked()
}

func (a *App) offeredEntriesLocked() []wire.ServiceEntry {
	entries := make([]wire.ServiceEntry, 0, len(a.offered))
	for _, e := range a.offered {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(x, y wire.ServiceEntry) int {
		return compareKeys(x.Key(), y.Key())
	})
	return entries
}

func compareKeys(x, y wire.ServiceKey) int {
	if x.Service != y.Service {
		return int(x.Service) - int(y.Service)
	}
	return int(x.Instance) - int(y.Instance)
}

// running returns the app context once started, or nil.
func (a *App) running() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started || a.stopped {
		return nil
	}
	return a.ctx
}

// RegisterMessageHandler implements Application.
func (a *App) RegisterMessageHandler(service wire.ServiceID, instance wire.InstanceID, method wire.MethodID, h MessageHandler) {
	f := messageFilter{key: wire.ServiceKey{Service: service, Instance: instance}, method: method}
	a.handlers.addMessage(f, h)
}

// UnregisterMessageHandler implements Application.
func (a *App) UnregisterMessageHandler(service wire.ServiceID, instance wire.InstanceID, method wire.MethodID) {
	f := messageFilter{key: wire.ServiceKey{Service: service, Instance: instance}, method: method}
	a.handlers.removeMessage(f)
}

// RegisterAvailabilityHandler implements Application.
func (a *App) RegisterAvailabilityHandler(service wire.ServiceID, instance wire.InstanceID, h AvailabilityHandler) {
	a.handlers.addAvailability(wire.ServiceKey{Service: service, Instance: instance}, h)
}

// UnregisterAvailabilityHandler implements Application.
func (a *App) UnregisterAvailabilityHandler(service wire.ServiceID, instance wire.InstanceID) {
	a.handlers.removeAvailability(wire.ServiceKey{Service: service, Instance: instance})
}

var _ Application = (*App)(nil)

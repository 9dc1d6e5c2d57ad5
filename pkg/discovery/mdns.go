package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// AdvertiserConfig configures an MDNSAdvertiser.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface (optional).
	Interface string

	// TTL for mDNS records (0 = library default).
	TTL time.Duration
}

// BrowserConfig configures an MDNSBrowser.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface (optional).
	Interface string

	// Logger for operational logging (default: slog.Default()).
	Logger *slog.Logger
}

// MDNSAdvertiser implements Advertiser using zeroconf.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	return &MDNSAdvertiser{config: config}
}

// Advertise registers the endpoint, replacing a previous registration.
func (a *MDNSAdvertiser) Advertise(ctx context.Context, info *EndpointInfo) error {
	if err := ValidateInstanceName(info.InstanceName); err != nil {
		return err
	}
	txt, err := EncodeEndpointTXT(info)
	if err != nil {
		return err
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := zeroconf.Register(
		info.InstanceName,
		ServiceType,
		Domain,
		int(info.Port),
		TXTRecordsToStrings(txt),
		selectInterfaces(a.config.Interface),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", ServiceType, err)
	}
	a.server = server
	return nil
}

// Update replaces the TXT record of the running registration.
func (a *MDNSAdvertiser) Update(info *EndpointInfo) error {
	txt, err := EncodeEndpointTXT(info)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return ErrNotAdvertising
	}
	a.server.SetText(TXTRecordsToStrings(txt))
	return nil
}

// Stop withdraws the registration. It is safe to call when not advertising.
func (a *MDNSAdvertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	return nil
}

// MDNSBrowser implements Browser using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig
	logger *slog.Logger

	mu      sync.Mutex
	cancels []context.CancelFunc
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MDNSBrowser{config: config, logger: logger}
}

// Browse streams endpoint events. Announcements of the same instance on
// several interfaces are merged into one endpoint; an endpoint is removed
// once its last address is withdrawn.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan EndpointEvent, error) {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	out := make(chan EndpointEvent)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)
		agg := newAggregator()

		emit := func(ev EndpointEvent, ok bool) bool {
			if !ok {
				return true
			}
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				ep, err := entryToEndpoint(entry)
				if err != nil {
					b.logger.Debug("ignoring endpoint", "instance", entry.Instance, "error", err)
					continue
				}
				if !emit(agg.add(ep)) {
					return
				}
			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				if !emit(agg.remove(entry.Instance, entryAddresses(entry))) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		var opts []zeroconf.ClientOption
		if ifaces := selectInterfaces(b.config.Interface); ifaces != nil {
			opts = append(opts, zeroconf.SelectIfaces(ifaces))
		}
		if err := zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...); err != nil {
			b.logger.Warn("mDNS browse failed", "error", err)
			cancel()
		}
	}()

	return out, nil
}

// Stop cancels every active Browse.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
}

func entryToEndpoint(entry *zeroconf.ServiceEntry) (*Endpoint, error) {
	info, err := DecodeEndpointTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		return nil, err
	}
	return &Endpoint{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Port:         uint16(entry.Port),
		Addresses:    entryAddresses(entry),
		Name:         info.Name,
		Services:     info.Services,
	}, nil
}

func entryAddresses(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

// selectInterfaces returns nil (all interfaces) unless name resolves.
func selectInterfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

var (
	_ Advertiser = (*MDNSAdvertiser)(nil)
	_ Browser    = (*MDNSBrowser)(nil)
)

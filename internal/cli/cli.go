// Package cli holds the setup shared by the fieldbus commands: flags on top
// of the YAML configuration, logging, protocol capture, discovery and the
// metrics endpoint.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fieldbus/fieldbus-go/pkg/config"
	"github.com/fieldbus/fieldbus-go/pkg/discovery"
	"github.com/fieldbus/fieldbus-go/pkg/log"
	"github.com/fieldbus/fieldbus-go/pkg/metrics"
)

// Flags are the command-line overrides common to service and client.
type Flags struct {
	ConfigFile  string
	Name        string
	Listen      string
	Period      time.Duration
	Settle      time.Duration
	Discovery   string
	Endpoints   string
	Interface   string
	LogLevel    string
	ProtocolLog string
	LogProtocol bool
	MetricsAddr string

	fs *flag.FlagSet
}

// Register binds the flags to fs. listen controls whether -listen is offered.
func (f *Flags) Register(fs *flag.FlagSet, listen bool) {
	f.fs = fs
	fs.StringVar(&f.ConfigFile, "config", "", "Configuration file path (YAML)")
	fs.StringVar(&f.Name, "name", "", "Application name (also the mDNS instance name)")
	if listen {
		fs.StringVar(&f.Listen, "listen", "", "Listen address (default \":30501\")")
	}
	fs.DurationVar(&f.Period, "period", 0, "Loop period")
	fs.DurationVar(&f.Settle, "settle", 0, "Delay before the first loop iteration (default 1s)")
	fs.StringVar(&f.Discovery, "discovery", "", "Discovery mode: mdns, static")
	fs.StringVar(&f.Endpoints, "endpoints", "", "Comma-separated host:port list for static discovery")
	fs.StringVar(&f.Interface, "interface", "", "Network interface for mDNS")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&f.ProtocolLog, "protocol-log", "", "Write a protocol capture to this file")
	fs.BoolVar(&f.LogProtocol, "log-protocol", false, "Also write protocol events to the log")
	fs.StringVar(&f.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

// Load reads the configuration file on top of base and applies the flags.
func (f *Flags) Load(base config.Config) (config.Config, error) {
	cfg, err := config.Load(f.ConfigFile, base)
	if err != nil {
		return config.Config{}, err
	}
	f.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// set reports whether the named flag was given on the command line.
func (f *Flags) set(name string) bool {
	if f.fs == nil {
		return false
	}
	found := false
	f.fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

// Apply overrides cfg with every flag that was set.
func (f *Flags) Apply(cfg *config.Config) {
	if f.Name != "" {
		cfg.Name = f.Name
	}
	if f.Listen != "" {
		cfg.Listen = f.Listen
	}
	if f.set("period") {
		cfg.Period = f.Period
	}
	if f.set("settle") {
		cfg.Settle = f.Settle
	}
	if f.Endpoints != "" {
		cfg.Discovery.Endpoints = splitList(f.Endpoints)
		if f.Discovery == "" {
			cfg.Discovery.Mode = config.DiscoveryStatic
		}
	}
	if f.Discovery != "" {
		cfg.Discovery.Mode = f.Discovery
	}
	if f.Interface != "" {
		cfg.Discovery.Interface = f.Interface
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.ProtocolLog != "" {
		cfg.Log.ProtocolFile = f.ProtocolLog
	}
	if f.LogProtocol {
		cfg.Log.Protocol = true
	}
	if f.MetricsAddr != "" {
		cfg.Metrics.Addr = f.MetricsAddr
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NewLogger creates the operational text logger writing to w.
func NewLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// ProtocolLogger builds the protocol capture sink from the configuration.
// It returns nil when capture is disabled. The returned close function is
// never nil.
func ProtocolLogger(cfg config.Config, logger *slog.Logger) (log.Logger, func() error, error) {
	var sinks []log.Logger
	closeFn := func() error { return nil }

	if cfg.Log.ProtocolFile != "" {
		fl, err := log.NewFileLogger(cfg.Log.ProtocolFile)
		if err != nil {
			return nil, closeFn, fmt.Errorf("open protocol log: %w", err)
		}
		sinks = append(sinks, fl)
		closeFn = fl.Close
	}
	if cfg.Log.Protocol {
		sinks = append(sinks, log.NewSlogAdapter(logger))
	}

	switch len(sinks) {
	case 0:
		return nil, closeFn, nil
	case 1:
		return sinks[0], closeFn, nil
	default:
		return log.NewMultiLogger(sinks...), closeFn, nil
	}
}

// Browser creates the endpoint browser for the configured discovery mode.
func Browser(cfg config.Config, logger *slog.Logger) (discovery.Browser, error) {
	switch cfg.Discovery.Mode {
	case config.DiscoveryStatic:
		b, err := discovery.NewStaticBrowser(cfg.Discovery.Endpoints...)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.DiscoveryMDNS:
		return discovery.NewMDNSBrowser(discovery.BrowserConfig{
			Interface: cfg.Discovery.Interface,
			Logger:    logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown discovery mode %q", cfg.Discovery.Mode)
	}
}

// Advertiser creates the mDNS advertiser, or nil in static mode.
func Advertiser(cfg config.Config) discovery.Advertiser {
	if cfg.Discovery.Mode != config.DiscoveryMDNS {
		return nil
	}
	return discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{
		Interface: cfg.Discovery.Interface,
	})
}

// ServeMetrics serves m on addr until ctx is done.
func ServeMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

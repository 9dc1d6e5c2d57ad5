package runtime

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/fieldbus/fieldbus-go/pkg/connection"
	"github.com/fieldbus/fieldbus-go/pkg/discovery"
	"github.com/fieldbus/fieldbus-go/pkg/log"
	"github.com/fieldbus/fieldbus-go/pkg/metrics"
	"github.com/fieldbus/fieldbus-go/pkg/transport"
)

// DefaultDispatchQueueSize is the default capacity of the handler queue.
const DefaultDispatchQueueSize = 256

// Config configures an App.
type Config struct {
	// Name identifies the application; it is also the mDNS instance name
	// when advertising.
	Name string

	// ListenAddress enables the service side: client connections are
	// accepted here (e.g. ":30501"). Empty means the app only consumes.
	ListenAddress string

	// Advertiser announces the service side (optional).
	Advertiser discovery.Advertiser

	// Browser finds remote service endpoints (optional). Without one the
	// app never sees remote services.
	Browser discovery.Browser

	// KeepAlive configures pinging of remote endpoints.
	KeepAlive transport.KeepAliveConfig

	// Backoff configures redialing of remote endpoints.
	Backoff connection.BackoffConfig

	// DispatchQueueSize is the capacity of the handler queue.
	DispatchQueueSize int

	// ProtocolLogger receives protocol capture events (optional).
	ProtocolLogger log.Logger

	// Metrics records runtime metrics (optional).
	Metrics *metrics.Metrics

	// Logger for operational logging (default: slog.Default()).
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.DispatchQueueSize <= 0 {
		c.DispatchQueueSize = DefaultDispatchQueueSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.KeepAlive == (transport.KeepAliveConfig{}) {
		c.KeepAlive = transport.DefaultKeepAliveConfig()
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("invalid config: name is required")
	}
	if c.Advertiser != nil && c.ListenAddress == "" {
		return fmt.Errorf("invalid config: advertiser requires a listen address")
	}
	if c.Advertiser != nil {
		if err := discovery.ValidateInstanceName(c.Name); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	return nil
}

// Package config loads the YAML configuration shared by the fieldbus
// commands. Command-line flags override file values.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/fieldbus/fieldbus-go/pkg/connection"
	"github.com/fieldbus/fieldbus-go/pkg/transport"
)

// Discovery modes.
const (
	DiscoveryMDNS   = "mdns"
	DiscoveryStatic = "static"
)

// Config is the file format of a fieldbus command.
//
//	name: fieldbus-service
//	listen: ":30501"
//	period: 50ms
//	settle: 1s
//	discovery:
//	  mode: static
//	  endpoints: ["127.0.0.1:30501"]
//	log:
//	  level: debug
type Config struct {
	// Name is the application and mDNS instance name.
	Name string `yaml:"name"`

	// Listen is the service listen address. Ignored by the client.
	Listen string `yaml:"listen"`

	// Period of the publish or toggle loop.
	Period time.Duration `yaml:"period"`

	// Settle is the delay before the first loop iteration.
	Settle time.Duration `yaml:"settle"`

	Discovery DiscoveryConfig `yaml:"discovery"`
	KeepAlive KeepAliveConfig `yaml:"keepalive"`
	Backoff   BackoffConfig   `yaml:"backoff"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// DiscoveryConfig selects how endpoints are found.
type DiscoveryConfig struct {
	// Mode is "mdns" or "static".
	Mode string `yaml:"mode"`

	// Interface restricts mDNS to one network interface.
	Interface string `yaml:"interface"`

	// Endpoints are the "host:port" addresses used in static mode.
	Endpoints []string `yaml:"endpoints"`
}

// KeepAliveConfig configures link keep-alive.
type KeepAliveConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxMissed int           `yaml:"max_missed"`
}

// BackoffConfig configures redialing.
type BackoffConfig struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// ProtocolFile receives the CBOR protocol capture when set.
	ProtocolFile string `yaml:"protocol_file"`

	// Protocol also writes protocol events to the operational log.
	Protocol bool `yaml:"protocol"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address of /metrics; empty disables it.
	Addr string `yaml:"addr"`
}

// LoadError describes a configuration file that could not be loaded.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Default returns the built-in configuration for an application name.
func Default(name string) Config {
	ka := transport.DefaultKeepAliveConfig()
	bo := connection.DefaultBackoffConfig()
	return Config{
		Name:   name,
		Listen: fmt.Sprintf(":%d", transport.DefaultPort),
		Settle: time.Second,
		Discovery: DiscoveryConfig{
			Mode: DiscoveryMDNS,
		},
		KeepAlive: KeepAliveConfig{
			Interval:  ka.PingInterval,
			Timeout:   ka.PongTimeout,
			MaxMissed: ka.MaxMissedPongs,
		},
		Backoff: BackoffConfig{
			Initial: bo.Initial,
			Max:     bo.Max,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Parse decodes YAML on top of base and validates the result.
func Parse(data []byte, base Config) (Config, error) {
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, &LoadError{Message: "invalid configuration", Cause: err}
	}
	return cfg, nil
}

// Load reads path on top of base. An empty path returns base unchanged.
func Load(path string, base Config) (Config, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	cfg, err := Parse(data, base)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
		}
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem found in the configuration.
func (c *Config) Validate() error {
	var result *multierror.Error
	if strings.TrimSpace(c.Name) == "" {
		result = multierror.Append(result, errors.New("name is required"))
	}
	if c.Period < 0 {
		result = multierror.Append(result, fmt.Errorf("period must not be negative: %s", c.Period))
	}
	if c.Settle < 0 {
		result = multierror.Append(result, fmt.Errorf("settle must not be negative: %s", c.Settle))
	}
	switch c.Discovery.Mode {
	case DiscoveryMDNS:
	case DiscoveryStatic:
		for _, ep := range c.Discovery.Endpoints {
			if !strings.Contains(ep, ":") {
				result = multierror.Append(result, fmt.Errorf("endpoint %q is not host:port", ep))
			}
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown discovery mode %q", c.Discovery.Mode))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		result = multierror.Append(result, err)
	}
	if c.KeepAlive.Interval < 0 || c.KeepAlive.Timeout < 0 || c.KeepAlive.MaxMissed < 0 {
		result = multierror.Append(result, errors.New("keepalive values must not be negative"))
	}
	return result.ErrorOrNil()
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// KeepAliveSettings converts to the transport form.
func (c *Config) KeepAliveSettings() transport.KeepAliveConfig {
	return transport.KeepAliveConfig{
		PingInterval:   c.KeepAlive.Interval,
		PongTimeout:    c.KeepAlive.Timeout,
		MaxMissedPongs: c.KeepAlive.MaxMissed,
	}
}

// BackoffSettings converts to the connection form, with default jitter.
func (c *Config) BackoffSettings() connection.BackoffConfig {
	return connection.BackoffConfig{
		Initial:    c.Backoff.Initial,
		Max:        c.Backoff.Max,
		Multiplier: connection.BackoffMultiplier,
		Jitter:     connection.JitterFactor,
	}
}

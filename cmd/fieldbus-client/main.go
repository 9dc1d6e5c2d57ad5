// Command fieldbus-client watches the sample services and toggles its
// subscription to their eventgroup, logging availability changes and every
// notification it receives.
//
// Usage:
//
//	fieldbus-client [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-period duration      Toggle period (default 500ms)
//	-settle duration      Delay before the first toggle (default 1s)
//	-discovery string     Discovery mode: mdns, static (default "mdns")
//	-endpoints string     Comma-separated host:port list (implies static)
//	-interactive          Toggle from a command prompt instead of a timer
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write a protocol capture to this file
//	-metrics-addr string  Serve Prometheus metrics on this address
//
// Examples:
//
//	# Find the service via mDNS
//	fieldbus-client
//
//	# Connect directly and toggle by hand
//	fieldbus-client -endpoints 127.0.0.1:30501 -interactive
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/fieldbus/fieldbus-go/cmd/fieldbus-client/interactive"
	"github.com/fieldbus/fieldbus-go/internal/cli"
	"github.com/fieldbus/fieldbus-go/pkg/config"
	"github.com/fieldbus/fieldbus-go/pkg/metrics"
	"github.com/fieldbus/fieldbus-go/pkg/runtime"
	"github.com/fieldbus/fieldbus-go/pkg/subscriber"
)

func main() {
	var flags cli.Flags
	flags.Register(flag.CommandLine, false)
	interactiveMode := flag.Bool("interactive", false, "Toggle from a command prompt instead of a timer")
	flag.Parse()

	if err := run(&flags, *interactiveMode); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(flags *cli.Flags, interactiveMode bool) error {
	base := config.Default("fieldbus-client")
	base.Period = subscriber.DefaultPeriod
	base.Settle = subscriber.DefaultSettleDelay

	cfg, err := flags.Load(base)
	if err != nil {
		return err
	}
	if interactiveMode {
		cfg.Period = 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var logOut io.Writer = os.Stderr
	var shell *interactive.Shell
	clientCfg := subscriber.DefaultConfig()

	// Logging goes through readline in interactive mode.
	if interactiveMode {
		shell, err = interactive.New()
		if err != nil {
			return err
		}
		defer shell.Close()
		logOut = shell.Stdout()
	}

	logger, err := cli.NewLogger(cfg, logOut)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	protocolLogger, closeProtocol, err := cli.ProtocolLogger(cfg, logger)
	if err != nil {
		return err
	}
	defer closeProtocol()

	browser, err := cli.Browser(cfg, logger)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Addr != "" {
		m = metrics.New(cfg.Name)
	}

	app := runtime.NewApp(runtime.Config{
		Name:           cfg.Name,
		Browser:        browser,
		KeepAlive:      cfg.KeepAliveSettings(),
		Backoff:        cfg.BackoffSettings(),
		ProtocolLogger: protocolLogger,
		Metrics:        m,
		Logger:         logger,
	})

	clientCfg.Period = cfg.Period
	clientCfg.SettleDelay = cfg.Settle
	clientCfg.Logger = logger
	client := subscriber.NewClient(app, clientCfg)

	if err := client.Init(); err != nil {
		return err
	}
	if err := client.Start(); err != nil {
		return err
	}
	logger.Info("client started", "name", cfg.Name, "discovery", cfg.Discovery.Mode, "period", cfg.Period)

	g, gctx := errgroup.WithContext(ctx)
	if m != nil {
		g.Go(func() error {
			return cli.ServeMetrics(gctx, cfg.Metrics.Addr, m, logger)
		})
	}
	if shell != nil {
		shell.Attach(client.Toggler(), app)
		go shell.Run(gctx, cancel)
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return client.Stop()
	})

	return g.Wait()
}

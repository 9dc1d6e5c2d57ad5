// Command fieldbus-service offers the sample services and publishes a
// counter notification to every subscriber.
//
// Usage:
//
//	fieldbus-service [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-listen string        Listen address (default ":30501")
//	-period duration      Publish period (default 50ms)
//	-settle duration      Delay before the first notification (default 1s)
//	-discovery string     Discovery mode: mdns, static (default "mdns")
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write a protocol capture to this file
//	-metrics-addr string  Serve Prometheus metrics on this address
//
// Examples:
//
//	# Publish with mDNS advertising
//	fieldbus-service
//
//	# Publish on a fixed port without mDNS, capturing the protocol
//	fieldbus-service -listen 127.0.0.1:30501 -discovery static -protocol-log service.flog
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/fieldbus/fieldbus-go/internal/cli"
	"github.com/fieldbus/fieldbus-go/pkg/config"
	"github.com/fieldbus/fieldbus-go/pkg/metrics"
	"github.com/fieldbus/fieldbus-go/pkg/publisher"
	"github.com/fieldbus/fieldbus-go/pkg/runtime"
)

func main() {
	var flags cli.Flags
	flags.Register(flag.CommandLine, true)
	flag.Parse()

	if err := run(&flags); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(flags *cli.Flags) error {
	base := config.Default("fieldbus-service")
	base.Period = publisher.DefaultPeriod
	base.Settle = publisher.DefaultSettleDelay

	cfg, err := flags.Load(base)
	if err != nil {
		return err
	}

	logger, err := cli.NewLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	protocolLogger, closeProtocol, err := cli.ProtocolLogger(cfg, logger)
	if err != nil {
		return err
	}
	defer closeProtocol()

	var m *metrics.Metrics
	if cfg.Metrics.Addr != "" {
		m = metrics.New(cfg.Name)
	}

	app := runtime.NewApp(runtime.Config{
		Name:           cfg.Name,
		ListenAddress:  cfg.Listen,
		Advertiser:     cli.Advertiser(cfg),
		KeepAlive:      cfg.KeepAliveSettings(),
		Backoff:        cfg.BackoffSettings(),
		ProtocolLogger: protocolLogger,
		Metrics:        m,
		Logger:         logger,
	})

	pubCfg := publisher.DefaultConfig()
	pubCfg.Period = cfg.Period
	pubCfg.SettleDelay = cfg.Settle
	pubCfg.Logger = logger
	svc := publisher.NewService(app, pubCfg)

	if err := svc.Init(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(); err != nil {
		return err
	}
	logger.Info("service started", "name", cfg.Name, "listen", app.ListenAddr().String(), "discovery", cfg.Discovery.Mode)

	g, gctx := errgroup.WithContext(ctx)
	if m != nil {
		g.Go(func() error {
			return cli.ServeMetrics(gctx, cfg.Metrics.Addr, m, logger)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return svc.Stop()
	})

	return g.Wait()
}

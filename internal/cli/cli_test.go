package cli

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbus/fieldbus-go/pkg/config"
	"github.com/fieldbus/fieldbus-go/pkg/discovery"
	"github.com/fieldbus/fieldbus-go/pkg/log"
	"github.com/fieldbus/fieldbus-go/pkg/metrics"
)

func parse(t *testing.T, listen bool, args ...string) *Flags {
	t.Helper()
	var f Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f.Register(fs, listen)
	require.NoError(t, fs.Parse(args))
	return &f
}

func TestFlagsOverrideOnlyWhatIsSet(t *testing.T) {
	base := config.Default("fieldbus-client")
	base.Period = 500 * time.Millisecond

	cfg, err := parse(t, false).Load(base)
	require.NoError(t, err)
	assert.Equal(t, base, cfg)

	cfg, err = parse(t, false, "-settle", "0", "-period", "100ms", "-log-level", "debug").Load(base)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.Settle)
	assert.Equal(t, 100*time.Millisecond, cfg.Period)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestEndpointsImplyStaticDiscovery(t *testing.T) {
	cfg, err := parse(t, false, "-endpoints", "127.0.0.1:30501, 10.0.0.2:30501").Load(config.Default("client"))
	require.NoError(t, err)
	assert.Equal(t, config.DiscoveryStatic, cfg.Discovery.Mode)
	assert.Equal(t, []string{"127.0.0.1:30501", "10.0.0.2:30501"}, cfg.Discovery.Endpoints)
}

func TestFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: 127.0.0.1:40000\nperiod: 20ms\n"), 0o600))

	cfg, err := parse(t, true, "-config", path, "-listen", "127.0.0.1:40001").Load(config.Default("service"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:40001", cfg.Listen)
	assert.Equal(t, 20*time.Millisecond, cfg.Period)
}

func TestLoadRejectsInvalidFlags(t *testing.T) {
	_, err := parse(t, false, "-discovery", "carrier-pigeon").Load(config.Default("client"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default("svc")
	cfg.Log.Level = "warn"

	var buf bytes.Buffer
	logger, err := NewLogger(cfg, &buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestProtocolLogger(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default("svc")

	pl, closeFn, err := ProtocolLogger(cfg, quiet)
	require.NoError(t, err)
	assert.Nil(t, pl)
	assert.NoError(t, closeFn())

	cfg.Log.ProtocolFile = filepath.Join(t.TempDir(), "capture.flog")
	cfg.Log.Protocol = true
	pl, closeFn, err = ProtocolLogger(cfg, quiet)
	require.NoError(t, err)
	assert.IsType(t, &log.MultiLogger{}, pl)

	pl.Log(log.Event{Timestamp: time.Now(), Service: "1234.5678"})
	require.NoError(t, closeFn())

	reader, err := log.NewReader(cfg.Log.ProtocolFile)
	require.NoError(t, err)
	defer reader.Close()
	event, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "1234.5678", event.Service)
}

func TestBrowserSelection(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default("client")

	b, err := Browser(cfg, quiet)
	require.NoError(t, err)
	assert.IsType(t, &discovery.MDNSBrowser{}, b)
	assert.NotNil(t, Advertiser(cfg))

	cfg.Discovery.Mode = config.DiscoveryStatic
	cfg.Discovery.Endpoints = []string{"127.0.0.1:30501"}
	b, err = Browser(cfg, quiet)
	require.NoError(t, err)
	assert.IsType(t, &discovery.StaticBrowser{}, b)
	assert.Nil(t, Advertiser(cfg))

	cfg.Discovery.Endpoints = []string{"127.0.0.1:http-alt"}
	_, err = Browser(cfg, quiet)
	assert.Error(t, err)
}

func TestServeMetrics(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	m := metrics.New("test")
	m.NotificationDropped()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ServeMetrics(ctx, addr, m, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && bytes.Contains(body, []byte("notifications_dropped"))
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

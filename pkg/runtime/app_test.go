package runtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbus/fieldbus-go/pkg/connection"
	"github.com/fieldbus/fieldbus-go/pkg/discovery"
	"github.com/fieldbus/fieldbus-go/pkg/log"
	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

var (
	testPrimary   = wire.ServiceKey{Service: 0x1234, Instance: 0x5678}
	testSecondary = wire.ServiceKey{Service: 0x1235, Instance: 0x5678}
)

const (
	testEventgroup wire.EventgroupID = 0x4465
	testEvent      wire.EventID      = 0x8778
)

// captureLogger records protocol events.
type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *captureLogger) Log(e log.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureLogger) find(match func(log.Event) bool) []log.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []log.Event
	for _, e := range c.events {
		if match(e) {
			out = append(out, e)
		}
	}
	return out
}

func TestAppLifecycle(t *testing.T) {
	app := NewApp(Config{Name: "lifecycle", Logger: discardLogger()})

	assert.ErrorIs(t, app.Start(), ErrNotInitialized)
	require.NoError(t, app.Init())
	assert.ErrorIs(t, app.Init(), ErrAlreadyInitialized)

	require.NoError(t, app.Start())
	assert.ErrorIs(t, app.Start(), ErrAlreadyStarted)

	require.NoError(t, app.Stop())
	require.NoError(t, app.Stop())
	assert.ErrorIs(t, app.Start(), ErrStopped)
}

func TestAppStopWithoutStart(t *testing.T) {
	app := NewApp(Config{Name: "idle", Logger: discardLogger()})
	require.NoError(t, app.Init())
	require.NoError(t, app.Stop())
	assert.ErrorIs(t, app.Start(), ErrStopped)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"minimal", Config{Name: "client"}, false},
		{"missing name", Config{}, true},
		{"advertiser without listen", Config{Name: "svc", Advertiser: discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{})}, true},
		{"advertiser with listen", Config{Name: "svc", ListenAddress: ":0", Advertiser: discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{})}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNotifyUnofferedServiceIsLogged(t *testing.T) {
	capture := &captureLogger{}
	app := NewApp(Config{Name: "svc", Logger: discardLogger(), ProtocolLogger: capture})
	require.NoError(t, app.Init())

	app.Notify(testPrimary.Service, testPrimary.Instance, testEvent, NewPayload([]byte{1}))

	errs := capture.find(func(e log.Event) bool { return e.Error != nil })
	require.Len(t, errs, 1)
	assert.Equal(t, "notify", errs[0].Error.Context)
	assert.Equal(t, testPrimary.String(), errs[0].Service)
}

func TestPayloadIsCopied(t *testing.T) {
	data := []byte{1, 2, 3}
	p := NewPayload(data)
	data[0] = 9

	assert.Equal(t, []byte{1, 2, 3}, p.Data())
	assert.Equal(t, 3, p.Len())

	var nilPayload *Payload
	assert.Nil(t, nilPayload.Data())
	assert.Equal(t, 0, nilPayload.Len())
}

func TestOfferedServicesSorted(t *testing.T) {
	app := NewApp(Config{Name: "svc", Logger: discardLogger()})
	app.OfferService(testSecondary.Service, testSecondary.Instance, 1, 0)
	app.OfferService(testPrimary.Service, testPrimary.Instance, 1, 0)

	entries := app.OfferedServices()
	require.Len(t, entries, 2)
	assert.Equal(t, testPrimary, entries[0].Key())
	assert.Equal(t, testSecondary, entries[1].Key())

	// Version mismatch leaves the offer in place.
	app.StopOfferService(testPrimary.Service, testPrimary.Instance, 2, wire.AnyMinor)
	assert.Len(t, app.OfferedServices(), 2)

	app.StopOfferService(testPrimary.Service, testPrimary.Instance, wire.AnyMajor, wire.AnyMinor)
	assert.Len(t, app.OfferedServices(), 1)
}

// pair is a running service app and a client app connected to it.
type pair struct {
	service *App
	client  *App

	avail chan bool
	msgs  chan byte
}

func newPair(t *testing.T) *pair {
	t.Helper()

	service := NewApp(Config{
		Name:          "service",
		ListenAddress: "127.0.0.1:0",
		Logger:        discardLogger(),
	})
	require.NoError(t, service.Init())
	service.OfferService(testPrimary.Service, testPrimary.Instance, 1, 0)
	service.OfferEvent(testPrimary.Service, testPrimary.Instance, testEvent, []wire.EventgroupID{testEventgroup}, wire.EventTypeField)
	require.NoError(t, service.Start())
	t.Cleanup(func() { _ = service.Stop() })

	browser, err := discovery.NewStaticBrowser(service.ListenAddr().String())
	require.NoError(t, err)

	client := NewApp(Config{
		Name:    "client",
		Browser: browser,
		Backoff: connection.BackoffConfig{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond},
		Logger:  discardLogger(),
	})
	require.NoError(t, client.Init())
	t.Cleanup(func() { _ = client.Stop() })

	p := &pair{
		service: service,
		client:  client,
		avail:   make(chan bool, 16),
		msgs:    make(chan byte, 64),
	}
	client.RegisterAvailabilityHandler(testPrimary.Service, testPrimary.Instance, func(_ wire.ServiceID, _ wire.InstanceID, available bool) {
		p.avail <- available
	})
	client.RegisterMessageHandler(wire.AnyService, wire.AnyInstance, wire.AnyMethod, func(msg *Message) {
		if msg.Payload.Len() > 0 {
			p.msgs <- msg.Payload.Data()[0]
		}
	})
	return p
}

func (p *pair) waitAvailability(t *testing.T, want bool) {
	t.Helper()
	select {
	case got := <-p.avail:
		require.Equal(t, want, got)
	case <-time.After(3 * time.Second):
		t.Fatalf("no availability change to %v", want)
	}
}

func (p *pair) waitMessage(t *testing.T, want byte) {
	t.Helper()
	select {
	case got := <-p.msgs:
		require.Equal(t, want, got)
	case <-time.After(3 * time.Second):
		t.Fatalf("no notification %d", want)
	}
}

func (p *pair) expectNoMessage(t *testing.T) {
	t.Helper()
	select {
	case got := <-p.msgs:
		t.Fatalf("unexpected notification %d", got)
	case <-time.After(150 * time.Millisecond):
	}
}

func (p *pair) subscribe() {
	p.client.RequestService(testPrimary.Service, testPrimary.Instance, wire.AnyMajor, wire.AnyMinor)
	p.client.RequestEvent(testPrimary.Service, testPrimary.Instance, testEvent, []wire.EventgroupID{testEventgroup}, wire.EventTypeField)
	p.client.Subscribe(testPrimary.Service, testPrimary.Instance, testEventgroup, wire.AnyMajor)
}

func (p *pair) waitSubscribers(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return p.service.registry.Count() == n
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSubscribeReceivesPrimingAndNotifications(t *testing.T) {
	p := newPair(t)

	// Cached before anyone subscribes; delivered as the initial field value.
	p.service.Notify(testPrimary.Service, testPrimary.Instance, testEvent, NewPayload([]byte{41}))

	p.subscribe()
	require.NoError(t, p.client.Start())
	p.waitAvailability(t, true)
	p.waitMessage(t, 41)
	p.waitSubscribers(t, 1)

	assert.Equal(t, []wire.ServiceKey{testPrimary}, p.client.AvailableServices())

	p.service.Notify(testPrimary.Service, testPrimary.Instance, testEvent, NewPayload([]byte{42}))
	p.waitMessage(t, 42)

	p.client.Unsubscribe(testPrimary.Service, testPrimary.Instance, testEventgroup)
	p.waitSubscribers(t, 0)

	p.service.Notify(testPrimary.Service, testPrimary.Instance, testEvent, NewPayload([]byte{43}))
	p.expectNoMessage(t)
}

func TestUnrequestedEventIsDropped(t *testing.T) {
	p := newPair(t)

	p.client.RequestService(testPrimary.Service, testPrimary.Instance, wire.AnyMajor, wire.AnyMinor)
	p.client.Subscribe(testPrimary.Service, testPrimary.Instance, testEventgroup, wire.AnyMajor)
	require.NoError(t, p.client.Start())
	p.waitAvailability(t, true)
	p.waitSubscribers(t, 1)

	p.service.Notify(testPrimary.Service, testPrimary.Instance, testEvent, NewPayload([]byte{7}))
	p.expectNoMessage(t)
}

func TestSubscriptionPendingUntilRequested(t *testing.T) {
	p := newPair(t)

	p.client.Subscribe(testPrimary.Service, testPrimary.Instance, testEventgroup, wire.AnyMajor)
	require.NoError(t, p.client.Start())
	p.waitAvailability(t, true)

	// Available but not requested: nothing is sent.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, p.service.registry.Count())

	p.client.RequestService(testPrimary.Service, testPrimary.Instance, wire.AnyMajor, wire.AnyMinor)
	p.waitSubscribers(t, 1)
}

func TestStopOfferAndReoffer(t *testing.T) {
	p := newPair(t)

	p.subscribe()
	require.NoError(t, p.client.Start())
	p.waitAvailability(t, true)
	p.waitSubscribers(t, 1)

	p.service.StopOfferService(testPrimary.Service, testPrimary.Instance, wire.AnyMajor, wire.AnyMinor)
	p.waitAvailability(t, false)
	p.waitSubscribers(t, 0)
	assert.Empty(t, p.client.AvailableServices())

	// The pending subscription is renewed with the new offer.
	p.service.OfferEvent(testPrimary.Service, testPrimary.Instance, testEvent, []wire.EventgroupID{testEventgroup}, wire.EventTypeField)
	p.service.OfferService(testPrimary.Service, testPrimary.Instance, 1, 0)
	p.waitAvailability(t, true)
	p.waitSubscribers(t, 1)
}

func TestServiceShutdownMakesServiceUnavailable(t *testing.T) {
	p := newPair(t)

	p.subscribe()
	require.NoError(t, p.client.Start())
	p.waitAvailability(t, true)

	require.NoError(t, p.service.Stop())
	p.waitAvailability(t, false)
}

func TestSubscribeRejectedForUnknownEventgroup(t *testing.T) {
	capture := &captureLogger{}
	p := newPair(t)
	p.client.cfg.ProtocolLogger = capture

	p.client.RequestService(testPrimary.Service, testPrimary.Instance, wire.AnyMajor, wire.AnyMinor)
	p.client.Subscribe(testPrimary.Service, testPrimary.Instance, testEventgroup, 1)
	p.client.Subscribe(testPrimary.Service, testPrimary.Instance, 0x0001, wire.AnyMajor)
	require.NoError(t, p.client.Start())
	p.waitAvailability(t, true)

	// Eventgroup 0x0001 has no events, so it is rejected.
	require.Eventually(t, func() bool {
		return len(capture.find(func(e log.Event) bool {
			return e.StateChange != nil && e.StateChange.NewState == "REJECTED"
		})) == 1
	}, 3*time.Second, 10*time.Millisecond)
	p.waitSubscribers(t, 1)
}

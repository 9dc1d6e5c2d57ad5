package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

func TestEndpointAddress(t *testing.T) {
	ep := &Endpoint{Host: "gw.local", Port: 30501}
	assert.Equal(t, "gw.local:30501", ep.Address())

	ep.Addresses = []string{"fe80::1", "192.168.1.2"}
	assert.Equal(t, "[fe80::1]:30501", ep.Address())
}

func TestEndpointOffers(t *testing.T) {
	ep := &Endpoint{Services: []wire.ServiceEntry{{Service: 0x1234, Instance: 0x5678}}}

	assert.True(t, ep.Offers(wire.ServiceKey{Service: 0x1234, Instance: 0x5678}))
	assert.True(t, ep.Offers(wire.ServiceKey{Service: 0x1234, Instance: wire.AnyInstance}))
	assert.False(t, ep.Offers(wire.ServiceKey{Service: 0x1235, Instance: 0x5678}))
}

func TestAggregator(t *testing.T) {
	agg := newAggregator()
	svc := []wire.ServiceEntry{{Service: 0x1234, Instance: 0x5678}}

	ev, ok := agg.add(&Endpoint{InstanceName: "gw", Port: 1, Addresses: []string{"10.0.0.1"}, Services: svc})
	require.True(t, ok)
	assert.Equal(t, EndpointAdded, ev.Type)

	_, ok = agg.add(&Endpoint{InstanceName: "gw", Port: 1, Addresses: []string{"10.0.0.1"}, Services: svc})
	assert.False(t, ok, "identical announcement should not emit")

	ev, ok = agg.add(&Endpoint{InstanceName: "gw", Port: 1, Addresses: []string{"fe80::1"}, Services: svc})
	require.True(t, ok)
	assert.Equal(t, EndpointUpdated, ev.Type)
	assert.ElementsMatch(t, []string{"10.0.0.1", "fe80::1"}, ev.Endpoint.Addresses)

	ev, ok = agg.remove("gw", []string{"10.0.0.1"})
	require.True(t, ok)
	assert.Equal(t, EndpointUpdated, ev.Type)

	ev, ok = agg.remove("gw", []string{"fe80::1"})
	require.True(t, ok)
	assert.Equal(t, EndpointRemoved, ev.Type)

	_, ok = agg.remove("gw", nil)
	assert.False(t, ok)
}

func TestStaticBrowser(t *testing.T) {
	b, err := NewStaticBrowser("127.0.0.1:30501", "[::1]:30502")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := b.Browse(ctx)
	require.NoError(t, err)

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			assert.Equal(t, EndpointAdded, ev.Type)
			got = append(got, ev.Endpoint.Address())
		case <-time.After(time.Second):
			t.Fatal("no endpoint event")
		}
	}
	assert.Equal(t, []string{"127.0.0.1:30501", "[::1]:30502"}, got)

	b.Stop()
	select {
	case _, ok := <-events:
		assert.False(t, ok, "channel should close after Stop")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after Stop")
	}
}

func TestStaticBrowserInvalid(t *testing.T) {
	_, err := NewStaticBrowser("no-port")
	assert.Error(t, err)
	_, err = NewStaticBrowser("host:99999")
	assert.Error(t, err)
}

func TestMDNSAdvertiserNotAdvertising(t *testing.T) {
	adv := NewMDNSAdvertiser(AdvertiserConfig{})
	err := adv.Update(&EndpointInfo{InstanceName: "x"})
	assert.True(t, errors.Is(err, ErrNotAdvertising))
	assert.NoError(t, adv.Stop())
}

func TestMDNSAdvertiserRejectsBadName(t *testing.T) {
	adv := NewMDNSAdvertiser(AdvertiserConfig{})
	assert.Error(t, adv.Advertise(context.Background(), &EndpointInfo{}))
}

package subscription

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

var (
	primary   = wire.ServiceKey{Service: 0x1234, Instance: 0x5678}
	secondary = wire.ServiceKey{Service: 0x1235, Instance: 0x5678}
)

const (
	testGroup wire.EventgroupID = 0x4465
	testEvent wire.EventID      = 0x8778
)

func newTestRegistry() *Registry {
	r := NewRegistry(Config{})
	r.OfferEvent(primary, testEvent, []wire.EventgroupID{testGroup}, wire.EventTypeField)
	r.OfferEvent(secondary, testEvent, []wire.EventgroupID{testGroup}, wire.EventTypeField)
	return r
}

func TestSubscribeUnknownEventgroup(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Subscribe(NewKey(primary, 0x1111), "c1")
	assert.True(t, errors.Is(err, ErrUnknownEventgroup))
	assert.Equal(t, 0, r.Count())
}

func TestPublishRoutesToSubscribers(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Subscribe(NewKey(primary, testGroup), "c1")
	require.NoError(t, err)
	_, err = r.Subscribe(NewKey(primary, testGroup), "c2")
	require.NoError(t, err)
	_, err = r.Subscribe(NewKey(secondary, testGroup), "c3")
	require.NoError(t, err)

	conns, err := r.Publish(primary, testEvent, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, conns)

	conns, err = r.Publish(secondary, testEvent, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c3"}, conns)
}

func TestPublishUnknownEvent(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Publish(primary, 0x0001, []byte{1})
	assert.True(t, errors.Is(err, ErrUnknownEvent))
}

func TestEventInSeveralGroupsNotifiesOnce(t *testing.T) {
	r := NewRegistry(Config{})
	r.OfferEvent(primary, testEvent, []wire.EventgroupID{1, 2}, wire.EventTypeEvent)

	_, err := r.Subscribe(NewKey(primary, 1), "c1")
	require.NoError(t, err)
	_, err = r.Subscribe(NewKey(primary, 2), "c1")
	require.NoError(t, err)

	conns, err := r.Publish(primary, testEvent, []byte{9})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, conns)
}

func TestFieldPriming(t *testing.T) {
	r := newTestRegistry()

	priming, err := r.Subscribe(NewKey(primary, testGroup), "early")
	require.NoError(t, err)
	assert.Empty(t, priming, "no value published yet")

	_, err = r.Publish(primary, testEvent, []byte{41})
	require.NoError(t, err)
	_, err = r.Publish(primary, testEvent, []byte{42})
	require.NoError(t, err)

	priming, err = r.Subscribe(NewKey(primary, testGroup), "late")
	require.NoError(t, err)
	require.Len(t, priming, 1)
	assert.Equal(t, testEvent, priming[0].Event)
	assert.Equal(t, []byte{42}, priming[0].Payload)
}

func TestPlainEventsAreNotPrimed(t *testing.T) {
	r := NewRegistry(Config{})
	r.OfferEvent(primary, testEvent, []wire.EventgroupID{testGroup}, wire.EventTypeEvent)
	_, err := r.Publish(primary, testEvent, []byte{1})
	require.NoError(t, err)

	priming, err := r.Subscribe(NewKey(primary, testGroup), "c1")
	require.NoError(t, err)
	assert.Empty(t, priming)
}

func TestUnsubscribe(t *testing.T) {
	r := newTestRegistry()
	key := NewKey(primary, testGroup)
	_, err := r.Subscribe(key, "c1")
	require.NoError(t, err)

	assert.True(t, r.Unsubscribe(key, "c1"))
	assert.False(t, r.Unsubscribe(key, "c1"))
	assert.Empty(t, r.Subscribers(key))

	conns, err := r.Publish(primary, testEvent, []byte{1})
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestResubscribeIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	key := NewKey(primary, testGroup)
	for i := 0; i < 3; i++ {
		_, err := r.Subscribe(key, "c1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, r.Count())
}

func TestMaxSubscribers(t *testing.T) {
	r := NewRegistry(Config{MaxSubscribers: 1})
	r.OfferEvent(primary, testEvent, []wire.EventgroupID{testGroup}, wire.EventTypeField)
	key := NewKey(primary, testGroup)

	_, err := r.Subscribe(key, "c1")
	require.NoError(t, err)
	_, err = r.Subscribe(key, "c2")
	assert.True(t, errors.Is(err, ErrTooManySubscribers))
	_, err = r.Subscribe(key, "c1")
	assert.NoError(t, err, "existing subscriber may resubscribe")
}

func TestRemoveConnection(t *testing.T) {
	r := newTestRegistry()
	_, _ = r.Subscribe(NewKey(primary, testGroup), "c1")
	_, _ = r.Subscribe(NewKey(secondary, testGroup), "c1")
	_, _ = r.Subscribe(NewKey(primary, testGroup), "c2")

	keys := r.RemoveConnection("c1")
	assert.ElementsMatch(t, []Key{NewKey(primary, testGroup), NewKey(secondary, testGroup)}, keys)
	assert.Equal(t, 1, r.Count())
}

func TestStopOfferService(t *testing.T) {
	r := newTestRegistry()
	_, _ = r.Subscribe(NewKey(primary, testGroup), "c1")
	_, _ = r.Subscribe(NewKey(secondary, testGroup), "c1")

	dropped := r.StopOfferService(primary)
	assert.Equal(t, map[Key][]string{NewKey(primary, testGroup): {"c1"}}, dropped)

	_, err := r.Publish(primary, testEvent, []byte{1})
	assert.True(t, errors.Is(err, ErrUnknownEvent))
	assert.Equal(t, 1, r.Count())
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "1234.5678/4465", NewKey(primary, testGroup).String())
}

package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandlerTableMessageMatching(t *testing.T) {
	var table handlerTable
	var got []string

	table.addMessage(messageFilter{key: wire.ServiceKey{Service: wire.AnyService, Instance: wire.AnyInstance}, method: wire.AnyMethod},
		func(*Message) { got = append(got, "any") })
	table.addMessage(messageFilter{key: wire.ServiceKey{Service: 0x1234, Instance: 0x5678}, method: 0x8778},
		func(*Message) { got = append(got, "exact") })

	tests := []struct {
		name   string
		key    wire.ServiceKey
		method wire.MethodID
		want   []string
	}{
		{"exact match", wire.ServiceKey{Service: 0x1234, Instance: 0x5678}, 0x8778, []string{"any", "exact"}},
		{"other method", wire.ServiceKey{Service: 0x1234, Instance: 0x5678}, 0x0001, []string{"any"}},
		{"other service", wire.ServiceKey{Service: 0x1235, Instance: 0x5678}, 0x8778, []string{"any"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			for _, h := range table.messageHandlers(tt.key, tt.method) {
				h(nil)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandlerTableReplaceAndRemove(t *testing.T) {
	var table handlerTable
	f := messageFilter{key: wire.ServiceKey{Service: wire.AnyService, Instance: wire.AnyInstance}, method: wire.AnyMethod}
	key := wire.ServiceKey{Service: 0x1234, Instance: 0x5678}

	calls := 0
	table.addMessage(f, func(*Message) { calls += 1 })
	table.addMessage(f, func(*Message) { calls += 10 })

	handlers := table.messageHandlers(key, 0x8778)
	require.Len(t, handlers, 1)
	handlers[0](nil)
	assert.Equal(t, 10, calls)

	table.removeMessage(f)
	assert.Empty(t, table.messageHandlers(key, 0x8778))
}

func TestHandlerTableAvailability(t *testing.T) {
	var table handlerTable
	primary := wire.ServiceKey{Service: 0x1234, Instance: 0x5678}
	secondary := wire.ServiceKey{Service: 0x1235, Instance: 0x5678}

	table.addAvailability(primary, func(wire.ServiceID, wire.InstanceID, bool) {})
	table.addAvailability(wire.ServiceKey{Service: wire.AnyService, Instance: 0x5678}, func(wire.ServiceID, wire.InstanceID, bool) {})

	assert.Len(t, table.availabilityHandlers(primary), 2)
	assert.Len(t, table.availabilityHandlers(secondary), 1)

	table.removeAvailability(primary)
	assert.Len(t, table.availabilityHandlers(primary), 1)
}

func TestDispatcherOrderAndPanicRecovery(t *testing.T) {
	d := newDispatcher(8, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = d.run(ctx)
	}()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})
	for i := range 5 {
		if i == 2 {
			d.submit(ctx, func() { panic("boom") })
		}
		d.submit(ctx, func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	d.submit(ctx, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not drain")
	}
	cancel()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestDispatcherSubmitAfterCancel(t *testing.T) {
	d := newDispatcher(1, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Queue is full and nobody runs it; submit must not block.
	d.submit(context.Background(), func() {})
	finished := make(chan struct{})
	go func() {
		d.submit(ctx, func() {})
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("submit blocked after cancel")
	}
}

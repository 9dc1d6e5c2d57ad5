package runtime

import (
	"sync"

	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

type messageFilter struct {
	key    wire.ServiceKey
	method wire.MethodID
}

func (f messageFilter) matches(key wire.ServiceKey, method wire.MethodID) bool {
	return key.Matches(f.key) && (f.method == wire.AnyMethod || f.method == method)
}

type messageReg struct {
	filter  messageFilter
	handler MessageHandler
}

type availabilityReg struct {
	filter  wire.ServiceKey
	handler AvailabilityHandler
}

// handlerTable holds registered handlers in registration order.
type handlerTable struct {
	mu           sync.RWMutex
	messages     []messageReg
	availability []availabilityReg
}

func (t *handlerTable) addMessage(f messageFilter, h MessageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.messages {
		if t.messages[i].filter == f {
			t.messages[i].handler = h
			return
		}
	}
	t.messages = append(t.messages, messageReg{filter: f, handler: h})
}

func (t *handlerTable) removeMessage(f messageFilter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.messages {
		if t.messages[i].filter == f {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			return
		}
	}
}

func (t *handlerTable) messageHandlers(key wire.ServiceKey, method wire.MethodID) []MessageHandler {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []MessageHandler
	for _, r := range t.messages {
		if r.filter.matches(key, method) {
			out = append(out, r.handler)
		}
	}
	return out
}

func (t *handlerTable) addAvailability(f wire.ServiceKey, h AvailabilityHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.availability {
		if t.availability[i].filter == f {
			t.availability[i].handler = h
			return
		}
	}
	t.availability = append(t.availability, availabilityReg{filter: f, handler: h})
}

func (t *handlerTable) removeAvailability(f wire.ServiceKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.availability {
		if t.availability[i].filter == f {
			t.availability = append(t.availability[:i], t.availability[i+1:]...)
			return
		}
	}
}

func (t *handlerTable) availabilityHandlers(key wire.ServiceKey) []AvailabilityHandler {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []AvailabilityHandler
	for _, r := range t.availability {
		if key.Matches(r.filter) {
			out = append(out, r.handler)
		}
	}
	return out
}

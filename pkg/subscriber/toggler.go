// Package subscriber implements the client side of the fieldbus sample: a
// toggler that alternately subscribes to and unsubscribes from two
// services, and an observer that logs what arrives.
package subscriber

import (
	"sync"

	"github.com/fieldbus/fieldbus-go/pkg/runtime"
	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

// State is the subscription state shared by all toggled services.
type State uint8

const (
	Unsubscribed State = iota
	Subscribed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Unsubscribed:
		return "UNSUBSCRIBED"
	case Subscribed:
		return "SUBSCRIBED"
	default:
		return "UNKNOWN"
	}
}

// Toggler drives the subscription of several services in lockstep. It
// starts out Subscribed, so the first Toggle unsubscribes. A Client without
// a toggle period starts it Unsubscribed instead.
type Toggler struct {
	app        runtime.Application
	services   []wire.ServiceKey
	eventgroup wire.EventgroupID
	event      wire.EventID

	mu    sync.Mutex
	state State
}

// NewToggler creates a toggler for the given services, in order.
func NewToggler(app runtime.Application, eventgroup wire.EventgroupID, event wire.EventID, services ...wire.ServiceKey) *Toggler {
	return &Toggler{
		app:        app,
		services:   services,
		eventgroup: eventgroup,
		event:      event,
		state:      Subscribed,
	}
}

// State returns the current state.
func (t *Toggler) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Toggle runs the opposite sequence of the current state for every service
// and then flips the state. It returns the new state.
func (t *Toggler) Toggle() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Subscribed {
		t.apply(Unsubscribed)
	} else {
		t.apply(Subscribed)
	}
	return t.state
}

// Set moves to target unless already there and reports whether a sequence
// ran.
func (t *Toggler) Set(target State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == target {
		return false
	}
	t.apply(target)
	return true
}

func (t *Toggler) apply(target State) {
	for _, s := range t.services {
		if target == Subscribed {
			t.subscribe(s)
		} else {
			t.unsubscribe(s)
		}
	}
	t.state = target
}

func (t *Toggler) subscribe(s wire.ServiceKey) {
	t.app.RequestService(s.Service, s.Instance, wire.AnyMajor, wire.AnyMinor)
	t.app.RequestEvent(s.Service, s.Instance, t.event, []wire.EventgroupID{t.eventgroup}, wire.EventTypeField)
	t.app.Subscribe(s.Service, s.Instance, t.eventgroup, wire.AnyMajor)
}

func (t *Toggler) unsubscribe(s wire.ServiceKey) {
	t.app.Unsubscribe(s.Service, s.Instance, t.eventgroup)
	t.app.ReleaseEvent(s.Service, s.Instance, t.event)
	t.app.ReleaseService(s.Service, s.Instance)
}

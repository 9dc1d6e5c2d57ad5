package runtimetest

import (
	"slices"
	"sync"
	"time"

	"github.com/fieldbus/fieldbus-go/pkg/runtime"
	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

// Call is one recorded Application call. Fields that do not apply to the
// method are zero.
type Call struct {
	Method     string
	Service    wire.ServiceID
	Instance   wire.InstanceID
	Event      wire.EventID
	Eventgroup wire.EventgroupID
	Payload    []byte
}

// Key returns the service key of the call.
func (c Call) Key() wire.ServiceKey {
	return wire.ServiceKey{Service: c.Service, Instance: c.Instance}
}

type messageReg struct {
	key    wire.ServiceKey
	method wire.MethodID
	h      runtime.MessageHandler
}

type availabilityReg struct {
	key wire.ServiceKey
	h   runtime.AvailabilityHandler
}

// Fake is an in-memory Application. It records middleware calls and lets
// tests drive the registered handlers synchronously.
type Fake struct {
	// InitErr is returned by Init when set.
	InitErr error

	mu           sync.Mutex
	name         string
	calls        []Call
	messages     []messageReg
	availability []availabilityReg
	initCount    int
	startCount   int
	stopCount    int
	stopped      bool
}

// NewFake creates a fake application.
func NewFake(name string) *Fake {
	return &Fake{name: name}
}

// Calls returns the recorded middleware calls, excluding lifecycle and
// handler registration.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallsFor returns the recorded calls that address key.
func (f *Fake) CallsFor(key wire.ServiceKey) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Key() == key {
			out = append(out, c)
		}
	}
	return out
}

// Methods returns the method names of the recorded calls that address key.
func (f *Fake) Methods(key wire.ServiceKey) []string {
	var out []string
	for _, c := range f.CallsFor(key) {
		out = append(out, c.Method)
	}
	return out
}

// Notifications returns the recorded Notify calls.
func (f *Fake) Notifications() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Method == "Notify" {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets the recorded calls.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Lifecycle returns how often Init, Start and Stop were called.
func (f *Fake) Lifecycle() (inits, starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCount, f.startCount, f.stopCount
}

// MessageHandlerCount returns the number of registered message handlers.
func (f *Fake) MessageHandlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

// AvailabilityHandlerCount returns the number of registered availability
// handlers.
func (f *Fake) AvailabilityHandlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.availability)
}

// SetAvailable invokes the availability handlers matching the service.
func (f *Fake) SetAvailable(service wire.ServiceID, instance wire.InstanceID, available bool) {
	key := wire.ServiceKey{Service: service, Instance: instance}
	f.mu.Lock()
	var hs []runtime.AvailabilityHandler
	for _, r := range f.availability {
		if key.Matches(r.key) {
			hs = append(hs, r.h)
		}
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(service, instance, available)
	}
}

// Deliver invokes the message handlers matching a notification.
func (f *Fake) Deliver(service wire.ServiceID, instance wire.InstanceID, method wire.MethodID, payload []byte) {
	msg := &runtime.Message{
		Service:  service,
		Instance: instance,
		Method:   method,
		Payload:  runtime.NewPayload(payload),
		Remote:   "fake",
		Received: time.Now(),
	}
	f.mu.Lock()
	var hs []runtime.MessageHandler
	for _, r := range f.messages {
		if msg.Key().Matches(r.key) && (r.method == wire.AnyMethod || r.method == method) {
			hs = append(hs, r.h)
		}
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(msg)
	}
}

func (f *Fake) record(c Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *Fake) Name() string {
	return f.name
}

func (f *Fake) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCount++
	return f.InitErr
}

// Start fails with runtime.ErrStopped once Stop was called, like App.
func (f *Fake) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCount++
	if f.stopped {
		return runtime.ErrStopped
	}
	return nil
}

func (f *Fake) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCount++
	f.stopped = true
	return nil
}

func (f *Fake) OfferService(service wire.ServiceID, instance wire.InstanceID, _ wire.MajorVersion, _ wire.MinorVersion) {
	f.record(Call{Method: "OfferService", Service: service, Instance: instance})
}

func (f *Fake) StopOfferService(service wire.ServiceID, instance wire.InstanceID, _ wire.MajorVersion, _ wire.MinorVersion) {
	f.record(Call{Method: "StopOfferService", Service: service, Instance: instance})
}

func (f *Fake) OfferEvent(service wire.ServiceID, instance wire.InstanceID, event wire.EventID, eventgroups []wire.EventgroupID, _ wire.EventType) {
	c := Call{Method: "OfferEvent", Service: service, Instance: instance, Event: event}
	if len(eventgroups) > 0 {
		c.Eventgroup = eventgroups[0]
	}
	f.record(c)
}

func (f *Fake) StopOfferEvent(service wire.ServiceID, instance wire.InstanceID, event wire.EventID) {
	f.record(Call{Method: "StopOfferEvent", Service: service, Instance: instance, Event: event})
}

func (f *Fake) Notify(service wire.ServiceID, instance wire.InstanceID, event wire.EventID, payload *runtime.Payload) {
	f.record(Call{Method: "Notify", Service: service, Instance: instance, Event: event, Payload: slices.Clone(payload.Data())})
}

func (f *Fake) RequestService(service wire.ServiceID, instance wire.InstanceID, _ wire.MajorVersion, _ wire.MinorVersion) {
	f.record(Call{Method: "RequestService", Service: service, Instance: instance})
}

func (f *Fake) ReleaseService(service wire.ServiceID, instance wire.InstanceID) {
	f.record(Call{Method: "ReleaseService", Service: service, Instance: instance})
}

func (f *Fake) RequestEvent(service wire.ServiceID, instance wire.InstanceID, event wire.EventID, eventgroups []wire.EventgroupID, _ wire.EventType) {
	c := Call{Method: "RequestEvent", Service: service, Instance: instance, Event: event}
	if len(eventgroups) > 0 {
		c.Eventgroup = eventgroups[0]
	}
	f.record(c)
}

func (f *Fake) ReleaseEvent(service wire.ServiceID, instance wire.InstanceID, event wire.EventID) {
	f.record(Call{Method: "ReleaseEvent", Service: service, Instance: instance, Event: event})
}

func (f *Fake) Subscribe(service wire.ServiceID, instance wire.InstanceID, eventgroup wire.EventgroupID, _ wire.MajorVersion) {
	f.record(Call{Method: "Subscribe", Service: service, Instance: instance, Eventgroup: eventgroup})
}

func (f *Fake) Unsubscribe(service wire.ServiceID, instance wire.InstanceID, eventgroup wire.EventgroupID) {
	f.record(Call{Method: "Unsubscribe", Service: service, Instance: instance, Eventgroup: eventgroup})
}

func (f *Fake) RegisterMessageHandler(service wire.ServiceID, instance wire.InstanceID, method wire.MethodID, h runtime.MessageHandler) {
	key := wire.ServiceKey{Service: service, Instance: instance}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.messages {
		if f.messages[i].key == key && f.messages[i].method == method {
			f.messages[i].h = h
			return
		}
	}
	f.messages = append(f.messages, messageReg{key: key, method: method, h: h})
}

func (f *Fake) UnregisterMessageHandler(service wire.ServiceID, instance wire.InstanceID, method wire.MethodID) {
	key := wire.ServiceKey{Service: service, Instance: instance}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = slices.DeleteFunc(f.messages, func(r messageReg) bool {
		return r.key == key && r.method == method
	})
}

func (f *Fake) RegisterAvailabilityHandler(service wire.ServiceID, instance wire.InstanceID, h runtime.AvailabilityHandler) {
	key := wire.ServiceKey{Service: service, Instance: instance}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.availability {
		if f.availability[i].key == key {
			f.availability[i].h = h
			return
		}
	}
	f.availability = append(f.availability, availabilityReg{key: key, h: h})
}

func (f *Fake) UnregisterAvailabilityHandler(service wire.ServiceID, instance wire.InstanceID) {
	key := wire.ServiceKey{Service: service, Instance: instance}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.availability = slices.DeleteFunc(f.availability, func(r availabilityReg) bool {
		return r.key == key
	})
}

var _ runtime.Application = (*Fake)(nil)

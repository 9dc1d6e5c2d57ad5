package subscription

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

// DefaultMaxSubscribers limits subscribers per eventgroup.
const DefaultMaxSubscribers = 64

// Registry errors.
var (
	ErrUnknownEventgroup  = errors.New("eventgroup has no offered events")
	ErrTooManySubscribers = errors.New("too many subscribers")
	ErrUnknownEvent       = errors.New("event not offered")
)

// Key identifies an eventgroup of a service instance.
type Key struct {
	Service    wire.ServiceID
	Instance   wire.InstanceID
	Eventgroup wire.EventgroupID
}

// NewKey builds a Key from a service key and eventgroup.
func NewKey(svc wire.ServiceKey, eventgroup wire.EventgroupID) Key {
	return Key{Service: svc.Service, Instance: svc.Instance, Eventgroup: eventgroup}
}

// String returns "ssss.iiii/gggg".
func (k Key) String() string {
	return fmt.Sprintf("%04x.%04x/%04x", uint16(k.Service), uint16(k.Instance), uint16(k.Eventgroup))
}

// ServiceKey returns the service part of the key.
func (k Key) ServiceKey() wire.ServiceKey {
	return wire.ServiceKey{Service: k.Service, Instance: k.Instance}
}

type eventKey struct {
	service wire.ServiceKey
	event   wire.EventID
}

type offeredEvent struct {
	groups []wire.EventgroupID
	typ    wire.EventType
	value  []byte
	set    bool
}

// Priming is a cached field value owed to a new subscriber.
type Priming struct {
	Event   wire.EventID
	Payload []byte
}

// Config configures a Registry.
type Config struct {
	// MaxSubscribers per eventgroup (default: DefaultMaxSubscribers).
	MaxSubscribers int
}

// Registry maps eventgroups to subscriber connections. It is safe for
// concurrent use.
type Registry struct {
	config Config

	mu     sync.RWMutex
	events map[eventKey]*offeredEvent
	subs   map[Key]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(config Config) *Registry {
	if config.MaxSubscribers <= 0 {
		config.MaxSubscribers = DefaultMaxSubscribers
	}
	return &Registry{
		config: config,
		events: make(map[eventKey]*offeredEvent),
		subs:   make(map[Key]map[string]struct{}),
	}
}

// OfferEvent registers event as a member of groups. Offering an event again
// replaces its groups and type and clears a cached field value.
func (r *Registry) OfferEvent(svc wire.ServiceKey, event wire.EventID, groups []wire.EventgroupID, typ wire.EventType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[eventKey{svc, event}] = &offeredEvent{
		groups: slices.Clone(groups),
		typ:    typ,
	}
}

// StopOfferEvent removes an event.
func (r *Registry) StopOfferEvent(svc wire.ServiceKey, event wire.EventID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, eventKey{svc, event})
}

// StopOfferService removes every event and subscription of a service
// instance and returns the subscriptions that were dropped.
func (r *Registry) StopOfferService(svc wire.ServiceKey) map[Key][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k := range r.events {
		if k.service == svc {
			delete(r.events, k)
		}
	}
	dropped := make(map[Key][]string)
	for k, conns := range r.subs {
		if k.ServiceKey() == svc {
			dropped[k] = setToSlice(conns)
			delete(r.subs, k)
		}
	}
	return dropped
}

// Subscribe adds connID to the eventgroup. It returns the cached field
// values the new subscriber should be primed with, in event ID order.
// Subscribing again re-primes without adding a second entry.
func (r *Registry) Subscribe(key Key, connID string) ([]Priming, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var priming []Priming
	known := false
	for ek, ev := range r.events {
		if ek.service != key.ServiceKey() || !slices.Contains(ev.groups, key.Eventgroup) {
			continue
		}
		known = true
		if ev.typ == wire.EventTypeField && ev.set {
			priming = append(priming, Priming{Event: ek.event, Payload: ev.value})
		}
	}
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventgroup, key)
	}

	conns := r.subs[key]
	if conns == nil {
		conns = make(map[string]struct{})
		r.subs[key] = conns
	}
	if _, ok := conns[connID]; !ok && len(conns) >= r.config.MaxSubscribers {
		return nil, fmt.Errorf("%w: %s", ErrTooManySubscribers, key)
	}
	conns[connID] = struct{}{}

	slices.SortFunc(priming, func(a, b Priming) int { return int(a.Event) - int(b.Event) })
	return priming, nil
}

// Unsubscribe removes connID from the eventgroup and reports whether it was
// subscribed.
func (r *Registry) Unsubscribe(key Key, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.subs[key]
	if !ok {
		return false
	}
	if _, ok := conns[connID]; !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.subs, key)
	}
	return true
}

// RemoveConnection drops every subscription of connID and returns the
// affected eventgroups.
func (r *Registry) RemoveConnection(connID string) []Key {
	r.mu.Lock()
	defer r.mu.Unlock()

	var keys []Key
	for k, conns := range r.subs {
		if _, ok := conns[connID]; ok {
			delete(conns, connID)
			keys = append(keys, k)
			if len(conns) == 0 {
				delete(r.subs, k)
			}
		}
	}
	return keys
}

// Publish records a new event value and returns the connections to notify:
// every subscriber of any eventgroup containing the event, each once.
// Field values are cached for priming.
func (r *Registry) Publish(svc wire.ServiceKey, event wire.EventID, payload []byte) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, ok := r.events[eventKey{svc, event}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%04x", ErrUnknownEvent, svc, uint16(event))
	}
	if ev.typ == wire.EventTypeField {
		ev.value = slices.Clone(payload)
		ev.set = true
	}

	seen := make(map[string]struct{})
	var out []string
	for _, g := range ev.groups {
		for connID := range r.subs[NewKey(svc, g)] {
			if _, dup := seen[connID]; dup {
				continue
			}
			seen[connID] = struct{}{}
			out = append(out, connID)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Subscribers returns the connection IDs subscribed to an eventgroup.
func (r *Registry) Subscribers(key Key) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return setToSlice(r.subs[key])
}

// Count returns the number of (eventgroup, connection) subscriptions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, conns := range r.subs {
		n += len(conns)
	}
	return n
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

package runtime

import (
	"fmt"
	"time"

	"github.com/fieldbus/fieldbus-go/pkg/log"
	"github.com/fieldbus/fieldbus-go/pkg/subscription"
	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

// clientSub is a local subscription and the links it was sent over.
type clientSub struct {
	major  wire.MajorVersion
	sentTo map[*link]bool
}

// outbound is a message queued for a link while a.mu was held.
type outbound struct {
	link *link
	msg  *wire.Message
}

func sendAll(out []outbound) {
	for _, o := range out {
		o.link.send(o.msg)
	}
}

// RequestService implements Application. Pending subscriptions of the
// service are sent once it is both requested and available.
func (a *App) RequestService(service wire.ServiceID, instance wire.InstanceID, major wire.MajorVersion, minor wire.MinorVersion) {
	key := wire.ServiceKey{Service: service, Instance: instance}

	a.mu.Lock()
	a.requests[key] = serviceRequest{major: major, minor: minor}
	var out []outbound
	for k := range a.offers {
		if k.Matches(key) {
			out = append(out, a.flushLocked(k)...)
		}
	}
	a.mu.Unlock()

	a.logger.Debug("requesting service", "service", key.String(), "major", major, "minor", minor)
	sendAll(out)
}

// ReleaseService implements Application. Remaining subscriptions of the
// service are withdrawn.
func (a *App) ReleaseService(service wire.ServiceID, instance wire.InstanceID) {
	key := wire.ServiceKey{Service: service, Instance: instance}

	a.mu.Lock()
	delete(a.requests, key)
	var out []outbound
	for sk, sub := range a.subs {
		if !sk.ServiceKey().Matches(key) {
			continue
		}
		for l := range sub.sentTo {
			out = append(out, outbound{link: l, msg: wire.NewUnsubscribe(sk.ServiceKey(), sk.Eventgroup)})
		}
		delete(a.subs, sk)
	}
	a.mu.Unlock()

	a.logger.Debug("releasing service", "service", key.String())
	sendAll(out)
}

// RequestEvent implements Application. Notifications are delivered only
// for requested events.
func (a *App) RequestEvent(service wire.ServiceID, instance wire.InstanceID, event wire.EventID, eventgroups []wire.EventgroupID, typ wire.EventType) {
	ref := eventRef{key: wire.ServiceKey{Service: service, Instance: instance}, event: event}

	a.mu.Lock()
	a.events[ref] = eventRequest{groups: eventgroups, typ: typ}
	a.mu.Unlock()
}

// ReleaseEvent implements Application.
func (a *App) ReleaseEvent(service wire.ServiceID, instance wire.InstanceID, event wire.EventID) {
	ref := eventRef{key: wire.ServiceKey{Service: service, Instance: instance}, event: event}

	a.mu.Lock()
	delete(a.events, ref)
	a.mu.Unlock()
}

// Subscribe implements Application. Without a requested, available offer
// the subscription stays pending until one appears.
func (a *App) Subscribe(service wire.ServiceID, instance wire.InstanceID, eventgroup wire.EventgroupID, major wire.MajorVersion) {
	key := wire.ServiceKey{Service: service, Instance: instance}
	sk := subscription.NewKey(key, eventgroup)

	a.mu.Lock()
	sub, ok := a.subs[sk]
	if !ok {
		sub = &clientSub{sentTo: make(map[*link]bool)}
		a.subs[sk] = sub
	}
	sub.major = major
	out := a.flushLocked(key)
	a.mu.Unlock()

	if len(out) == 0 && !ok {
		a.logger.Debug("subscription pending", "eventgroup", sk.String(), "reason", ErrServiceUnavailable)
	}
	sendAll(out)
}

// Unsubscribe implements Application.
func (a *App) Unsubscribe(service wire.ServiceID, instance wire.InstanceID, eventgroup wire.EventgroupID) {
	key := wire.ServiceKey{Service: service, Instance: instance}
	sk := subscription.NewKey(key, eventgroup)

	a.mu.Lock()
	sub, ok := a.subs[sk]
	delete(a.subs, sk)
	var out []outbound
	if ok {
		for l := range sub.sentTo {
			out = append(out, outbound{link: l, msg: wire.NewUnsubscribe(key, eventgroup)})
		}
	}
	a.mu.Unlock()

	if ok {
		a.logState(log.RoleClient, log.StateEntitySubscription, key.String(), "SUBSCRIBED", "UNSUBSCRIBED", "")
	}
	sendAll(out)
}

// flushLocked returns Subscribe messages owed for key: every subscription
// of the service not yet sent to an offering link whose offer satisfies
// the request and subscription versions.
func (a *App) flushLocked(key wire.ServiceKey) []outbound {
	links := a.offers[key]
	if len(links) == 0 {
		return nil
	}
	var out []outbound
	for sk, sub := range a.subs {
		if sk.ServiceKey() != key {
			continue
		}
		for l, entry := range links {
			if sub.sentTo[l] || !a.requestedLocked(key, entry) {
				continue
			}
			if sub.major != wire.AnyMajor && sub.major != entry.Major {
				continue
			}
			sub.sentTo[l] = true
			out = append(out, outbound{link: l, msg: wire.NewSubscribe(key, sk.Eventgroup, sub.major)})
		}
	}
	return out
}

// requestedLocked reports whether a request covers the offered entry.
func (a *App) requestedLocked(key wire.ServiceKey, entry wire.ServiceEntry) bool {
	for rk, req := range a.requests {
		if key.Matches(rk) && wire.VersionMatches(entry.Major, entry.Minor, req.major, req.minor) {
			return true
		}
	}
	return false
}

func (a *App) serviceRequestedLocked(key wire.ServiceKey) bool {
	for rk := range a.requests {
		if key.Matches(rk) {
			return true
		}
	}
	return false
}

func (a *App) handleLinkMessage(l *link, connID string, data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		a.logger.Debug("dropping malformed message", "endpoint", l.name, "error", err)
		a.logError(log.RoleClient, "", "decode", err)
		return
	}
	a.logMessage(log.DirectionIn, log.RoleClient, connID, l.address(), msg)

	switch msg.Type {
	case wire.TypeOffer:
		a.linkOffered(l, msg.Entries)
	case wire.TypeStopOffer:
		keys := make([]wire.ServiceKey, 0, len(msg.Entries))
		for _, e := range msg.Entries {
			keys = append(keys, e.Key())
		}
		a.linkWithdrawn(l, keys)
	case wire.TypeSubscribeAck:
		a.logger.Debug("subscription acknowledged", "endpoint", l.name, "eventgroup", subscription.NewKey(msg.Key(), msg.Eventgroup).String())
		a.logState(log.RoleClient, log.StateEntitySubscription, msg.Key().String(), "PENDING", "SUBSCRIBED", "")
	case wire.TypeSubscribeNack:
		a.logger.Warn("subscription rejected", "endpoint", l.name, "eventgroup", subscription.NewKey(msg.Key(), msg.Eventgroup).String(), "reason", msg.Reason)
		a.logState(log.RoleClient, log.StateEntitySubscription, msg.Key().String(), "PENDING", "REJECTED", msg.Reason)
	case wire.TypeNotification:
		a.deliver(l, msg)
	default:
		a.logger.Debug("ignoring message", "endpoint", l.name, "type", msg.Type.String())
	}
}

// linkOffered records offers made over l. Services that become available
// are reported and their pending subscriptions sent.
func (a *App) linkOffered(l *link, entries []wire.ServiceEntry) {
	a.availMu.Lock()
	defer a.availMu.Unlock()

	var became []wire.ServiceKey
	var out []outbound
	a.mu.Lock()
	for _, e := range entries {
		k := e.Key()
		offers := a.offers[k]
		if offers == nil {
			offers = make(map[*link]wire.ServiceEntry)
			a.offers[k] = offers
		}
		if len(offers) == 0 {
			became = append(became, k)
		}
		offers[l] = e
	}
	for _, e := range entries {
		out = append(out, a.flushLocked(e.Key())...)
	}
	a.mu.Unlock()

	for _, k := range became {
		a.availabilityChanged(k, true)
	}
	sendAll(out)
}

// linkWithdrawn drops offers made over l. Services no longer offered by
// any link become unavailable; their subscriptions turn pending.
func (a *App) linkWithdrawn(l *link, keys []wire.ServiceKey) {
	a.availMu.Lock()
	defer a.availMu.Unlock()

	var lost []wire.ServiceKey
	a.mu.Lock()
	for _, k := range keys {
		offers, ok := a.offers[k]
		if !ok {
			continue
		}
		if _, ok := offers[l]; !ok {
			continue
		}
		delete(offers, l)
		if len(offers) == 0 {
			delete(a.offers, k)
			lost = append(lost, k)
		}
		for sk, sub := range a.subs {
			if sk.ServiceKey() == k {
				delete(sub.sentTo, l)
			}
		}
	}
	a.mu.Unlock()

	for _, k := range lost {
		a.availabilityChanged(k, false)
	}
}

// linkDown withdraws everything offered over l.
func (a *App) linkDown(l *link) {
	a.mu.Lock()
	var keys []wire.ServiceKey
	for k, offers := range a.offers {
		if _, ok := offers[l]; ok {
			keys = append(keys, k)
		}
	}
	a.mu.Unlock()

	if len(keys) > 0 {
		a.linkWithdrawn(l, keys)
	}
}

func (a *App) availabilityChanged(key wire.ServiceKey, available bool) {
	oldState, newState := "NOT_AVAILABLE", "AVAILABLE"
	if !available {
		oldState, newState = newState, oldState
	}
	a.logger.Debug("availability changed", "service", key.String(), "available", available)
	a.logState(log.RoleClient, log.StateEntityAvailability, key.String(), oldState, newState, "")
	a.cfg.Metrics.AvailabilityChanged(key, available)

	ctx := a.running()
	if ctx == nil {
		return
	}
	for _, h := range a.handlers.availabilityHandlers(key) {
		a.dispatch.submit(ctx, func() {
			h(key.Service, key.Instance, available)
		})
	}
}

// deliver hands a notification to the matching message handlers. Events
// that were not requested are dropped.
func (a *App) deliver(l *link, msg *wire.Message) {
	key := msg.Key()

	a.mu.Lock()
	_, wanted := a.events[eventRef{key: key, event: msg.Event}]
	requested := a.serviceRequestedLocked(key)
	a.mu.Unlock()

	if !wanted || !requested {
		a.cfg.Metrics.NotificationDropped()
		a.logger.Debug("dropping notification", "service", key.String(),
			"event", fmt.Sprintf("%04x", uint16(msg.Event)), "error", ErrEventNotRequested)
		return
	}
	a.cfg.Metrics.NotificationReceived(key)

	handlers := a.handlers.messageHandlers(key, msg.Event)
	if len(handlers) == 0 {
		return
	}
	ctx := a.running()
	if ctx == nil {
		return
	}
	m := &Message{
		Service:  msg.Service,
		Instance: msg.Instance,
		Method:   msg.Event,
		Payload:  &Payload{data: msg.Payload},
		Remote:   l.address(),
		Received: time.Now(),
	}
	for _, h := range handlers {
		a.dispatch.submit(ctx, func() {
			h(m)
		})
	}
}

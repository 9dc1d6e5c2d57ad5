package runtime

import (
	"fmt"
	"net"

	"github.com/fieldbus/fieldbus-go/pkg/discovery"
	"github.com/fieldbus/fieldbus-go/pkg/log"
	"github.com/fieldbus/fieldbus-go/pkg/subscription"
	"github.com/fieldbus/fieldbus-go/pkg/transport"
	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

// OfferService implements Application. Offering the same entry again is a
// no-op; offering a new version replaces the previous one.
func (a *App) OfferService(service wire.ServiceID, instance wire.InstanceID, major wire.MajorVersion, minor wire.MinorVersion) {
	key := wire.ServiceKey{Service: service, Instance: instance}
	entry := wire.ServiceEntry{Service: service, Instance: instance, Major: major, Minor: minor}

	a.mu.Lock()
	if prev, ok := a.offered[key]; ok && prev == entry {
		a.mu.Unlock()
		return
	}
	a.offered[key] = entry
	a.mu.Unlock()

	a.logger.Info("offering service", "service", key.String(), "major", major, "minor", minor)
	a.logState(log.RoleService, log.StateEntityAvailability, key.String(), "", "OFFERED", "")
	a.broadcast(wire.NewOffer(entry))
	a.updateAdvertisement()
}

// StopOfferService implements Application. The version must match the
// offered one; wildcards match any.
func (a *App) StopOfferService(service wire.ServiceID, instance wire.InstanceID, major wire.MajorVersion, minor wire.MinorVersion) {
	key := wire.ServiceKey{Service: service, Instance: instance}

	a.mu.Lock()
	entry, ok := a.offered[key]
	if !ok || !wire.VersionMatches(entry.Major, entry.Minor, major, minor) {
		a.mu.Unlock()
		a.logger.Debug("stop offer ignored", "service", key.String(), "error", ErrNotOffered)
		return
	}
	delete(a.offered, key)
	a.mu.Unlock()

	dropped := a.registry.StopOfferService(key)
	a.logger.Info("stopped offering service", "service", key.String(), "dropped_subscriptions", len(dropped))
	a.logState(log.RoleService, log.StateEntityAvailability, key.String(), "OFFERED", "NOT_OFFERED", "")
	a.broadcast(wire.NewStopOffer(entry))
	a.updateAdvertisement()
	a.cfg.Metrics.SetSubscriptions(a.registry.Count())
}

// OfferEvent implements Application.
func (a *App) OfferEvent(service wire.ServiceID, instance wire.InstanceID, event wire.EventID, eventgroups []wire.EventgroupID, typ wire.EventType) {
	key := wire.ServiceKey{Service: service, Instance: instance}
	a.registry.OfferEvent(key, event, eventgroups, typ)
	a.logger.Debug("offering event", "service", key.String(), "event", fmt.Sprintf("%04x", uint16(event)), "groups", len(eventgroups))
}

// StopOfferEvent implements Application.
func (a *App) StopOfferEvent(service wire.ServiceID, instance wire.InstanceID, event wire.EventID) {
	a.registry.StopOfferEvent(wire.ServiceKey{Service: service, Instance: instance}, event)
}

// Notify implements Application. The payload goes to every connection
// subscribed to an eventgroup containing the event; field values are also
// kept for priming later subscribers.
func (a *App) Notify(service wire.ServiceID, instance wire.InstanceID, event wire.EventID, payload *Payload) {
	key := wire.ServiceKey{Service: service, Instance: instance}

	a.mu.Lock()
	_, offered := a.offered[key]
	a.mu.Unlock()
	if !offered {
		err := fmt.Errorf("%w: %s", ErrNotOffered, key)
		a.logger.Warn("notify failed", "error", err)
		a.logError(log.RoleService, key.String(), "notify", err)
		return
	}

	a.pubMu.Lock()
	defer a.pubMu.Unlock()

	connIDs, err := a.registry.Publish(key, event, payload.Data())
	if err != nil {
		a.logger.Warn("notify failed", "error", err)
		a.logError(log.RoleService, key.String(), "notify", err)
		return
	}
	if len(connIDs) == 0 {
		return
	}

	msg := wire.NewNotification(key, event, payload.Data())
	data, err := wire.Encode(msg)
	if err != nil {
		a.logger.Warn("notify failed", "error", err)
		return
	}
	sent := 0
	for _, id := range connIDs {
		conn := a.serverConn(id)
		if conn == nil {
			continue
		}
		if a.sendEncoded(conn, msg, data) {
			sent++
		}
	}
	a.cfg.Metrics.NotificationSent(key, sent)
}

func (a *App) serverConn(connID string) *transport.ServerConn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conns[connID]
}

func (a *App) onConnect(conn *transport.ServerConn) {
	a.mu.Lock()
	a.conns[conn.ConnID()] = conn
	entries := a.offeredEntriesLocked()
	a.mu.Unlock()

	a.cfg.Metrics.ConnectionOpened()
	a.logger.Debug("client connected", "conn_id", conn.ConnID(), "remote", conn.RemoteAddr().String())
	if len(entries) > 0 {
		a.send(conn, wire.NewOffer(entries...))
	}
}

func (a *App) onDisconnect(conn *transport.ServerConn) {
	a.mu.Lock()
	delete(a.conns, conn.ConnID())
	a.mu.Unlock()

	dropped := a.registry.RemoveConnection(conn.ConnID())
	for _, k := range dropped {
		a.logState(log.RoleService, log.StateEntitySubscription, k.ServiceKey().String(), "SUBSCRIBED", "UNSUBSCRIBED", "connection closed")
	}
	a.cfg.Metrics.ConnectionClosed()
	a.cfg.Metrics.SetSubscriptions(a.registry.Count())
	a.logger.Debug("client disconnected", "conn_id", conn.ConnID(), "dropped_subscriptions", len(dropped))
}

func (a *App) onServerMessage(conn *transport.ServerConn, data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		a.logger.Debug("dropping malformed message", "conn_id", conn.ConnID(), "error", err)
		a.logError(log.RoleService, "", "decode", err)
		return
	}
	a.logMessage(log.DirectionIn, log.RoleService, conn.ConnID(), conn.RemoteAddr().String(), msg)

	switch msg.Type {
	case wire.TypeSubscribe:
		a.handleSubscribe(conn, msg)
	case wire.TypeUnsubscribe:
		key := subscription.NewKey(msg.Key(), msg.Eventgroup)
		if a.registry.Unsubscribe(key, conn.ConnID()) {
			a.logger.Debug("client unsubscribed", "conn_id", conn.ConnID(), "eventgroup", key.String())
			a.logState(log.RoleService, log.StateEntitySubscription, msg.Key().String(), "SUBSCRIBED", "UNSUBSCRIBED", "")
			a.cfg.Metrics.SetSubscriptions(a.registry.Count())
		}
	default:
		a.logger.Debug("ignoring message", "conn_id", conn.ConnID(), "type", msg.Type.String())
	}
}

func (a *App) handleSubscribe(conn *transport.ServerConn, msg *wire.Message) {
	svc := msg.Key()
	key := subscription.NewKey(svc, msg.Eventgroup)

	a.mu.Lock()
	entry, offered := a.offered[svc]
	a.mu.Unlock()

	var err error
	switch {
	case !offered:
		err = fmt.Errorf("%w: %s", ErrNotOffered, svc)
	case msg.Major != wire.AnyMajor && msg.Major != entry.Major:
		err = fmt.Errorf("major version %d not offered for %s", msg.Major, svc)
	}
	if err != nil {
		a.nack(conn, key, err)
		return
	}

	a.pubMu.Lock()
	defer a.pubMu.Unlock()

	priming, err := a.registry.Subscribe(key, conn.ConnID())
	if err != nil {
		a.nack(conn, key, err)
		return
	}
	a.send(conn, wire.NewSubscribeAck(svc, msg.Eventgroup))
	for _, p := range priming {
		a.send(conn, wire.NewNotification(svc, p.Event, p.Payload))
	}

	a.logger.Debug("client subscribed", "conn_id", conn.ConnID(), "eventgroup", key.String(), "primed", len(priming))
	a.logState(log.RoleService, log.StateEntitySubscription, svc.String(), "UNSUBSCRIBED", "SUBSCRIBED", "")
	a.cfg.Metrics.SetSubscriptions(a.registry.Count())
}

func (a *App) nack(conn *transport.ServerConn, key subscription.Key, err error) {
	a.logger.Debug("rejecting subscription", "conn_id", conn.ConnID(), "eventgroup", key.String(), "error", err)
	a.send(conn, wire.NewSubscribeNack(key.ServiceKey(), key.Eventgroup, err.Error()))
}

// broadcast sends msg to every connected client.
func (a *App) broadcast(msg *wire.Message) {
	if a.running() == nil || a.server == nil {
		return
	}
	data, err := wire.Encode(msg)
	if err != nil {
		a.logger.Warn("encode failed", "type", msg.Type.String(), "error", err)
		return
	}
	for _, conn := range a.server.Connections() {
		a.sendEncoded(conn, msg, data)
	}
}

func (a *App) send(conn *transport.ServerConn, msg *wire.Message) bool {
	data, err := wire.Encode(msg)
	if err != nil {
		a.logger.Warn("encode failed", "type", msg.Type.String(), "error", err)
		return false
	}
	return a.sendEncoded(conn, msg, data)
}

func (a *App) sendEncoded(conn *transport.ServerConn, msg *wire.Message, data []byte) bool {
	if err := conn.Send(data); err != nil {
		a.logger.Debug("send failed", "conn_id", conn.ConnID(), "type", msg.Type.String(), "error", err)
		return false
	}
	a.logMessage(log.DirectionOut, log.RoleService, conn.ConnID(), conn.RemoteAddr().String(), msg)
	return true
}

func (a *App) endpointInfo() *discovery.EndpointInfo {
	info := &discovery.EndpointInfo{
		InstanceName: a.cfg.Name,
		Name:         a.cfg.Name,
		Services:     a.OfferedServices(),
	}
	if addr, ok := a.ListenAddr().(*net.TCPAddr); ok {
		info.Port = uint16(addr.Port)
	}
	return info
}

func (a *App) updateAdvertisement() {
	if a.cfg.Advertiser == nil || a.running() == nil {
		return
	}
	if err := a.cfg.Advertiser.Update(a.endpointInfo()); err != nil {
		a.logger.Debug("advertisement update failed", "error", err)
	}
}

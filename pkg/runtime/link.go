package runtime

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fieldbus/fieldbus-go/pkg/connection"
	"github.com/fieldbus/fieldbus-go/pkg/discovery"
	"github.com/fieldbus/fieldbus-go/pkg/log"
	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

// link is the client side connection to one discovered service endpoint.
// Its manager redials with backoff whenever the connection drops.
type link struct {
	app  *App
	name string
	ctx  context.Context
	mgr  *connection.Manager

	mu   sync.Mutex
	addr string
	conn connHandle

	closing atomic.Bool
	wg      sync.WaitGroup
}

// connHandle is the part of transport.ClientConn a link uses.
type connHandle interface {
	ConnID() string
	Send(data []byte) error
	SendClose(reason string) error
	Close() error
	ReadLoop(ctx context.Context, onMessage func(data []byte)) error
}

func (l *link) address() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

func (l *link) setAddress(addr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addr = addr
}

func (l *link) connect(ctx context.Context) error {
	conn, err := l.app.dialer.Connect(ctx, l.address())
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	l.app.cfg.Metrics.ConnectionOpened()
	l.app.logger.Debug("connected", "endpoint", l.name, "conn_id", conn.ConnID())

	l.wg.Add(1)
	go l.readLoop(conn)
	return nil
}

func (l *link) readLoop(conn connHandle) {
	defer l.wg.Done()

	err := conn.ReadLoop(l.ctx, func(data []byte) {
		l.app.handleLinkMessage(l, conn.ConnID(), data)
	})

	l.mu.Lock()
	if l.conn == conn {
		l.conn = nil
	}
	l.mu.Unlock()

	l.app.cfg.Metrics.ConnectionClosed()
	l.app.linkDown(l)

	if l.closing.Load() || l.ctx.Err() != nil {
		return
	}
	l.app.logger.Info("connection lost", "endpoint", l.name, "error", err)
	l.mgr.NotifyConnectionLost()
}

// send encodes msg and writes it to the current connection. It reports
// false when the link is down.
func (l *link) send(msg *wire.Message) bool {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return false
	}
	data, err := wire.Encode(msg)
	if err != nil {
		l.app.logger.Warn("encode failed", "type", msg.Type.String(), "error", err)
		return false
	}
	if err := conn.Send(data); err != nil {
		l.app.logger.Debug("send failed", "endpoint", l.name, "type", msg.Type.String(), "error", err)
		return false
	}
	l.app.logMessage(log.DirectionOut, log.RoleClient, conn.ConnID(), l.address(), msg)
	return true
}

// close stops redialing, says goodbye to the peer and waits for the read
// goroutine.
func (l *link) close() {
	l.closing.Store(true)
	l.mgr.Close()

	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn != nil {
		_ = conn.SendClose("shutdown")
		_ = conn.Close()
	}
	l.wg.Wait()
}

func (a *App) browseLoop(ctx context.Context, events <-chan discovery.EndpointEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Endpoint == nil || ev.Endpoint.InstanceName == a.cfg.Name {
				continue
			}
			switch ev.Type {
			case discovery.EndpointAdded, discovery.EndpointUpdated:
				a.addLink(ctx, ev.Endpoint)
			case discovery.EndpointRemoved:
				a.removeLink(ev.Endpoint.InstanceName)
			}
		}
	}
}

// addLink starts a link to ep, or updates the address of an existing one.
func (a *App) addLink(ctx context.Context, ep *discovery.Endpoint) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	if l, ok := a.links[ep.InstanceName]; ok {
		a.mu.Unlock()
		l.setAddress(ep.Address())
		return
	}
	l := &link{
		app:  a,
		name: ep.InstanceName,
		ctx:  ctx,
		addr: ep.Address(),
	}
	l.mgr = connection.NewManager(connection.ManagerConfig{
		Name:    l.name,
		Connect: l.connect,
		Backoff: a.cfg.Backoff,
		Logger:  a.logger,
		OnStateChange: func(oldState, newState connection.State) {
			a.logState(log.RoleClient, log.StateEntityConnection, "", oldState.String(), newState.String(), l.name)
		},
	})
	a.links[l.name] = l
	a.mu.Unlock()

	a.logger.Info("endpoint found", "endpoint", l.name, "addr", l.address())
	if err := l.mgr.Start(ctx); err != nil {
		a.logger.Warn("starting link failed", "endpoint", l.name, "error", err)
	}
}

func (a *App) removeLink(name string) {
	a.mu.Lock()
	l, ok := a.links[name]
	delete(a.links, name)
	a.mu.Unlock()
	if !ok {
		return
	}
	a.logger.Info("endpoint removed", "endpoint", name)
	l.close()
}

package transport

import (
	"errors"
	"net"
	"time"

	"github.com/fieldbus/fieldbus-go/pkg/log"
	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

// DefaultPort is the default TCP port of a fieldbus service endpoint.
const DefaultPort = 30501

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrServerRunning    = errors.New("server already running")
)

// controlHandler answers transport control messages on a connection.
type controlHandler struct {
	conn   Conn
	logger log.Logger
	onPong func(seq uint32)
}

// handle processes data if it is a control message and reports whether it
// did. A Close from the peer is acknowledged and closes the connection.
func (h *controlHandler) handle(data []byte) (handled bool, closed bool) {
	msgType, err := wire.PeekType(data)
	if err != nil || !msgType.IsControl() {
		return false, false
	}
	msg, err := wire.Decode(data)
	if err != nil {
		return false, false
	}
	h.log(msg.Type, msg.Sequence, log.DirectionIn)

	switch msg.Type {
	case wire.TypePing:
		if pong, err := wire.EncodePong(msg.Sequence); err == nil {
			_ = h.conn.Send(pong)
			h.log(wire.TypePong, msg.Sequence, log.DirectionOut)
		}
	case wire.TypePong:
		if h.onPong != nil {
			h.onPong(msg.Sequence)
		}
	case wire.TypeClose:
		if ack, err := wire.EncodeClose("ack"); err == nil {
			_ = h.conn.Send(ack)
			h.log(wire.TypeClose, 0, log.DirectionOut)
		}
		_ = h.conn.Close()
		return true, true
	}
	return true, false
}

func (h *controlHandler) log(t wire.Type, seq uint32, dir log.Direction) {
	if h.logger == nil {
		return
	}
	h.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: h.conn.ConnID(),
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		RemoteAddr:   addrString(h.conn.RemoteAddr()),
		Message:      &log.MessageEvent{Type: t, Sequence: seq},
	})
}

// logConnState records a connection state transition.
func logConnState(logger log.Logger, connID string, remote net.Addr, oldState, newState string) {
	if logger == nil {
		return
	}
	logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   addrString(remote),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
		},
	})
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

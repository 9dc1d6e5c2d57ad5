package transport

import (
	"context"
	"net"
	"time"
)

// Conn is one end of a fieldbus connection as seen by its owner.
// Implemented by ServerConn and ClientConn.
type Conn interface {
	// ConnID returns the unique connection identifier.
	ConnID() string

	// RemoteAddr returns the peer address.
	RemoteAddr() net.Addr

	// Send writes one message frame.
	Send(data []byte) error

	// Close closes the connection.
	Close() error
}

// ClientConnection is the client side of a connection.
type ClientConnection interface {
	Conn

	// LocalAddr returns the local network address.
	LocalAddr() net.Addr

	// Receive reads one message frame, waiting at most timeout (0 = forever).
	Receive(timeout time.Duration) ([]byte, error)

	// SendPing sends a ping control message with the given sequence number.
	SendPing(seq uint32) error

	// SendClose sends a close control message.
	SendClose(reason string) error
}

// TransportServer accepts client connections.
type TransportServer interface {
	Start(ctx context.Context) error
	Stop() error
	Addr() net.Addr
	ConnectionCount() int
}

// FrameReadWriter provides length-prefixed frame I/O.
type FrameReadWriter interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
}

var (
	_ Conn             = (*ServerConn)(nil)
	_ ClientConnection = (*ClientConn)(nil)
	_ TransportServer  = (*Server)(nil)
	_ FrameReadWriter  = (*Framer)(nil)
)

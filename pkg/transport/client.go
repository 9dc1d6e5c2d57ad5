package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldbus/fieldbus-go/pkg/log"
	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

// ErrKeepAliveTimeout is returned by ReadLoop when the peer stopped
// answering pings.
var ErrKeepAliveTimeout = errors.New("keep-alive timeout")

// ClientConfig configures a Dialer.
type ClientConfig struct {
	// MaxMessageSize is the maximum message size (default: 64KB).
	MaxMessageSize uint32

	// ConnectTimeout bounds Connect when ctx has no deadline (default: 10s).
	ConnectTimeout time.Duration

	// KeepAlive configures pinging. A zero PingInterval disables it.
	KeepAlive KeepAliveConfig

	// Logger for protocol capture (optional).
	Logger log.Logger
}

// Dialer opens client connections to service endpoints.
type Dialer struct {
	config ClientConfig
}

// NewDialer creates a dialer.
func NewDialer(config ClientConfig) *Dialer {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	return &Dialer{config: config}
}

// Connect dials address and returns the connection. Keep-alive, if
// configured, starts with ReadLoop.
func (d *Dialer) Connect(ctx context.Context, address string) (*ClientConn, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.ConnectTimeout)
		defer cancel()
	}

	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	connID := uuid.New().String()
	framer := NewFramerWithMaxSize(conn, d.config.MaxMessageSize)
	if d.config.Logger != nil {
		framer.SetLogger(d.config.Logger, connID, conn.RemoteAddr().String())
	}

	c := &ClientConn{
		conn:    conn,
		framer:  framer,
		connID:  connID,
		config:  d.config,
		closeCh: make(chan struct{}),
	}
	logConnState(d.config.Logger, connID, conn.RemoteAddr(), "", "CONNECTED")
	return c, nil
}

// ClientConn is the client side of a connection to a service endpoint.
type ClientConn struct {
	conn   net.Conn
	framer *Framer
	connID string
	config ClientConfig

	kaMu      sync.Mutex
	keepAlive *KeepAlive

	closeCh   chan struct{}
	closeOnce sync.Once
	readMu    sync.Mutex
}

// ConnID returns the unique connection identifier.
func (c *ClientConn) ConnID() string {
	return c.connID
}

// LocalAddr returns the local network address.
func (c *ClientConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the service endpoint address.
func (c *ClientConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send writes one message frame.
func (c *ClientConn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Receive reads one raw frame, waiting at most timeout (0 = forever).
// Control messages are returned as-is.
func (c *ClientConn) Receive(timeout time.Duration) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}
	return c.framer.ReadFrame()
}

// ReadLoop reads frames until the connection fails or ctx is done, handing
// every non-control message to onMessage. Pings are answered, pongs feed
// keep-alive, and a Close from the peer ends the loop with
// ErrConnectionClosed. The connection is closed when ReadLoop returns.
func (c *ClientConn) ReadLoop(ctx context.Context, onMessage func(data []byte)) error {
	control := controlHandler{conn: c, logger: c.config.Logger}

	var timedOut chan struct{}
	if c.config.KeepAlive.PingInterval > 0 {
		timedOut = make(chan struct{})
		ka := NewKeepAlive(c.config.KeepAlive, c.SendPing, func() {
			close(timedOut)
			c.closeConn()
		})
		control.onPong = ka.PongReceived

		c.kaMu.Lock()
		c.keepAlive = ka
		c.kaMu.Unlock()
		ka.Start(ctx)
	}

	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()
	defer c.Close()

	for {
		data, err := c.Receive(0)
		if err != nil {
			if timedOut != nil {
				select {
				case <-timedOut:
					return ErrKeepAliveTimeout
				default:
				}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case <-c.closeCh:
				return ErrConnectionClosed
			default:
			}
			return err
		}

		if handled, closed := control.handle(data); handled {
			if closed {
				return ErrConnectionClosed
			}
			continue
		}
		onMessage(data)
	}
}

// KeepAliveStats returns keep-alive state, or zero stats when disabled.
func (c *ClientConn) KeepAliveStats() KeepAliveStats {
	c.kaMu.Lock()
	ka := c.keepAlive
	c.kaMu.Unlock()
	if ka == nil {
		return KeepAliveStats{}
	}
	return ka.Stats()
}

// Close stops keep-alive and closes the connection. It is safe to call
// more than once.
func (c *ClientConn) Close() error {
	c.kaMu.Lock()
	ka := c.keepAlive
	c.kaMu.Unlock()
	if ka != nil {
		ka.Stop()
	}
	return c.closeConn()
}

func (c *ClientConn) closeConn() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
		logConnState(c.config.Logger, c.connID, c.conn.RemoteAddr(), "CONNECTED", "DISCONNECTED")
	})
	return err
}

// SendPing sends a ping control message.
func (c *ClientConn) SendPing(seq uint32) error {
	msg, err := wire.EncodePing(seq)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// SendClose sends a close control message.
func (c *ClientConn) SendClose(reason string) error {
	msg, err := wire.EncodeClose(reason)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

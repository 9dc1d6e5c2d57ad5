package log

import (
	"time"

	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

// Event is a protocol capture record from any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the connection (UUID), empty for
	// events not bound to a connection.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// LocalRole is the role of the endpoint that captured the event.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (host:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Service is the "ssss.iiii" key the event concerns, if any.
	Service string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload, exactly one is set.
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates message flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// ParseDirection parses "in" or "out" (case-insensitive).
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "in", "IN":
		return DirectionIn, true
	case "out", "OUT":
		return DirectionOut, true
	}
	return 0, false
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the message layer (decoded CBOR).
	LayerWire Layer = 1
	// LayerService is the runtime layer (availability, subscriptions).
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// ParseLayer parses a layer name (case-insensitive).
func ParseLayer(s string) (Layer, bool) {
	switch s {
	case "transport", "TRANSPORT":
		return LayerTransport, true
	case "wire", "WIRE":
		return LayerWire, true
	case "service", "SERVICE":
		return LayerService, true
	}
	return 0, false
}

// Category classifies the event.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryControl Category = 1
	CategoryState   Category = 2
	CategoryError   Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role is the role of the capturing endpoint.
type Role uint8

const (
	RoleUnknown Role = 0
	// RoleService offers services and publishes notifications.
	RoleService Role = 1
	// RoleClient requests services and subscribes to eventgroups.
	RoleClient Role = 2
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleService:
		return "SERVICE"
	case RoleClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded message at the wire layer.
type MessageEvent struct {
	Type        wire.Type         `cbor:"1,keyasint"`
	Service     wire.ServiceID    `cbor:"2,keyasint"`
	Instance    wire.InstanceID   `cbor:"3,keyasint"`
	Eventgroup  wire.EventgroupID `cbor:"4,keyasint,omitempty"`
	Event       wire.EventID      `cbor:"5,keyasint,omitempty"`
	PayloadSize int               `cbor:"6,keyasint,omitempty"`
	Entries     int               `cbor:"7,keyasint,omitempty"`
	Sequence    uint32            `cbor:"8,keyasint,omitempty"`
}

// NewMessageEvent summarizes a wire message for capture.
func NewMessageEvent(msg *wire.Message) *MessageEvent {
	return &MessageEvent{
		Type:        msg.Type,
		Service:     msg.Service,
		Instance:    msg.Instance,
		Eventgroup:  msg.Eventgroup,
		Event:       msg.Event,
		PayloadSize: len(msg.Payload),
		Entries:     len(msg.Entries),
		Sequence:    msg.Sequence,
	}
}

// StateChangeEvent captures connection, availability and subscription changes.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	StateEntityConnection   StateEntity = 0
	StateEntityAvailability StateEntity = 1
	StateEntitySubscription StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityAvailability:
		return "AVAILABILITY"
	case StateEntitySubscription:
		return "SUBSCRIPTION"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Context describes the operation that failed.
	Context string `cbor:"3,keyasint,omitempty"`
}

package wire

import (
	"errors"
	"fmt"
)

// Type selects the kind of a Message.
type Type uint8

const (
	TypeOffer         Type = 1
	TypeStopOffer     Type = 2
	TypeSubscribe     Type = 3
	TypeSubscribeAck  Type = 4
	TypeSubscribeNack Type = 5
	TypeUnsubscribe   Type = 6
	TypeNotification  Type = 7
	TypePing          Type = 8
	TypePong          Type = 9
	TypeClose         Type = 10
)

// String returns the message type name.
func (t Type) String() string {
	switch t {
	case TypeOffer:
		return "OFFER"
	case TypeStopOffer:
		return "STOP_OFFER"
	case TypeSubscribe:
		return "SUBSCRIBE"
	case TypeSubscribeAck:
		return "SUBSCRIBE_ACK"
	case TypeSubscribeNack:
		return "SUBSCRIBE_NACK"
	case TypeUnsubscribe:
		return "UNSUBSCRIBE"
	case TypeNotification:
		return "NOTIFICATION"
	case TypePing:
		return "PING"
	case TypePong:
		return "PONG"
	case TypeClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true if the type is a known message type.
func (t Type) IsValid() bool {
	return t >= TypeOffer && t <= TypeClose
}

// IsControl returns true for connection control messages.
func (t Type) IsControl() bool {
	return t == TypePing || t == TypePong || t == TypeClose
}

// ServiceEntry describes one offered service instance.
type ServiceEntry struct {
	Service  ServiceID    `cbor:"1,keyasint"`
	Instance InstanceID   `cbor:"2,keyasint"`
	Major    MajorVersion `cbor:"3,keyasint"`
	Minor    MinorVersion `cbor:"4,keyasint"`
}

// Key returns the service key of the entry.
func (e ServiceEntry) Key() ServiceKey {
	return ServiceKey{Service: e.Service, Instance: e.Instance}
}

// Message is the single frame payload exchanged between fieldbus endpoints.
//
// CBOR encoding:
//
//	{
//	  1: type,        // uint8
//	  2: service,     // uint16
//	  3: instance,    // uint16
//	  4: major,       // uint8  (Subscribe)
//	  5: eventgroup,  // uint16 (Subscribe*, Unsubscribe)
//	  6: event,       // uint16 (Notification)
//	  7: payload,     // bytes  (Notification)
//	  8: entries,     // array  (Offer, StopOffer)
//	  9: sequence,    // uint32 (Ping, Pong)
//	  10: reason      // text   (SubscribeNack, Close)
//	}
type Message struct {
	Type       Type           `cbor:"1,keyasint"`
	Service    ServiceID      `cbor:"2,keyasint,omitempty"`
	Instance   InstanceID     `cbor:"3,keyasint,omitempty"`
	Major      MajorVersion   `cbor:"4,keyasint,omitempty"`
	Eventgroup EventgroupID   `cbor:"5,keyasint,omitempty"`
	Event      EventID        `cbor:"6,keyasint,omitempty"`
	Payload    []byte         `cbor:"7,keyasint,omitempty"`
	Entries    []ServiceEntry `cbor:"8,keyasint,omitempty"`
	Sequence   uint32         `cbor:"9,keyasint,omitempty"`
	Reason     string         `cbor:"10,keyasint,omitempty"`
}

// Validation errors.
var (
	ErrInvalidType     = errors.New("invalid message type")
	ErrWildcardAddress = errors.New("wildcard not allowed in message address")
	ErrNoEntries       = errors.New("offer carries no service entries")
)

// Key returns the service key addressed by the message.
func (m *Message) Key() ServiceKey {
	return ServiceKey{Service: m.Service, Instance: m.Instance}
}

// Validate checks that the fields required by the message type are present.
func (m *Message) Validate() error {
	if !m.Type.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidType, m.Type)
	}

	switch m.Type {
	case TypeOffer, TypeStopOffer:
		if len(m.Entries) == 0 {
			return ErrNoEntries
		}
		for _, e := range m.Entries {
			if e.Service == AnyService || e.Instance == AnyInstance {
				return fmt.Errorf("%w: entry %s", ErrWildcardAddress, e.Key())
			}
		}
	case TypeSubscribe, TypeSubscribeAck, TypeSubscribeNack, TypeUnsubscribe:
		if m.Service == AnyService || m.Instance == AnyInstance {
			return fmt.Errorf("%w: %s", ErrWildcardAddress, m.Key())
		}
	case TypeNotification:
		if m.Service == AnyService || m.Instance == AnyInstance || m.Event == AnyMethod {
			return fmt.Errorf("%w: %s/%04x", ErrWildcardAddress, m.Key(), uint16(m.Event))
		}
	}
	return nil
}

// NewOffer builds an Offer message for the given entries.
func NewOffer(entries ...ServiceEntry) *Message {
	return &Message{Type: TypeOffer, Entries: entries}
}

// NewStopOffer builds a StopOffer message for the given entries.
func NewStopOffer(entries ...ServiceEntry) *Message {
	return &Message{Type: TypeStopOffer, Entries: entries}
}

// NewSubscribe builds a Subscribe message.
func NewSubscribe(key ServiceKey, eventgroup EventgroupID, major MajorVersion) *Message {
	return &Message{
		Type:       TypeSubscribe,
		Service:    key.Service,
		Instance:   key.Instance,
		Major:      major,
		Eventgroup: eventgroup,
	}
}

// NewSubscribeAck builds a SubscribeAck message.
func NewSubscribeAck(key ServiceKey, eventgroup EventgroupID) *Message {
	return &Message{
		Type:       TypeSubscribeAck,
		Service:    key.Service,
		Instance:   key.Instance,
		Eventgroup: eventgroup,
	}
}

// NewSubscribeNack builds a SubscribeNack message with a reason.
func NewSubscribeNack(key ServiceKey, eventgroup EventgroupID, reason string) *Message {
	return &Message{
		Type:       TypeSubscribeNack,
		Service:    key.Service,
		Instance:   key.Instance,
		Eventgroup: eventgroup,
		Reason:     reason,
	}
}

// NewUnsubscribe builds an Unsubscribe message.
func NewUnsubscribe(key ServiceKey, eventgroup EventgroupID) *Message {
	return &Message{
		Type:       TypeUnsubscribe,
		Service:    key.Service,
		Instance:   key.Instance,
		Eventgroup: eventgroup,
	}
}

// NewNotification builds a Notification carrying payload for an event.
func NewNotification(key ServiceKey, event EventID, payload []byte) *Message {
	return &Message{
		Type:     TypeNotification,
		Service:  key.Service,
		Instance: key.Instance,
		Event:    event,
		Payload:  payload,
	}
}

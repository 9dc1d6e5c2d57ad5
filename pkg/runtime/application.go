package runtime

import (
	"errors"
	"slices"
	"time"

	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

// Runtime errors.
var (
	ErrNotInitialized     = errors.New("application not initialized")
	ErrAlreadyInitialized = errors.New("application already initialized")
	ErrAlreadyStarted     = errors.New("application already started")
	ErrStopped            = errors.New("application stopped")
	ErrNotOffered         = errors.New("service not offered")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrEventNotRequested  = errors.New("event not requested")
)

// MessageHandler receives inbound messages. Handlers run on the dispatch
// goroutine and must not block.
type MessageHandler func(msg *Message)

// AvailabilityHandler receives availability changes of a service instance.
// Handlers run on the dispatch goroutine and must not block.
type AvailabilityHandler func(service wire.ServiceID, instance wire.InstanceID, available bool)

// Application is the middleware surface used by fieldbus components.
type Application interface {
	// Name returns the application name.
	Name() string

	// Init prepares the application. It must succeed before Start.
	Init() error

	// Start begins network activity and handler dispatch. It does not block.
	Start() error

	// Stop ends all activity. It is safe to call more than once.
	Stop() error

	OfferService(service wire.ServiceID, instance wire.InstanceID, major wire.MajorVersion, minor wire.MinorVersion)
	StopOfferService(service wire.ServiceID, instance wire.InstanceID, major wire.MajorVersion, minor wire.MinorVersion)
	OfferEvent(service wire.ServiceID, instance wire.InstanceID, event wire.EventID, eventgroups []wire.EventgroupID, typ wire.EventType)
	StopOfferEvent(service wire.ServiceID, instance wire.InstanceID, event wire.EventID)
	Notify(service wire.ServiceID, instance wire.InstanceID, event wire.EventID, payload *Payload)

	RequestService(service wire.ServiceID, instance wire.InstanceID, major wire.MajorVersion, minor wire.MinorVersion)
	ReleaseService(service wire.ServiceID, instance wire.InstanceID)
	RequestEvent(service wire.ServiceID, instance wire.InstanceID, event wire.EventID, eventgroups []wire.EventgroupID, typ wire.EventType)
	ReleaseEvent(service wire.ServiceID, instance wire.InstanceID, event wire.EventID)
	Subscribe(service wire.ServiceID, instance wire.InstanceID, eventgroup wire.EventgroupID, major wire.MajorVersion)
	Unsubscribe(service wire.ServiceID, instance wire.InstanceID, eventgroup wire.EventgroupID)

	// RegisterMessageHandler installs h for messages matching the filter,
	// which may use AnyService, AnyInstance and AnyMethod. Registering the
	// same filter again replaces the handler.
	RegisterMessageHandler(service wire.ServiceID, instance wire.InstanceID, method wire.MethodID, h MessageHandler)
	UnregisterMessageHandler(service wire.ServiceID, instance wire.InstanceID, method wire.MethodID)

	// RegisterAvailabilityHandler installs h for availability changes of
	// services matching the filter.
	RegisterAvailabilityHandler(service wire.ServiceID, instance wire.InstanceID, h AvailabilityHandler)
	UnregisterAvailabilityHandler(service wire.ServiceID, instance wire.InstanceID)
}

// Payload is an immutable message body.
type Payload struct {
	data []byte
}

// NewPayload copies data into a new payload.
func NewPayload(data []byte) *Payload {
	return &Payload{data: slices.Clone(data)}
}

// Data returns the payload bytes. Callers must not modify them.
func (p *Payload) Data() []byte {
	if p == nil {
		return nil
	}
	return p.data
}

// Len returns the payload size in bytes.
func (p *Payload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.data)
}

// Message is an inbound message delivered to a MessageHandler.
type Message struct {
	Service  wire.ServiceID
	Instance wire.InstanceID
	Method   wire.MethodID
	Payload  *Payload

	// Remote is the address of the sending endpoint.
	Remote string

	// Received is when the message was read from the network.
	Received time.Time
}

// Key returns the service key of the sender.
func (m *Message) Key() wire.ServiceKey {
	return wire.ServiceKey{Service: m.Service, Instance: m.Instance}
}

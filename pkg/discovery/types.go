package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

// Service type constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of fieldbus endpoints.
	ServiceType = "_fieldbus._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// ProtocolVersion is advertised in the "v" TXT key.
	ProtocolVersion = 1
)

// TXT record keys.
const (
	TXTKeyServices = "svc"
	TXTKeyVersion  = "v"
	TXTKeyName     = "name"
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTValueLen is the limit of one TXT string (including "key=").
	MaxTXTValueLen = 255
)

// BrowseTimeout is the default time a one-shot lookup waits for answers.
const BrowseTimeout = 5 * time.Second

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotAdvertising      = errors.New("not advertising")
	ErrTXTTooLong          = errors.New("TXT value too long")
)

// EndpointInfo is what a service endpoint advertises about itself.
type EndpointInfo struct {
	// InstanceName is the mDNS instance name.
	InstanceName string

	// Name is a user-friendly endpoint name (optional).
	Name string

	// Port is the TCP port of the endpoint.
	Port uint16

	// Services lists the offered service instances.
	Services []wire.ServiceEntry
}

// Endpoint is a service endpoint found by a Browser.
type Endpoint struct {
	// InstanceName identifies the endpoint; it is stable across updates.
	InstanceName string

	// Host is the advertised hostname, if any.
	Host string

	// Port is the TCP port.
	Port uint16

	// Addresses contains resolved IP addresses.
	Addresses []string

	// Name is the advertised endpoint name.
	Name string

	// Services lists the advertised service instances. Empty for static
	// endpoints.
	Services []wire.ServiceEntry
}

// Address returns host:port for dialing, preferring the first resolved
// address over the hostname.
func (e *Endpoint) Address() string {
	host := e.Host
	if len(e.Addresses) > 0 {
		host = e.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(e.Port)))
}

// Offers reports whether the endpoint advertises a service matching key,
// which may contain wildcards.
func (e *Endpoint) Offers(key wire.ServiceKey) bool {
	for _, s := range e.Services {
		if s.Key().Matches(key) {
			return true
		}
	}
	return false
}

// EventType distinguishes browse events.
type EventType uint8

const (
	EndpointAdded EventType = iota
	EndpointUpdated
	EndpointRemoved
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EndpointAdded:
		return "ADDED"
	case EndpointUpdated:
		return "UPDATED"
	case EndpointRemoved:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

// EndpointEvent reports a change in the set of known endpoints.
type EndpointEvent struct {
	Type     EventType
	Endpoint *Endpoint
}

// Advertiser publishes the local endpoint.
type Advertiser interface {
	// Advertise starts announcing info, replacing any previous announcement.
	Advertise(ctx context.Context, info *EndpointInfo) error

	// Update changes the announced TXT data.
	Update(info *EndpointInfo) error

	// Stop withdraws the announcement.
	Stop() error
}

// Browser reports service endpoints.
type Browser interface {
	// Browse streams endpoint events until ctx is done or Stop is called.
	// The channel is closed when browsing ends.
	Browse(ctx context.Context) (<-chan EndpointEvent, error)

	// Stop ends all browse operations.
	Stop()
}

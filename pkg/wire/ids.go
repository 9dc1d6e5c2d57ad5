package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// ServiceID identifies a service interface.
type ServiceID uint16

// InstanceID identifies one instance of a service.
type InstanceID uint16

// MethodID identifies a method or event within a service.
// Event identifiers share the method identifier space.
type MethodID uint16

// EventID identifies an event or field of a service.
type EventID = MethodID

// EventgroupID identifies a set of events subscribed to as a unit.
type EventgroupID uint16

// MajorVersion is the major interface version of a service.
type MajorVersion uint8

// MinorVersion is the minor interface version of a service.
type MinorVersion uint32

// Wildcards.
const (
	AnyService  ServiceID    = 0xFFFF
	AnyInstance InstanceID   = 0xFFFF
	AnyMethod   MethodID     = 0xFFFF
	AnyMajor    MajorVersion = 0xFF
	AnyMinor    MinorVersion = 0xFFFFFFFF

	// DefaultMajor and DefaultMinor are used when a service does not
	// declare an interface version.
	DefaultMajor MajorVersion = 0x00
	DefaultMinor MinorVersion = 0x00000000
)

// EventType distinguishes plain events from fields.
type EventType uint8

const (
	// EventTypeEvent is a fire-once event; no value is retained.
	EventTypeEvent EventType = 0

	// EventTypeSelectiveEvent is delivered only to explicitly selected subscribers.
	EventTypeSelectiveEvent EventType = 1

	// EventTypeField represents a persistent value. New subscribers receive
	// the last notified value immediately.
	EventTypeField EventType = 2
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventTypeEvent:
		return "EVENT"
	case EventTypeSelectiveEvent:
		return "SELECTIVE_EVENT"
	case EventTypeField:
		return "FIELD"
	default:
		return "UNKNOWN"
	}
}

// ServiceKey is the (service, instance) pair addressing one service instance.
type ServiceKey struct {
	Service  ServiceID
	Instance InstanceID
}

// String formats the key as "ssss.iiii" in hex.
func (k ServiceKey) String() string {
	return fmt.Sprintf("%04x.%04x", uint16(k.Service), uint16(k.Instance))
}

// Matches reports whether k matches the filter, honoring wildcards in the filter.
func (k ServiceKey) Matches(filter ServiceKey) bool {
	if filter.Service != AnyService && filter.Service != k.Service {
		return false
	}
	if filter.Instance != AnyInstance && filter.Instance != k.Instance {
		return false
	}
	return true
}

// ParseServiceKey parses the "ssss.iiii" form produced by ServiceKey.String.
func ParseServiceKey(s string) (ServiceKey, error) {
	svc, inst, ok := strings.Cut(s, ".")
	if !ok {
		return ServiceKey{}, fmt.Errorf("invalid service key %q: missing '.'", s)
	}
	sv, err := strconv.ParseUint(svc, 16, 16)
	if err != nil {
		return ServiceKey{}, fmt.Errorf("invalid service id in %q: %w", s, err)
	}
	in, err := strconv.ParseUint(inst, 16, 16)
	if err != nil {
		return ServiceKey{}, fmt.Errorf("invalid instance id in %q: %w", s, err)
	}
	return ServiceKey{Service: ServiceID(sv), Instance: InstanceID(in)}, nil
}

// VersionMatches reports whether an offered version satisfies a requested one.
func VersionMatches(offeredMajor MajorVersion, offeredMinor MinorVersion, major MajorVersion, minor MinorVersion) bool {
	if major != AnyMajor && major != offeredMajor {
		return false
	}
	if minor != AnyMinor && minor > offeredMinor {
		return false
	}
	return true
}

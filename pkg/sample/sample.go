// Package sample holds the identifiers shared by the fieldbus service and
// client commands.
package sample

import "github.com/fieldbus/fieldbus-go/pkg/wire"

// Service and event identifiers.
const (
	PrimaryService   wire.ServiceID    = 0x1234
	SecondaryService wire.ServiceID    = 0x1235
	Instance         wire.InstanceID   = 0x5678
	Eventgroup       wire.EventgroupID = 0x4465
	Event            wire.EventID      = 0x8778
)

// Offered interface version.
const (
	Major wire.MajorVersion = 1
	Minor wire.MinorVersion = 0
)

var (
	// Primary is the first sample service instance.
	Primary = wire.ServiceKey{Service: PrimaryService, Instance: Instance}

	// Secondary is the second sample service instance.
	Secondary = wire.ServiceKey{Service: SecondaryService, Instance: Instance}
)

// Services returns both sample service instances, primary first.
func Services() []wire.ServiceKey {
	return []wire.ServiceKey{Primary, Secondary}
}

// Package wire defines the CBOR wire format for fieldbus messages.
//
// Every frame carries exactly one Message encoded as a CBOR map with integer
// keys. The Type field selects which of the remaining keys are meaningful.
//
// # Message Types
//
// Service discovery and availability:
//   - Offer: service to client, lists the services an endpoint offers
//   - StopOffer: service to client, withdraws one or more offers
//
// Eventgroup membership:
//   - Subscribe: client to service, joins an eventgroup
//   - SubscribeAck / SubscribeNack: service to client, answer to Subscribe
//   - Unsubscribe: client to service, leaves an eventgroup
//
// Data:
//   - Notification: service to client, the current value of an event or field
//
// Connection control:
//   - Ping / Pong / Close
//
// # Identities
//
// Services are addressed by (ServiceID, InstanceID). Events belong to one or
// more eventgroups of a service; clients subscribe to eventgroups, never to
// single events. The value 0xFFFF is reserved as the "any" wildcard for
// service, instance and method identifiers.
package wire

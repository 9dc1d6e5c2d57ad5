// Package subscription tracks eventgroup subscriptions on a service
// endpoint.
//
// Events are offered into one or more eventgroups of a service instance.
// Clients subscribe to an eventgroup and then receive notifications for
// every event in it. Field events additionally keep their last value: a new
// subscriber is primed with the current value of each field in the group
// before any later change.
//
// The Registry is transport-agnostic; subscribers are identified by
// connection ID.
package subscription

// Package discovery finds fieldbus service endpoints on the local network.
//
// A service endpoint advertises one mDNS/DNS-SD instance of type
// _fieldbus._tcp. Its TXT record lists the service instances reachable
// through it:
//
//	svc=1234.5678:0.0,1235.5678:0.0
//	v=1
//	name=sensor-gateway
//
// Each svc element is <service>.<instance>:<major>.<minor> in hex for the
// identifiers and decimal for the versions. The list is a hint; clients
// learn authoritative availability from Offer messages once connected.
//
// A StaticBrowser serves fixed endpoint lists where multicast is not
// available.
package discovery

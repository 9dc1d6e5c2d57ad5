// Package runtime is the middleware a fieldbus application talks to.
//
// An Application offers services and publishes their events, or requests
// services offered elsewhere and subscribes to their eventgroups. App is
// the implementation shipped with this module: it accepts client
// connections when configured with a listen address, discovers remote
// endpoints through a discovery.Browser, and delivers messages and
// availability changes to registered handlers on a single dispatch
// goroutine.
//
// Most operations are fire-and-forget. Failures are logged and, where a
// remote peer is involved, retried when the peer becomes reachable again.
package runtime

// Package connection keeps a client link to one service endpoint alive.
//
// A Manager dials the endpoint, reports state transitions and redials with
// exponential backoff after the link is lost:
//
//  1. Initial delay: 100 milliseconds
//  2. Exponential increase: 200ms, 400ms, 800ms, ...
//  3. Maximum delay: 5 seconds
//  4. Reset to the initial delay on every successful connect
//
// # Jitter
//
// Clients that lose the same endpoint at once spread their retries:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
package connection

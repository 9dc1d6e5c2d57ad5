// Package transport carries fieldbus messages between endpoints.
//
// The transport layer handles:
//   - TCP connections between a service endpoint and its clients
//   - Length-prefixed message framing
//   - Keep-alive ping/pong for connection liveness
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      CBOR Messages             │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// Ping, Pong and Close are answered inside the transport; every other
// message is handed to the owner of the connection.
//
// # Keep-Alive
//
// Clients ping the service; the server only answers:
//   - Ping interval: 5 seconds
//   - Pong timeout: 2 seconds
//   - Max missed pongs: 3
package transport

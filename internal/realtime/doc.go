// Package realtime owns the live side of notification delivery: the
// per-user connection registry, the conversation presence map and the
// heartbeat that prunes dead connections.
//
// All types are safe for concurrent use. Transports (SSE, WebSocket) plug
// in through the Sink interface and block on Connection.Done until the
// registry lets go of them.
package realtime

// Package websocket carries the hub protocol over gorilla/websocket.
//
// The websocket package implements:
//   - An HTTP handler that upgrades requests and opens a hub connection
//   - A Client that satisfies hub.Transport with a bounded send buffer
//   - Ping control frames on demand and pong-driven liveness
//
// Architecture:
//
// Each connection runs two goroutines. readPump reads one frame at a time
// and hands it to the dispatcher, so frames from a single client are
// processed in order. writePump is the only writer on the socket: direct
// replies, broadcasts and pings all go through it.
//
// Send never blocks. When a client's buffer is full the send fails, and
// the hub evicts the connection rather than stall a broadcast.
//
// Connection Lifecycle:
//
// 1. Client connects to /ws
// 2. Handler registers it through the dispatcher, which sends "connected"
// 3. Client sends requests, receives replies and topic messages
// 4. A read error, a hub eviction or a failed write closes it
//
// Closing from either side is safe: the dispatcher's Close is idempotent
// and Client.Close runs once.
//
// Usage:
//
//	h := websocket.NewHandler(dispatcher, hub, websocket.Options{SendBuffer: 256})
//	router.Handle("/ws", h)
package websocket

// Package hub implements the connection registry, topic index and broadcast
// fan-out behind roomhub.
//
// The package implements:
//   - A registry of live connections keyed by an opaque id
//   - Per-connection authentication through a pluggable Verifier
//   - A topic index mapping topic names to subscriber ids and back
//   - A bounded per-topic history replayed to new subscribers
//   - Snapshot-then-deliver broadcast with per-recipient failure isolation
//   - A liveness sweep that evicts silent or closed connections
//
// Architecture:
//
// A single Hub owns both the registry and the topic index behind one mutex,
// so "topic T lists connection C" and "connection C lists topic T" change
// together or not at all. Transport I/O never happens while that mutex is
// held: broadcast copies the recipient set under the lock, releases it, and
// then writes to each transport. A second mutex serializes fan-out so that
// every subscriber observes messages of one topic in the order the hub
// stamped them.
//
// Topics exist only while they have subscribers. The last unsubscribe
// deletes the topic together with its history.
//
// Usage:
//
//	h := hub.New(hub.Options{HistorySize: 100})
//	id, err := h.Register(transport)
//	history, _, err := h.Subscribe(id, "room1")
//	delivered, err := h.Broadcast("room1", json.RawMessage(`{"text":"hi"}`))
//	go h.RunLiveness(ctx)
//
// Transports:
//
// Anything implementing Transport can be registered. Send must not block
// for long (the WebSocket transport enqueues into a bounded buffer and
// reports an error when it is full); a failed Send evicts the connection.
package hub

// Package persistence records broadcast messages outside the hub.
//
// The hub hands every delivered message to a MessageHook. Queue is that hook:
// it copies the message into a bounded channel and returns immediately, and a
// single worker writes queued records to a Sink. When the channel is full the
// record is dropped and counted; persistence never slows delivery down.
//
// Sinks:
//   - FileSink keeps one JSON file per topic with a retention cap
//   - RedisSink appends to a capped Redis list per topic
//   - PostgresSink inserts rows into a hub_messages table
//
// Open builds the sink named by Config.Driver.
package persistence

// Package protocol defines the JSON wire format spoken over a roomhub connection.
//
// Every frame is a single JSON object, the Envelope:
//
//	{
//	  "type":      "subscribe",
//	  "ref":       "c-17",            // optional, echoed on direct replies
//	  "payload":   {"topic": "room1"},
//	  "timestamp": 1718000000000      // unix ms, assigned by the hub
//	}
//
// Inbound types form a closed set (authenticate, subscribe, unsubscribe,
// publish, ping). DecodeRequest turns a raw frame into one of the typed
// request structs and rejects unknown types and unknown payload fields.
//
// Outbound types are connected, authenticated, subscribed, unsubscribed,
// history, message, published, pong and error. The New* constructors build
// them with their payload already encoded.
//
// Errors returned by other packages are translated to wire error codes by
// CodeFor, so every failure a client sees carries a stable machine-readable
// code alongside the human-readable message.
package protocol

package protocol

import (
	"encoding/json"
)

// Type tags an Envelope and selects dispatcher behavior.
type Type string

// Inbound message types.
const (
	TypeAuthenticate Type = "authenticate"
	TypeSubscribe    Type = "subscribe"
	TypeUnsubscribe  Type = "unsubscribe"
	TypePublish      Type = "publish"
	TypePing         Type = "ping"
)

// Outbound message types.
const (
	TypeConnected     Type = "connected"
	TypeAuthenticated Type = "authenticated"
	TypeSubscribed    Type = "subscribed"
	TypeUnsubscribed  Type = "unsubscribed"
	TypeHistory       Type = "history"
	TypeMessage       Type = "message"
	TypePublished     Type = "published"
	TypePong          Type = "pong"
	TypeError         Type = "error"
)

// Inbound reports whether t is one of the types a client may send.
func (t Type) Inbound() bool {
	switch t {
	case TypeAuthenticate, TypeSubscribe, TypeUnsubscribe, TypePublish, TypePing:
		return true
	}
	return false
}

// Envelope is the JSON object carried by every frame.
type Envelope struct {
	Type               Type            `json:"type"`
	Ref                string          `json:"ref,omitempty"`
	Payload            json.RawMessage `json:"payload,omitempty"`
	Timestamp          int64           `json:"timestamp,omitempty"`
	OriginConnectionID string          `json:"originConnectionId,omitempty"`
	OriginUserID       string          `json:"originUserId,omitempty"`
}

// Inbound payloads

type AuthenticatePayload struct {
	Token string `json:"token"`
}

type SubscribePayload struct {
	Topic string `json:"topic"`
}

type UnsubscribePayload struct {
	Topic string `json:"topic"`
}

type PublishPayload struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// Outbound payloads

type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
	RequireAuth  bool   `json:"requireAuth"`
	HeartbeatMs  int64  `json:"heartbeatMs"`
}

type AuthenticatedPayload struct {
	UserID string `json:"userId"`
}

type SubscribedPayload struct {
	Topic       string `json:"topic"`
	Subscribers int    `json:"subscribers"`
}

type UnsubscribedPayload struct {
	Topic string `json:"topic"`
}

type HistoryPayload struct {
	Topic    string     `json:"topic"`
	Messages []Envelope `json:"messages"`
}

type MessagePayload struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

type PublishedPayload struct {
	Topic     string `json:"topic"`
	Delivered int    `json:"delivered"`
}

type ErrorPayload struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

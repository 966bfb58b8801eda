package protocol

import (
	"encoding/json"
	"time"
)

// Build wraps payload in an envelope of type t. A payload that cannot be
// encoded yields an internal error envelope instead.
func Build(t Type, ref string, payload any) Envelope {
	env := Envelope{Type: t, Ref: ref}
	if payload == nil {
		return env
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Failure(ref, CodeInternal, "encode payload: "+err.Error())
	}
	env.Payload = raw
	return env
}

func Connected(connID string, requireAuth bool, heartbeat time.Duration) Envelope {
	return Build(TypeConnected, "", ConnectedPayload{
		ConnectionID: connID,
		RequireAuth:  requireAuth,
		HeartbeatMs:  heartbeat.Milliseconds(),
	})
}

func Authenticated(ref, userID string) Envelope {
	return Build(TypeAuthenticated, ref, AuthenticatedPayload{UserID: userID})
}

func Subscribed(ref, topic string, subscribers int) Envelope {
	return Build(TypeSubscribed, ref, SubscribedPayload{Topic: topic, Subscribers: subscribers})
}

func Unsubscribed(ref, topic string) Envelope {
	return Build(TypeUnsubscribed, ref, UnsubscribedPayload{Topic: topic})
}

// History replays messages, oldest first. A nil slice is sent as [].
func History(ref, topic string, messages []Envelope) Envelope {
	if messages == nil {
		messages = []Envelope{}
	}
	return Build(TypeHistory, ref, HistoryPayload{Topic: topic, Messages: messages})
}

// Message is the broadcast delivery envelope. The hub fills in the timestamp.
func Message(topic string, data json.RawMessage) Envelope {
	return Build(TypeMessage, "", MessagePayload{Topic: topic, Data: data})
}

func Published(ref, topic string, delivered int) Envelope {
	return Build(TypePublished, ref, PublishedPayload{Topic: topic, Delivered: delivered})
}

// Pong answers a ping. The hub stamps it on send.
func Pong(ref string) Envelope {
	return Envelope{Type: TypePong, Ref: ref}
}

// Failure builds an error envelope. Its payload encoding cannot fail.
func Failure(ref string, code Code, message string) Envelope {
	raw, _ := json.Marshal(ErrorPayload{Code: code, Message: message})
	return Envelope{Type: TypeError, Ref: ref, Payload: raw}
}

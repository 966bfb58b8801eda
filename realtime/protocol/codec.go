package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
)

// MaxTopicLength bounds topic names in bytes.
const MaxTopicLength = 128

// Request is a decoded inbound frame. The concrete type is one of
// AuthenticateRequest, SubscribeRequest, UnsubscribeRequest, PublishRequest
// or PingRequest.
type Request interface {
	Type() Type
	Reference() string
}

type AuthenticateRequest struct {
	Ref   string
	Token string
}

type SubscribeRequest struct {
	Ref   string
	Topic string
}

type UnsubscribeRequest struct {
	Ref   string
	Topic string
}

type PublishRequest struct {
	Ref   string
	Topic string
	Data  json.RawMessage
}

type PingRequest struct {
	Ref string
}

func (r AuthenticateRequest) Type() Type { return TypeAuthenticate }
func (r AuthenticateRequest) Reference() string { return r.Ref }
func (r SubscribeRequest) Type() Type { return TypeSubscribe }
func (r SubscribeRequest) Reference() string { return r.Ref }
func (r UnsubscribeRequest) Type() Type { return TypeUnsubscribe }
func (r UnsubscribeRequest) Reference() string { return r.Ref }
func (r PublishRequest) Type() Type { return TypePublish }
func (r PublishRequest) Reference() string { return r.Ref }
func (r PingRequest) Type() Type { return TypePing }
func (r PingRequest) Reference() string { return r.Ref }

// PeekType returns the type tag of frame without decoding the rest of it.
// It returns "" when the frame has no string type field.
func PeekType(frame []byte) Type {
	v := gjson.GetBytes(frame, "type")
	if v.Type != gjson.String {
		return ""
	}
	return Type(v.Str)
}

// PeekRef returns the ref of frame, if any. Used to correlate error replies
// for frames that fail to decode.
func PeekRef(frame []byte) string {
	v := gjson.GetBytes(frame, "ref")
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}

// DecodeRequest parses an inbound frame into its typed request.
func DecodeRequest(frame []byte) (Request, error) {
	if !gjson.ValidBytes(frame) || !gjson.ParseBytes(frame).IsObject() {
		return nil, ErrMalformedFrame
	}

	// An unknown type is reported as such even when the rest of the frame
	// would not pass the strict decode.
	if t := PeekType(frame); t != "" && !t.Inbound() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}

	var env Envelope
	if err := decodeStrict(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if !env.Type.Inbound() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	switch env.Type {
	case TypeAuthenticate:
		var p AuthenticatePayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.Token) == "" {
			return nil, fmt.Errorf("%w: token is required", ErrInvalidPayload)
		}
		return AuthenticateRequest{Ref: env.Ref, Token: p.Token}, nil

	case TypeSubscribe:
		var p SubscribePayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, err
		}
		return SubscribeRequest{Ref: env.Ref, Topic: p.Topic}, nil

	case TypeUnsubscribe:
		var p UnsubscribePayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, err
		}
		return UnsubscribeRequest{Ref: env.Ref, Topic: p.Topic}, nil

	case TypePublish:
		var p PublishPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, err
		}
		if len(p.Data) == 0 {
			return nil, fmt.Errorf("%w: data is required", ErrInvalidPayload)
		}
		return PublishRequest{Ref: env.Ref, Topic: p.Topic, Data: p.Data}, nil

	case TypePing:
		if len(env.Payload) > 0 && !isEmptyObjectOrNull(env.Payload) {
			return nil, fmt.Errorf("%w: ping takes no payload", ErrInvalidPayload)
		}
		return PingRequest{Ref: env.Ref}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

// ValidateTopic checks a topic name: non-empty, at most MaxTopicLength
// bytes, no whitespace or control characters.
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if len(topic) > MaxTopicLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidTopic, MaxTopicLength)
	}
	for _, r := range topic {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: contains whitespace or control characters", ErrInvalidTopic)
		}
	}
	return nil
}

// Marshal encodes an envelope for the wire.
func Marshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return fmt.Errorf("%w: payload is required", ErrInvalidPayload)
	}
	if err := decodeStrict(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func decodeStrict(data []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after object")
	}
	return nil
}

func isEmptyObjectOrNull(raw json.RawMessage) bool {
	v := gjson.ParseBytes(raw)
	if v.Type == gjson.Null {
		return true
	}
	if !v.IsObject() {
		return false
	}
	empty := true
	v.ForEach(func(_, _ gjson.Result) bool {
		empty = false
		return false
	})
	return empty
}

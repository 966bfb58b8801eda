// Package dispatch decodes inbound frames and routes each one to exactly one
// hub operation, replying to the sender.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/roomhub/metrics"
	"github.com/wricardo/mcp-training/roomhub/realtime/hub"
	"github.com/wricardo/mcp-training/roomhub/realtime/protocol"
)

// Hub is the subset of *hub.Hub the dispatcher drives.
type Hub interface {
	Register(t hub.Transport) (string, error)
	Unregister(id string) bool
	Authenticate(ctx context.Context, id, credential string) (hub.Identity, error)
	Touch(id string) error
	Subscribe(id, topic string) ([]protocol.Envelope, int, error)
	Unsubscribe(id, topic string) error
	Publish(id, topic string, data json.RawMessage) (int, error)
	Send(id string, env protocol.Envelope) error
}

// Options describes the hub policy announced in the connected frame.
type Options struct {
	RequireAuth bool
	Heartbeat   time.Duration
	Metrics     *metrics.Collector
	Logger      zerolog.Logger
}

// Dispatcher routes frames for every connection of one hub.
type Dispatcher struct {
	hub  Hub
	opts Options
	log  zerolog.Logger
}

func New(h Hub, opts Options) *Dispatcher {
	return &Dispatcher{
		hub:  h,
		opts: opts,
		log:  opts.Logger.With().Str("component", "dispatch").Logger(),
	}
}

// Open registers t and greets it with a connected frame.
func (d *Dispatcher) Open(t hub.Transport) (string, error) {
	id, err := d.hub.Register(t)
	if err != nil {
		return "", err
	}
	if err := d.hub.Send(id, protocol.Connected(id, d.opts.RequireAuth, d.opts.Heartbeat)); err != nil {
		return "", err
	}
	d.log.Info().Str("conn_id", id).Msg("connection opened")
	return id, nil
}

// Close unregisters the connection. It is safe to call more than once.
func (d *Dispatcher) Close(id string) {
	if d.hub.Unregister(id) {
		d.log.Info().Str("conn_id", id).Msg("connection closed")
	}
}

// Dispatch handles one inbound frame from connection id. Request failures
// are answered with an error frame and leave hub state unchanged. The
// returned error is non-nil only when the connection can no longer be
// written to, in which case the caller should stop reading from it.
func (d *Dispatcher) Dispatch(ctx context.Context, id string, frame []byte) error {
	if err := d.hub.Touch(id); err != nil {
		if errors.Is(err, hub.ErrUnknownConnection) {
			return err
		}
		return d.fail(id, protocol.PeekRef(frame), err)
	}

	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		d.opts.Metrics.InboundFrame("")
		return d.fail(id, protocol.PeekRef(frame), err)
	}
	d.opts.Metrics.InboundFrame(string(req.Type()))

	reply, err := d.handle(ctx, id, req)
	if err != nil {
		return d.fail(id, req.Reference(), err)
	}
	return d.hub.Send(id, reply)
}

// handle runs a decoded request and returns the final acknowledgment.
func (d *Dispatcher) handle(ctx context.Context, id string, req protocol.Request) (protocol.Envelope, error) {
	switch r := req.(type) {
	case protocol.AuthenticateRequest:
		ident, err := d.hub.Authenticate(ctx, id, r.Token)
		if err != nil {
			return protocol.Envelope{}, err
		}
		d.log.Info().Str("conn_id", id).Str("user_id", ident.UserID).Msg("authenticated")
		return protocol.Authenticated(r.Ref, ident.UserID), nil

	case protocol.SubscribeRequest:
		history, n, err := d.hub.Subscribe(id, r.Topic)
		if err != nil {
			return protocol.Envelope{}, err
		}
		if err := d.hub.Send(id, protocol.History(r.Ref, r.Topic, history)); err != nil {
			return protocol.Envelope{}, err
		}
		return protocol.Subscribed(r.Ref, r.Topic, n), nil

	case protocol.UnsubscribeRequest:
		if err := d.hub.Unsubscribe(id, r.Topic); err != nil {
			return protocol.Envelope{}, err
		}
		return protocol.Unsubscribed(r.Ref, r.Topic), nil

	case protocol.PublishRequest:
		delivered, err := d.hub.Publish(id, r.Topic, r.Data)
		if err != nil {
			return protocol.Envelope{}, err
		}
		return protocol.Published(r.Ref, r.Topic, delivered), nil

	case protocol.PingRequest:
		return protocol.Pong(r.Ref), nil
	}
	return protocol.Envelope{}, protocol.ErrUnknownType
}

// fail answers a request with an error frame. Delivery failures are
// returned; everything else was a client error and the connection stays open.
func (d *Dispatcher) fail(id, ref string, cause error) error {
	if errors.Is(cause, hub.ErrDeliveryFailed) || errors.Is(cause, hub.ErrUnknownConnection) {
		return cause
	}

	code := protocol.CodeFor(cause)
	d.opts.Metrics.DispatchError(string(code))
	d.log.Debug().Err(cause).Str("conn_id", id).Str("code", string(code)).Msg("request rejected")

	return d.hub.Send(id, protocol.Failure(ref, code, cause.Error()))
}

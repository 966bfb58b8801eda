package hub

import (
	"encoding/json"
	"fmt"

	"github.com/wricardo/mcp-training/roomhub/realtime/protocol"
)

// Broadcast delivers data to every subscriber of topic as a server-origin
// message and returns how many transports accepted it. Broadcasting to a
// topic without subscribers delivers nothing and keeps no history, since
// the topic does not exist.
func (h *Hub) Broadcast(name string, data json.RawMessage) (int, error) {
	if err := protocol.ValidateTopic(name); err != nil {
		return 0, err
	}
	return h.deliver(name, protocol.Message(name, data), nil)
}

// Publish broadcasts data on behalf of connection id. The message carries
// the sender's connection and user ids. Depending on Options the sender
// must be authenticated, must be subscribed to topic, and is excluded from
// delivery.
func (h *Hub) Publish(id, name string, data json.RawMessage) (int, error) {
	if err := protocol.ValidateTopic(name); err != nil {
		return 0, err
	}
	return h.deliver(name, protocol.Message(name, data), &id)
}

// deliver stamps env, appends it to the topic history, snapshots the
// recipients and writes to each of them outside the hub lock. Recipients
// whose transport fails are evicted after the fan-out completes.
func (h *Hub) deliver(name string, env protocol.Envelope, origin *string) (int, error) {
	h.fanout.Lock()
	defer h.fanout.Unlock()

	type target struct {
		id        string
		transport Transport
	}

	h.mu.Lock()
	if origin != nil {
		sender, ok := h.conns[*origin]
		if !ok {
			h.mu.Unlock()
			return 0, ErrUnknownConnection
		}
		if h.opts.RequireAuth && sender.userID == "" {
			h.mu.Unlock()
			return 0, ErrUnauthenticated
		}
		if _, member := sender.subs[name]; h.opts.PublishRequiresSubscription && !member {
			h.mu.Unlock()
			return 0, ErrNotSubscribed
		}
		env.OriginConnectionID = sender.id
		env.OriginUserID = sender.userID
	}

	stamp := h.opts.Now().UnixMilli()
	var targets []target
	if t, ok := h.topics[name]; ok {
		if stamp < t.lastStamp {
			stamp = t.lastStamp
		}
		t.lastStamp = stamp
		env.Timestamp = stamp
		t.history.push(env)

		targets = make([]target, 0, len(t.subscribers))
		for sid := range t.subscribers {
			if origin != nil && sid == *origin && !h.opts.EchoToSender {
				continue
			}
			targets = append(targets, target{id: sid, transport: h.conns[sid].transport})
		}
	} else {
		env.Timestamp = stamp
	}
	h.mu.Unlock()

	frame, err := protocol.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("encode message: %w", err)
	}

	delivered := 0
	var failed []string
	for _, tg := range targets {
		if err := tg.transport.Send(frame); err != nil {
			h.log.Debug().Err(err).Str("conn_id", tg.id).Str("topic", name).Msg("delivery failed")
			failed = append(failed, tg.id)
			continue
		}
		delivered++
	}

	for _, id := range failed {
		h.evict(id, ReasonSendFailed)
	}

	h.opts.Metrics.Broadcast(delivered, len(failed))
	if h.opts.Hook != nil {
		h.opts.Hook.OnMessage(name, env)
	}
	return delivered, nil
}

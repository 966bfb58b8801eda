package hub

import (
	"sort"

	"github.com/wricardo/mcp-training/roomhub/realtime/protocol"
)

// Subscribe adds the connection to topic, creating the topic if needed. It
// returns the topic's history (oldest first) for replay and the subscriber
// count after the change. Subscribing twice is a no-op that still returns
// the history.
func (h *Hub) Subscribe(id, name string) ([]protocol.Envelope, int, error) {
	if err := protocol.ValidateTopic(name); err != nil {
		return nil, 0, err
	}

	h.mu.Lock()
	c, ok := h.conns[id]
	if !ok {
		h.mu.Unlock()
		return nil, 0, ErrUnknownConnection
	}
	if h.opts.RequireAuth && c.userID == "" {
		h.mu.Unlock()
		return nil, 0, ErrUnauthenticated
	}

	t, exists := h.topics[name]
	if !exists {
		t = &topic{
			name:        name,
			subscribers: make(map[string]struct{}),
			history:     newRing(h.opts.HistorySize),
		}
		h.topics[name] = t
	}
	t.subscribers[id] = struct{}{}
	c.subs[name] = struct{}{}

	history := t.history.items()
	count := len(t.subscribers)
	topics := len(h.topics)
	h.mu.Unlock()

	if !exists {
		h.opts.Metrics.SetTopics(topics)
	}
	h.log.Debug().Str("conn_id", id).Str("topic", name).Int("subscribers", count).Msg("subscribed")
	return history, count, nil
}

// Unsubscribe removes the connection from topic. The topic and its history
// are deleted when its last subscriber leaves.
func (h *Hub) Unsubscribe(id, name string) error {
	h.mu.Lock()
	c, ok := h.conns[id]
	if !ok {
		h.mu.Unlock()
		return ErrUnknownConnection
	}
	if _, member := c.subs[name]; !member {
		h.mu.Unlock()
		return ErrNotSubscribed
	}
	h.leaveLocked(c, name)
	topics := len(h.topics)
	h.mu.Unlock()

	h.opts.Metrics.SetTopics(topics)
	h.log.Debug().Str("conn_id", id).Str("topic", name).Msg("unsubscribed")
	return nil
}

// UnsubscribeAll removes the connection from every topic it belongs to and
// returns the topics it left.
func (h *Hub) UnsubscribeAll(id string) []string {
	h.mu.Lock()
	c, ok := h.conns[id]
	if !ok {
		h.mu.Unlock()
		return nil
	}
	left := h.unsubscribeAllLocked(c)
	topics := len(h.topics)
	h.mu.Unlock()

	h.opts.Metrics.SetTopics(topics)
	return left
}

// SubscribersOf returns a sorted snapshot of the ids subscribed to topic.
func (h *Hub) SubscribersOf(name string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[name]
	if !ok {
		return nil
	}
	return sortedKeys(t.subscribers)
}

// IsSubscribed reports whether the connection is currently in topic.
func (h *Hub) IsSubscribed(id, name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[id]
	if !ok {
		return false
	}
	_, member := c.subs[name]
	return member
}

// TopicInfo summarizes one topic.
type TopicInfo struct {
	Name        string `json:"name"`
	Subscribers int    `json:"subscribers"`
	History     int    `json:"history"`
}

// Topics lists every topic sorted by name.
func (h *Hub) Topics() []TopicInfo {
	h.mu.Lock()
	out := make([]TopicInfo, 0, len(h.topics))
	for _, t := range h.topics {
		out = append(out, TopicInfo{
			Name:        t.name,
			Subscribers: len(t.subscribers),
			History:     t.history.len(),
		})
	}
	h.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// History returns a copy of topic's replay buffer. ok is false when the
// topic does not exist.
func (h *Hub) History(name string) (messages []protocol.Envelope, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, exists := h.topics[name]
	if !exists {
		return nil, false
	}
	return t.history.items(), true
}

// unsubscribeAllLocked requires h.mu.
func (h *Hub) unsubscribeAllLocked(c *conn) []string {
	left := sortedKeys(c.subs)
	for _, name := range left {
		h.leaveLocked(c, name)
	}
	return left
}

// leaveLocked updates both sides of the membership. Requires h.mu.
func (h *Hub) leaveLocked(c *conn, name string) {
	delete(c.subs, name)

	t, ok := h.topics[name]
	if !ok {
		panic("hub: connection " + c.id + " lists topic " + name + " missing from the index")
	}
	if _, member := t.subscribers[c.id]; !member {
		panic("hub: topic " + name + " does not list subscribed connection " + c.id)
	}
	delete(t.subscribers, c.id)
	if len(t.subscribers) == 0 {
		delete(h.topics, name)
	}
}

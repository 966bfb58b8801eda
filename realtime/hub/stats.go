package hub

// Stats is an operational snapshot of the hub.
type Stats struct {
	Connections   int            `json:"connectionCount"`
	Authenticated int            `json:"authenticatedCount"`
	Topics        int            `json:"topicCount"`
	Subscribers   map[string]int `json:"perTopicSubscriberCounts"`
}

// Stats returns connection and topic counts.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := Stats{
		Connections: len(h.conns),
		Topics:      len(h.topics),
		Subscribers: make(map[string]int, len(h.topics)),
	}
	for _, c := range h.conns {
		if c.userID != "" {
			s.Authenticated++
		}
	}
	for name, t := range h.topics {
		s.Subscribers[name] = len(t.subscribers)
	}
	return s
}

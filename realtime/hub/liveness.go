package hub

import (
	"context"
	"time"
)

// Eviction reasons reported by Sweep.
const (
	ReasonTimeout     = "timeout"
	ReasonClosed      = "transport_closed"
	ReasonProbeFailed = "probe_failed"
	ReasonSendFailed  = "send_failed"
)

// RunLiveness sweeps every LivenessPeriod until ctx is cancelled.
func (h *Hub) RunLiveness(ctx context.Context) {
	ticker := time.NewTicker(h.opts.LivenessPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := h.Sweep(); len(evicted) > 0 {
				h.log.Info().Int("evicted", len(evicted)).Msg("liveness sweep")
			}
		}
	}
}

// Sweep evicts connections that have been silent for longer than
// LivenessTimeout or whose transport reports itself closed, and probes the
// rest. A probe that cannot be sent evicts its connection. Sweep does not
// wait for probe replies; they arrive through MarkAlive. It returns the
// evicted ids.
func (h *Hub) Sweep() []string {
	type probe struct {
		id        string
		transport Transport
	}

	now := h.opts.Now()
	stale := make(map[string]string)
	var probes []probe

	h.mu.Lock()
	for id, c := range h.conns {
		switch {
		case c.transport.Closed():
			stale[id] = ReasonClosed
		case now.Sub(c.lastSeen) > h.opts.LivenessTimeout:
			stale[id] = ReasonTimeout
		default:
			probes = append(probes, probe{id: id, transport: c.transport})
		}
	}
	h.mu.Unlock()

	evicted := make([]string, 0, len(stale))
	for id, reason := range stale {
		h.evict(id, reason)
		evicted = append(evicted, id)
	}
	for _, p := range probes {
		if err := p.transport.Ping(); err != nil {
			h.log.Debug().Err(err).Str("conn_id", p.id).Msg("liveness probe failed")
			h.evict(p.id, ReasonProbeFailed)
			evicted = append(evicted, p.id)
		}
	}
	return evicted
}

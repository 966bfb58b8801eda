package hub

import (
	"github.com/wricardo/mcp-training/roomhub/realtime/protocol"
)

// ring is a fixed-capacity FIFO of delivered envelopes. When full, push
// overwrites the oldest entry.
type ring struct {
	buf   []protocol.Envelope
	start int
	n     int
}

func newRing(capacity int) *ring {
	if capacity < 0 {
		capacity = 0
	}
	return &ring{buf: make([]protocol.Envelope, capacity)}
}

func (r *ring) push(env protocol.Envelope) {
	if len(r.buf) == 0 {
		return
	}
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = env
		r.n++
		return
	}
	r.buf[r.start] = env
	r.start = (r.start + 1) % len(r.buf)
}

// items returns a copy, oldest first.
func (r *ring) items() []protocol.Envelope {
	out := make([]protocol.Envelope, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *ring) len() int { return r.n }

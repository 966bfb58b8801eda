package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/roomhub/metrics"
	"github.com/wricardo/mcp-training/roomhub/realtime/protocol"
)

const DefaultQueueSize = 1024

// Record is one persisted broadcast.
type Record struct {
	Topic        string          `json:"topic"`
	ConnectionID string          `json:"connectionId,omitempty"`
	UserID       string          `json:"userId,omitempty"`
	Data         json.RawMessage `json:"data"`
	Timestamp    int64           `json:"timestamp"`
}

// CreatedAt converts the hub timestamp.
func (r Record) CreatedAt() time.Time {
	return time.UnixMilli(r.Timestamp).UTC()
}

// RecordFrom extracts a Record from a message envelope.
func RecordFrom(topic string, env protocol.Envelope) Record {
	rec := Record{
		Topic:        topic,
		ConnectionID: env.OriginConnectionID,
		UserID:       env.OriginUserID,
		Timestamp:    env.Timestamp,
	}
	var p protocol.MessagePayload
	if err := json.Unmarshal(env.Payload, &p); err == nil {
		rec.Data = p.Data
	} else {
		rec.Data = env.Payload
	}
	return rec
}

// Sink stores records.
type Sink interface {
	Save(ctx context.Context, rec Record) error
	Close() error
}

// Queue adapts a Sink to the hub's MessageHook.
type Queue struct {
	sink    Sink
	records chan Record
	timeout time.Duration
	metrics *metrics.Collector
	log     zerolog.Logger
}

// NewQueue creates a queue holding up to size pending records.
func NewQueue(sink Sink, size int, m *metrics.Collector, logger zerolog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		sink:    sink,
		records: make(chan Record, size),
		timeout: 5 * time.Second,
		metrics: m,
		log:     logger.With().Str("component", "persistence").Logger(),
	}
}

// OnMessage enqueues the message without blocking.
func (q *Queue) OnMessage(topic string, msg protocol.Envelope) {
	select {
	case q.records <- RecordFrom(topic, msg):
	default:
		q.metrics.HookDropped()
		q.log.Warn().Str("topic", topic).Msg("persistence queue full, dropping message")
	}
}

// Pending reports how many records wait to be written.
func (q *Queue) Pending() int {
	return len(q.records)
}

// Run writes records until ctx is cancelled, then flushes whatever is
// already queued and closes the sink.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			q.flush()
			return q.sink.Close()
		case rec := <-q.records:
			q.save(context.Background(), rec)
		}
	}
}

func (q *Queue) flush() {
	for {
		select {
		case rec := <-q.records:
			q.save(context.Background(), rec)
		default:
			return
		}
	}
}

func (q *Queue) save(parent context.Context, rec Record) {
	ctx, cancel := context.WithTimeout(parent, q.timeout)
	defer cancel()

	if err := q.sink.Save(ctx, rec); err != nil {
		ev := q.log.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			ev = q.log.Warn()
		}
		ev.Err(err).Str("topic", rec.Topic).Msg("persist message")
	}
}

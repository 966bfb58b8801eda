package hub

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/wricardo/mcp-training/roomhub/metrics"
	"github.com/wricardo/mcp-training/roomhub/realtime/protocol"
)

const (
	DefaultHistorySize     = 100
	DefaultLivenessPeriod  = 30 * time.Second
	DefaultLivenessTimeout = 2 * DefaultLivenessPeriod
)

// Transport is the duplex frame channel owned by a connection.
type Transport interface {
	// Send queues one encoded frame. It must not block for long.
	Send(frame []byte) error
	// Ping sends a liveness probe. The reply arrives through MarkAlive.
	Ping() error
	// Close releases the channel. The hub calls it exactly once.
	Close() error
	// Closed reports whether the underlying channel is already gone.
	// It is called with the hub lock held and must be cheap.
	Closed() bool
}

// Identity is the result of a successful credential check.
type Identity struct {
	UserID string
	Claims map[string]any
}

// Verifier checks a bearer credential.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// MessageHook receives every broadcast message after delivery. OnMessage
// must return promptly; persistence.Queue is the asynchronous adapter.
type MessageHook interface {
	OnMessage(topic string, msg protocol.Envelope)
}

// Options configures a Hub. Zero values select the defaults.
type Options struct {
	// MaxConnections rejects Register beyond this many connections. 0 is unlimited.
	MaxConnections int
	// HistorySize is the per-topic replay buffer. Negative disables history.
	HistorySize int
	// RequireAuth rejects Subscribe and Publish from anonymous connections.
	RequireAuth bool
	// PublishRequiresSubscription rejects Publish to topics the sender is not in.
	PublishRequiresSubscription bool
	// EchoToSender delivers a published message back to its publisher.
	EchoToSender bool
	// RateLimit and RateBurst bound inbound frames per connection. 0 disables.
	RateLimit rate.Limit
	RateBurst int

	LivenessPeriod  time.Duration
	LivenessTimeout time.Duration

	Verifier Verifier
	Hook     MessageHook
	Metrics  *metrics.Collector
	Logger   zerolog.Logger

	Now   func() time.Time
	NewID func() string
}

// Hub owns every live connection and topic.
type Hub struct {
	opts Options
	log  zerolog.Logger

	mu     sync.Mutex
	conns  map[string]*conn
	topics map[string]*topic

	// fanout serializes broadcast delivery.
	fanout sync.Mutex
}

type conn struct {
	id          string
	transport   Transport
	userID      string
	state       State
	subs        map[string]struct{}
	connectedAt time.Time
	lastSeen    time.Time
	limiter     *rate.Limiter

	// authMu serializes Authenticate calls on this connection.
	authMu sync.Mutex
}

type topic struct {
	name        string
	subscribers map[string]struct{}
	history     *ring
	lastStamp   int64
}

// New creates a Hub.
func New(opts Options) *Hub {
	if opts.HistorySize == 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.LivenessPeriod <= 0 {
		opts.LivenessPeriod = DefaultLivenessPeriod
	}
	if opts.LivenessTimeout <= 0 {
		opts.LivenessTimeout = 2 * opts.LivenessPeriod
	}
	if opts.RateLimit > 0 && opts.RateBurst <= 0 {
		opts.RateBurst = int(opts.RateLimit) + 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	return &Hub{
		opts:   opts,
		log:    opts.Logger.With().Str("component", "hub").Logger(),
		conns:  make(map[string]*conn),
		topics: make(map[string]*topic),
	}
}

// Options returns the effective options after defaults were applied.
func (h *Hub) Options() Options {
	return h.opts
}

// Register adds a transport in the Connected state and returns its id.
func (h *Hub) Register(t Transport) (string, error) {
	now := h.opts.Now()

	h.mu.Lock()
	if h.opts.MaxConnections > 0 && len(h.conns) >= h.opts.MaxConnections {
		h.mu.Unlock()
		return "", ErrCapacity
	}

	id := h.opts.NewID()
	for _, taken := h.conns[id]; taken; _, taken = h.conns[id] {
		id = h.opts.NewID()
	}

	c := &conn{
		id:          id,
		transport:   t,
		state:       StateConnected,
		subs:        make(map[string]struct{}),
		connectedAt: now,
		lastSeen:    now,
	}
	if h.opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(h.opts.RateLimit, h.opts.RateBurst)
	}
	h.conns[id] = c
	count := len(h.conns)
	h.mu.Unlock()

	h.opts.Metrics.SetConnections(count)
	h.log.Debug().Str("conn_id", id).Int("connections", count).Msg("connection registered")
	return id, nil
}

// Authenticate verifies credential and binds the resulting user id to the
// connection. The verifier runs without the hub lock held; a connection
// that closes meanwhile yields ErrConnectionClosed. Only the first success
// counts.
func (h *Hub) Authenticate(ctx context.Context, id, credential string) (Identity, error) {
	h.mu.Lock()
	c := h.conns[id]
	h.mu.Unlock()
	if c == nil {
		return Identity{}, ErrUnknownConnection
	}

	c.authMu.Lock()
	defer c.authMu.Unlock()

	h.mu.Lock()
	switch {
	case h.conns[id] != c:
		h.mu.Unlock()
		return Identity{}, ErrConnectionClosed
	case c.userID != "":
		h.mu.Unlock()
		return Identity{}, ErrAlreadyAuthenticated
	}
	h.mu.Unlock()

	if h.opts.Verifier == nil {
		return Identity{}, fmt.Errorf("%w: no verifier configured", ErrAuthFailed)
	}
	ident, err := h.opts.Verifier.Verify(ctx, credential)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if ident.UserID == "" {
		return Identity{}, fmt.Errorf("%w: credential carries no user id", ErrAuthFailed)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[id] != c {
		return Identity{}, ErrConnectionClosed
	}
	c.userID = ident.UserID
	c.state = StateAuthenticated

	h.log.Debug().Str("conn_id", id).Str("user_id", ident.UserID).Msg("connection authenticated")
	return ident, nil
}

// Unregister removes the connection, leaves all of its topics and closes
// its transport. It reports whether this call did the cleanup; repeated or
// concurrent calls for the same id are no-ops.
func (h *Hub) Unregister(id string) bool {
	h.mu.Lock()
	c, ok := h.conns[id]
	if !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.conns, id)
	left := h.unsubscribeAllLocked(c)
	c.state = StateClosed
	conns, topics := len(h.conns), len(h.topics)
	h.mu.Unlock()

	if err := c.transport.Close(); err != nil {
		h.log.Debug().Err(err).Str("conn_id", id).Msg("transport close failed")
	}

	h.opts.Metrics.SetConnections(conns)
	h.opts.Metrics.SetTopics(topics)
	h.log.Debug().
		Str("conn_id", id).
		Int("topics_left", len(left)).
		Int("connections", conns).
		Msg("connection unregistered")
	return true
}

// ConnectionInfo is a point-in-time copy of a connection's state.
type ConnectionInfo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId,omitempty"`
	State       State     `json:"state"`
	Topics      []string  `json:"topics"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

// Lookup returns a copy of the connection's state.
func (h *Hub) Lookup(id string) (ConnectionInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[id]
	if !ok {
		return ConnectionInfo{}, false
	}
	return ConnectionInfo{
		ID:          c.id,
		UserID:      c.userID,
		State:       c.state,
		Topics:      sortedKeys(c.subs),
		ConnectedAt: c.connectedAt,
		LastSeenAt:  c.lastSeen,
	}, true
}

// Touch records inbound activity and charges the connection's rate limit.
func (h *Hub) Touch(id string) error {
	now := h.opts.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	c.lastSeen = now
	if c.limiter != nil && !c.limiter.AllowN(now, 1) {
		return ErrRateLimited
	}
	return nil
}

// MarkAlive records a liveness probe reply.
func (h *Hub) MarkAlive(id string) {
	now := h.opts.Now()

	h.mu.Lock()
	if c, ok := h.conns[id]; ok {
		c.lastSeen = now
	}
	h.mu.Unlock()
}

// Send delivers env to one connection. A transport failure evicts the
// connection and is reported as ErrDeliveryFailed.
func (h *Hub) Send(id string, env protocol.Envelope) error {
	h.mu.Lock()
	c, ok := h.conns[id]
	h.mu.Unlock()
	if !ok {
		return ErrUnknownConnection
	}

	if env.Timestamp == 0 {
		env.Timestamp = h.opts.Now().UnixMilli()
	}
	frame, err := protocol.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Type, err)
	}

	if err := c.transport.Send(frame); err != nil {
		h.opts.Metrics.DeliveryFailed()
		h.evict(id, ReasonSendFailed)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	h.opts.Metrics.Delivered()
	return nil
}

// Shutdown unregisters every connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.Unregister(id)
	}
	h.log.Info().Int("closed", len(ids)).Msg("hub shut down")
}

func (h *Hub) evict(id, reason string) {
	if h.Unregister(id) {
		h.opts.Metrics.Evicted(reason)
		h.log.Info().Str("conn_id", id).Str("reason", reason).Msg("connection evicted")
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

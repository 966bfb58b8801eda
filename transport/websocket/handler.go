package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/roomhub/realtime/hub"
)

// Dispatcher owns connection lifecycle and frame routing.
type Dispatcher interface {
	Open(t hub.Transport) (string, error)
	Dispatch(ctx context.Context, id string, frame []byte) error
	Close(id string)
}

// Liveness receives pong notifications.
type Liveness interface {
	MarkAlive(id string)
}

// Options configures the upgrade handler.
type Options struct {
	SendBuffer      int
	MaxMessageBytes int64
	// AllowedOrigins restricts the Origin header. Empty allows any origin.
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Handler upgrades HTTP requests and runs one Client per connection.
type Handler struct {
	dispatcher Dispatcher
	liveness   Liveness
	upgrader   websocket.Upgrader
	opts       Options
	log        zerolog.Logger
}

func NewHandler(d Dispatcher, l Liveness, opts Options) *Handler {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMessageSize
	}

	h := &Handler{
		dispatcher: d,
		liveness:   l,
		opts:       opts,
		log:        opts.Logger.With().Str("component", "websocket").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeHTTP handles WebSocket requests from clients.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := newClient(conn, h.opts.SendBuffer, h.log)
	id, err := h.dispatcher.Open(client)
	if err != nil {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("connection rejected")
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	client.log = h.log.With().Str("conn_id", id).Logger()

	go client.writePump()
	go h.readPump(client, id)
}

// readPump feeds inbound frames to the dispatcher until the connection
// fails or the hub closes the client.
func (h *Handler) readPump(c *Client, id string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.dispatcher.Close(id)
		c.Close()
	}()

	c.conn.SetReadLimit(h.opts.MaxMessageBytes)
	c.conn.SetPongHandler(func(string) error {
		h.liveness.MarkAlive(id)
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Info().Err(err).Msg("websocket read error")
			}
			return
		}
		if err := h.dispatcher.Dispatch(ctx, id, frame); err != nil {
			c.log.Debug().Err(err).Msg("stop reading")
			return
		}
	}
}

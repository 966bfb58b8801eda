package websocket

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	defaultSendBuffer     = 256
	defaultMaxMessageSize = 64 << 10
)

var (
	ErrClientClosed = errors.New("websocket client closed")
	ErrSendBuffer   = errors.New("websocket send buffer full")
)

// Client adapts one gorilla connection to the hub's Transport. Writes happen
// only on the writePump goroutine; Send and Ping hand work to it.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	ping   chan struct{}
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
	log    zerolog.Logger
}

func newClient(conn *websocket.Conn, sendBuffer int, log zerolog.Logger) *Client {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		ping: make(chan struct{}, 1),
		done: make(chan struct{}),
		log:  log,
	}
}

// Send queues frame. It fails instead of blocking when the buffer is full.
func (c *Client) Send(frame []byte) error {
	// A select with both cases ready picks at random, so done is checked
	// alone first.
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSendBuffer
	}
}

// Ping asks the write pump to send a ping control frame. A ping that is
// already pending satisfies the request.
func (c *Client) Ping() error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	select {
	case c.ping <- struct{}{}:
	default:
	}
	return nil
}

// Close stops the write pump, which sends a close frame and drops the
// connection.
func (c *Client) Close() error {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
	return nil
}

func (c *Client) Closed() bool {
	return c.closed.Load()
}

// writePump writes queued frames and pings to the connection. It owns every
// write on conn.
func (c *Client) writePump() {
	defer func() {
		c.Close()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}

		case <-c.ping:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug().Err(err).Msg("ping failed")
				return
			}

		case <-c.done:
			c.drain()
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// drain flushes frames queued before Close, such as a final error reply.
func (c *Client) drain() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

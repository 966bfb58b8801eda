// Command wsprobe connects to a roomhub WebSocket endpoint, optionally
// authenticates, subscribes to topics and prints every frame it receives.
// It is meant for smoke-testing a deployment by hand:
//
//	wsprobe --url ws://localhost:8080/ws --topic lobby --count 5
//	wsprobe --jwt-secret $SECRET --user alice --topic lobby --publish '{"text":"hi"}'
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/mcp-training/roomhub/realtime/identity"
	"github.com/wricardo/mcp-training/roomhub/realtime/protocol"
)

// Options controls one probe session.
type Options struct {
	URL    string
	Token  string
	Topics []string
	// Publish is JSON data sent to PublishTopic, or the first topic, after
	// subscribing.
	Publish      string
	PublishTopic string
	// Count stops the probe after that many message frames. Zero reads until
	// the context ends.
	Count   int
	Timeout time.Duration
}

type prober struct {
	conn *websocket.Conn
	out  io.Writer
	refs int
	seen int
}

// probe runs one session and writes a line per frame to out.
func probe(ctx context.Context, opts Options, out io.Writer) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.URL, err)
	}
	defer conn.Close()

	// Closing the socket unblocks a pending read when ctx ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	p := &prober{conn: conn, out: out}
	if err := p.run(opts); err != nil {
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && opts.Count == 0 {
				return nil
			}
			return ctx.Err()
		}
		return err
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return nil
}

func (p *prober) run(opts Options) error {
	env, err := p.read()
	if err != nil {
		return err
	}
	if env.Type != protocol.TypeConnected {
		return fmt.Errorf("expected connected frame, got %s", env.Type)
	}
	var hello protocol.ConnectedPayload
	if err := json.Unmarshal(env.Payload, &hello); err != nil {
		return fmt.Errorf("decode connected: %w", err)
	}
	fmt.Fprintf(p.out, "connected id=%s require_auth=%t heartbeat=%dms\n",
		hello.ConnectionID, hello.RequireAuth, hello.HeartbeatMs)

	if opts.Token != "" {
		reply, err := p.request(protocol.TypeAuthenticate, protocol.AuthenticatePayload{Token: opts.Token})
		if err != nil {
			return err
		}
		var ack protocol.AuthenticatedPayload
		json.Unmarshal(reply.Payload, &ack)
		fmt.Fprintf(p.out, "authenticated user=%s\n", ack.UserID)
	}

	for _, topic := range opts.Topics {
		reply, err := p.request(protocol.TypeSubscribe, protocol.SubscribePayload{Topic: topic})
		if err != nil {
			return err
		}
		var ack protocol.SubscribedPayload
		json.Unmarshal(reply.Payload, &ack)
		fmt.Fprintf(p.out, "subscribed topic=%s subscribers=%d\n", ack.Topic, ack.Subscribers)
	}

	if opts.Publish != "" {
		topic := opts.PublishTopic
		if topic == "" && len(opts.Topics) > 0 {
			topic = opts.Topics[0]
		}
		if !json.Valid([]byte(opts.Publish)) {
			return errors.New("publish data must be valid JSON")
		}
		reply, err := p.request(protocol.TypePublish, protocol.PublishPayload{
			Topic: topic,
			Data:  json.RawMessage(opts.Publish),
		})
		if err != nil {
			return err
		}
		var ack protocol.PublishedPayload
		json.Unmarshal(reply.Payload, &ack)
		fmt.Fprintf(p.out, "published topic=%s delivered=%d\n", ack.Topic, ack.Delivered)
	}

	for opts.Count == 0 || p.seen < opts.Count {
		env, err := p.read()
		if err != nil {
			return err
		}
		p.print(env)
	}
	return nil
}

// request sends a frame and reads until the reply carrying its ref. Frames
// received in between are printed.
func (p *prober) request(t protocol.Type, payload any) (protocol.Envelope, error) {
	p.refs++
	ref := strconv.Itoa(p.refs)

	frame, err := protocol.Marshal(protocol.Build(t, ref, payload))
	if err != nil {
		return protocol.Envelope{}, err
	}
	if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return protocol.Envelope{}, fmt.Errorf("send %s: %w", t, err)
	}

	for {
		env, err := p.read()
		if err != nil {
			return protocol.Envelope{}, err
		}
		if env.Ref != ref {
			p.print(env)
			continue
		}
		switch env.Type {
		case protocol.TypeError:
			var e protocol.ErrorPayload
			json.Unmarshal(env.Payload, &e)
			return env, fmt.Errorf("%s rejected: %s: %s", t, e.Code, e.Message)
		case protocol.TypeHistory:
			p.print(env)
			continue
		}
		return env, nil
	}
}

func (p *prober) read() (protocol.Envelope, error) {
	_, msg, err := p.conn.ReadMessage()
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("read: %w", err)
	}
	var env protocol.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return protocol.Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	return env, nil
}

func (p *prober) print(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeMessage:
		p.seen++
		var m protocol.MessagePayload
		json.Unmarshal(env.Payload, &m)
		origin := env.OriginConnectionID
		if origin == "" {
			origin = "server"
		}
		fmt.Fprintf(p.out, "message topic=%s from=%s ts=%d data=%s\n", m.Topic, origin, env.Timestamp, m.Data)
	case protocol.TypeHistory:
		var h protocol.HistoryPayload
		json.Unmarshal(env.Payload, &h)
		fmt.Fprintf(p.out, "history topic=%s messages=%d\n", h.Topic, len(h.Messages))
		for _, m := range h.Messages {
			var mp protocol.MessagePayload
			json.Unmarshal(m.Payload, &mp)
			fmt.Fprintf(p.out, "  ts=%d data=%s\n", m.Timestamp, mp.Data)
		}
	default:
		fmt.Fprintf(p.out, "%s ref=%s payload=%s\n", env.Type, env.Ref, env.Payload)
	}
}

// tokenFor returns token, or signs a short-lived JWT when a secret is given.
func tokenFor(token, secret, user, issuer string) (string, error) {
	if token != "" || secret == "" {
		return token, nil
	}
	if user == "" {
		return "", errors.New("--user is required with --jwt-secret")
	}
	return identity.Sign(secret, user, issuer, time.Hour)
}

func main() {
	app := &cli.Command{
		Name:  "wsprobe",
		Usage: "Connect to a roomhub WebSocket endpoint and print what arrives",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "ws://localhost:8080/ws", Usage: "WebSocket URL", Sources: cli.EnvVars("ROOMHUB_WS_URL")},
			&cli.StringFlag{Name: "token", Usage: "credential sent in an authenticate frame", Sources: cli.EnvVars("ROOMHUB_TOKEN")},
			&cli.StringFlag{Name: "jwt-secret", Usage: "sign a JWT for --user with this HMAC secret", Sources: cli.EnvVars("ROOMHUB_JWT_SECRET")},
			&cli.StringFlag{Name: "user", Usage: "user id for the signed JWT"},
			&cli.StringFlag{Name: "issuer", Usage: "issuer for the signed JWT"},
			&cli.StringSliceFlag{Name: "topic", Aliases: []string{"t"}, Usage: "topic to subscribe to (repeatable)"},
			&cli.StringFlag{Name: "publish", Usage: "JSON data to publish after subscribing"},
			&cli.StringFlag{Name: "publish-topic", Usage: "topic for --publish, defaults to the first --topic"},
			&cli.IntFlag{Name: "count", Usage: "exit after this many messages (0 waits for --timeout or Ctrl-C)"},
			&cli.DurationFlag{Name: "timeout", Usage: "overall session limit"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			token, err := tokenFor(c.String("token"), c.String("jwt-secret"), c.String("user"), c.String("issuer"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return probe(ctx, Options{
				URL:          c.String("url"),
				Token:        token,
				Topics:       c.StringSlice("topic"),
				Publish:      c.String("publish"),
				PublishTopic: c.String("publish-topic"),
				Count:        int(c.Int("count")),
				Timeout:      c.Duration("timeout"),
			}, os.Stdout)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/mcp-training/roomhub/realtime/dispatch"
	"github.com/wricardo/mcp-training/roomhub/realtime/hub"
	"github.com/wricardo/mcp-training/roomhub/realtime/identity"
	wsTransport "github.com/wricardo/mcp-training/roomhub/transport/websocket"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// syncBuffer lets the test read output while probe is still writing.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startHub(t *testing.T, opts hub.Options) (string, *hub.Hub) {
	t.Helper()

	h := hub.New(opts)
	d := dispatch.New(h, dispatch.Options{RequireAuth: opts.RequireAuth})
	srv := httptest.NewServer(wsTransport.NewHandler(d, h, wsTransport.Options{SendBuffer: 16}))
	t.Cleanup(func() {
		h.Shutdown()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", h
}

func TestProbe_ReceivesBroadcast(t *testing.T) {
	url, h := startHub(t, hub.Options{})

	var out syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- probe(context.Background(), Options{
			URL:     url,
			Topics:  []string{"lobby"},
			Count:   1,
			Timeout: 5 * time.Second,
		}, &out)
	}()

	require.Eventually(t, func() bool {
		return h.Stats().Subscribers["lobby"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err := h.Broadcast("lobby", json.RawMessage(`{"text":"hi"}`))
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("probe did not finish")
	}

	text := out.String()
	assert.Contains(t, text, "connected id=")
	assert.Contains(t, text, "history topic=lobby messages=0")
	assert.Contains(t, text, "subscribed topic=lobby subscribers=1")
	assert.Contains(t, text, `message topic=lobby from=server`)
	assert.Contains(t, text, `data={"text":"hi"}`)
}

func TestProbe_AuthenticatesAndPublishes(t *testing.T) {
	verifier, err := identity.NewJWT(identity.JWTConfig{Secret: testSecret})
	require.NoError(t, err)
	url, _ := startHub(t, hub.Options{RequireAuth: true, Verifier: verifier})

	token, err := tokenFor("", testSecret, "alice", "")
	require.NoError(t, err)

	var out syncBuffer
	err = probe(context.Background(), Options{
		URL:     url,
		Token:   token,
		Topics:  []string{"lobby"},
		Publish: `{"n":1}`,
		Timeout: 300 * time.Millisecond,
	}, &out)
	require.NoError(t, err, "a timeout without --count ends the session cleanly")

	text := out.String()
	assert.Contains(t, text, "require_auth=true")
	assert.Contains(t, text, "authenticated user=alice")
	assert.Contains(t, text, "published topic=lobby delivered=0")
}

func TestProbe_RejectedRequest(t *testing.T) {
	url, _ := startHub(t, hub.Options{})

	var out syncBuffer
	err := probe(context.Background(), Options{
		URL:     url,
		Topics:  []string{""},
		Timeout: 2 * time.Second,
	}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe rejected")
}

func TestProbe_InvalidPublishData(t *testing.T) {
	url, _ := startHub(t, hub.Options{})

	err := probe(context.Background(), Options{
		URL:     url,
		Topics:  []string{"lobby"},
		Publish: "{not json",
		Timeout: 2 * time.Second,
	}, &syncBuffer{})
	assert.EqualError(t, err, "publish data must be valid JSON")
}

func TestProbe_DialFailure(t *testing.T) {
	err := probe(context.Background(), Options{URL: "ws://127.0.0.1:1/ws", Timeout: time.Second}, &syncBuffer{})
	assert.Error(t, err)
}

func TestProbe_CountNotReachedBeforeTimeout(t *testing.T) {
	url, _ := startHub(t, hub.Options{})

	err := probe(context.Background(), Options{
		URL:     url,
		Topics:  []string{"quiet"},
		Count:   1,
		Timeout: 200 * time.Millisecond,
	}, &syncBuffer{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenFor(t *testing.T) {
	token, err := tokenFor("given", testSecret, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, "given", token)

	token, err = tokenFor("", "", "alice", "")
	require.NoError(t, err)
	assert.Empty(t, token)

	_, err = tokenFor("", testSecret, "", "")
	assert.Error(t, err)

	token, err = tokenFor("", testSecret, "bob", "roomhub")
	require.NoError(t, err)
	verifier, err := identity.NewJWT(identity.JWTConfig{Secret: testSecret, Issuer: "roomhub"})
	require.NoError(t, err)
	id, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "bob", id.UserID)
}

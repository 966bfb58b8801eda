package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/mcp-training/roomhub/realtime/hub"
	"github.com/wricardo/mcp-training/roomhub/realtime/protocol"
)

// MockHub implements HubService for testing
type MockHub struct {
	StatsFunc      func() hub.Stats
	TopicsFunc     func() []hub.TopicInfo
	HistoryFunc    func(topic string) ([]protocol.Envelope, bool)
	BroadcastFunc  func(topic string, data json.RawMessage) (int, error)
	LookupFunc     func(id string) (hub.ConnectionInfo, bool)
	UnregisterFunc func(id string) bool
}

func (m *MockHub) Stats() hub.Stats {
	if m.StatsFunc != nil {
		return m.StatsFunc()
	}
	return hub.Stats{Subscribers: map[string]int{}}
}

func (m *MockHub) Topics() []hub.TopicInfo {
	if m.TopicsFunc != nil {
		return m.TopicsFunc()
	}
	return []hub.TopicInfo{}
}

func (m *MockHub) History(topic string) ([]protocol.Envelope, bool) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(topic)
	}
	return nil, false
}

func (m *MockHub) Broadcast(topic string, data json.RawMessage) (int, error) {
	if m.BroadcastFunc != nil {
		return m.BroadcastFunc(topic, data)
	}
	return 0, nil
}

func (m *MockHub) Lookup(id string) (hub.ConnectionInfo, bool) {
	if m.LookupFunc != nil {
		return m.LookupFunc(id)
	}
	return hub.ConnectionInfo{}, false
}

func (m *MockHub) Unregister(id string) bool {
	if m.UnregisterFunc != nil {
		return m.UnregisterFunc(id)
	}
	return false
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	s := NewServer(&MockHub{}, Options{})
	w := do(t, s, "GET", "/api/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestStats(t *testing.T) {
	s := NewServer(&MockHub{
		StatsFunc: func() hub.Stats {
			return hub.Stats{Connections: 3, Authenticated: 1, Topics: 1, Subscribers: map[string]int{"room1": 2}}
		},
	}, Options{})

	w := do(t, s, "GET", "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"connectionCount":3,"authenticatedCount":1,"topicCount":1,"perTopicSubscriberCounts":{"room1":2}}`, w.Body.String())
}

func TestListTopics(t *testing.T) {
	s := NewServer(&MockHub{
		TopicsFunc: func() []hub.TopicInfo {
			return []hub.TopicInfo{{Name: "a", Subscribers: 2, History: 5}}
		},
	}, Options{})

	w := do(t, s, "GET", "/api/topics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"topics":[{"name":"a","subscribers":2,"history":5}]}`, w.Body.String())
}

func TestTopicHistory(t *testing.T) {
	var msgs []protocol.Envelope
	for i := 1; i <= 5; i++ {
		env := protocol.Message("room1", json.RawMessage(fmt.Sprintf(`%d`, i)))
		env.Timestamp = int64(i)
		msgs = append(msgs, env)
	}
	s := NewServer(&MockHub{
		HistoryFunc: func(topic string) ([]protocol.Envelope, bool) {
			if topic != "room1" {
				return nil, false
			}
			return msgs, true
		},
	}, Options{})

	tests := []struct {
		name  string
		path  string
		code  int
		count int
		first float64
	}{
		{"all", "/api/topics/room1/history", http.StatusOK, 5, 1},
		{"limited", "/api/topics/room1/history?limit=2", http.StatusOK, 2, 4},
		{"limit above size", "/api/topics/room1/history?limit=50", http.StatusOK, 5, 1},
		{"bad limit", "/api/topics/room1/history?limit=x", http.StatusBadRequest, 0, 0},
		{"missing topic", "/api/topics/other/history", http.StatusNotFound, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, "GET", tt.path, "")
			require.Equal(t, tt.code, w.Code)
			if tt.code != http.StatusOK {
				assert.Contains(t, decode(t, w), "error")
				return
			}
			body := decode(t, w)
			messages := body["messages"].([]interface{})
			require.Len(t, messages, tt.count)
			assert.Equal(t, tt.first, messages[0].(map[string]interface{})["timestamp"])
		})
	}
}

func TestBroadcast(t *testing.T) {
	var gotTopic string
	var gotData json.RawMessage
	s := NewServer(&MockHub{
		BroadcastFunc: func(topic string, data json.RawMessage) (int, error) {
			gotTopic, gotData = topic, data
			return 4, nil
		},
	}, Options{})

	w := do(t, s, "POST", "/api/topics/room1/broadcast", `{"text":"maintenance at noon"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"topic":"room1","delivered":4}`, w.Body.String())
	assert.Equal(t, "room1", gotTopic)
	assert.JSONEq(t, `{"text":"maintenance at noon"}`, string(gotData))
}

func TestBroadcastRejects(t *testing.T) {
	s := NewServer(&MockHub{
		BroadcastFunc: func(topic string, data json.RawMessage) (int, error) {
			if topic == "bad%20topic" || strings.Contains(topic, " ") {
				return 0, fmt.Errorf("%w: contains whitespace", protocol.ErrInvalidTopic)
			}
			return 0, errors.New("boom")
		},
	}, Options{})

	w := do(t, s, "POST", "/api/topics/room1/broadcast", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, "POST", "/api/topics/room1/broadcast", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, "POST", "/api/topics/bad%20topic/broadcast", `1`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, "POST", "/api/topics/room1/broadcast", `1`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	big := `"` + strings.Repeat("x", maxBroadcastBody) + `"`
	w = do(t, s, "POST", "/api/topics/room1/broadcast", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestConnections(t *testing.T) {
	s := NewServer(&MockHub{
		LookupFunc: func(id string) (hub.ConnectionInfo, bool) {
			if id != "c1" {
				return hub.ConnectionInfo{}, false
			}
			return hub.ConnectionInfo{ID: "c1", UserID: "alice", State: hub.StateAuthenticated, Topics: []string{"room1"}}, true
		},
		UnregisterFunc: func(id string) bool { return id == "c1" },
	}, Options{})

	w := do(t, s, "GET", "/api/connections/c1", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "authenticated", body["state"])
	assert.Equal(t, "alice", body["userId"])

	w = do(t, s, "GET", "/api/connections/zz", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, "DELETE", "/api/connections/c1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, s, "DELETE", "/api/connections/zz", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMountedHandlers(t *testing.T) {
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	m := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("# metrics")) })
	s := NewServer(&MockHub{}, Options{WebSocket: ws, Metrics: m})

	assert.Equal(t, http.StatusTeapot, do(t, s, "GET", "/ws", "").Code)
	assert.Equal(t, "# metrics", do(t, s, "GET", "/metrics", "").Body.String())

	bare := NewServer(&MockHub{}, Options{})
	assert.Equal(t, http.StatusNotFound, do(t, bare, "GET", "/ws", "").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := NewServer(&MockHub{}, Options{})
	w := do(t, s, "POST", "/api/stats", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAgainstRealHub(t *testing.T) {
	h := hub.New(hub.Options{})
	s := NewServer(h, Options{})

	w := do(t, s, "POST", "/api/topics/empty/broadcast", `{"x":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"topic":"empty","delivered":0}`, w.Body.String())

	w = do(t, s, "GET", "/api/topics/empty/history", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var buf bytes.Buffer
	buf.WriteString(`{"a":[1,2,3]}`)
	w = do(t, s, "POST", "/api/topics/has%20space/broadcast", buf.String())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type recordingTransport struct {
	frames [][]byte
}

func (r *recordingTransport) Send(frame []byte) error {
	r.frames = append(r.frames, frame)
	return nil
}

func (r *recordingTransport) Ping() error  { return nil }
func (r *recordingTransport) Close() error { return nil }
func (r *recordingTransport) Closed() bool { return false }

func TestTopicWithSlash(t *testing.T) {
	h := hub.New(hub.Options{})
	s := NewServer(h, Options{})

	tr := &recordingTransport{}
	id, err := h.Register(tr)
	require.NoError(t, err)
	_, _, err = h.Subscribe(id, "team/b")
	require.NoError(t, err)

	w := do(t, s, "POST", "/api/topics/team%2Fb/broadcast", `{"n":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"topic":"team/b","delivered":1}`, w.Body.String())
	assert.Len(t, tr.frames, 1)

	w = do(t, s, "GET", "/api/topics/team%2Fb/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "team/b", out["topic"])
	assert.Len(t, out["messages"], 1)

	// The unescaped form is a different route shape and does not match.
	w = do(t, s, "POST", "/api/topics/team/b/broadcast", `{"n":1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, "GET", "/api/topics/team_b/history", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

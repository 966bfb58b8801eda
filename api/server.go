package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/roomhub/realtime/hub"
	"github.com/wricardo/mcp-training/roomhub/realtime/protocol"
)

const maxBroadcastBody = 64 << 10

// HubService is the hub surface exposed over HTTP.
type HubService interface {
	Stats() hub.Stats
	Topics() []hub.TopicInfo
	History(topic string) ([]protocol.Envelope, bool)
	Broadcast(topic string, data json.RawMessage) (int, error)
	Lookup(id string) (hub.ConnectionInfo, bool)
	Unregister(id string) bool
}

// Options wires the handlers that live outside this package.
type Options struct {
	// WebSocket serves /ws when set.
	WebSocket http.Handler
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  zerolog.Logger
}

// Server represents the REST API server
type Server struct {
	hub     HubService
	router  *mux.Router
	opts    Options
	log     zerolog.Logger
	started time.Time
}

// NewServer creates a new API server
func NewServer(h HubService, opts Options) *Server {
	s := &Server{
		hub:     h,
		router:  mux.NewRouter().UseEncodedPath(),
		opts:    opts,
		log:     opts.Logger.With().Str("component", "api").Logger(),
		started: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.logRequests)

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	// Topics
	api.HandleFunc("/topics", s.handleListTopics).Methods("GET")
	api.HandleFunc("/topics/{topic}/history", s.handleTopicHistory).Methods("GET")
	api.HandleFunc("/topics/{topic}/broadcast", s.handleBroadcast).Methods("POST")

	// Connections
	api.HandleFunc("/connections/{id}", s.handleGetConnection).Methods("GET")
	api.HandleFunc("/connections/{id}", s.handleDisconnect).Methods("DELETE")

	if s.opts.Metrics != nil {
		s.router.Handle("/metrics", s.opts.Metrics).Methods("GET")
	}
	if s.opts.WebSocket != nil {
		s.router.Handle("/ws", s.opts.WebSocket)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("api request")
	})
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.hub.Stats())
}

func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"topics": s.hub.Topics(),
	})
}

// topicVar decodes the {topic} segment. The router matches on the encoded
// path so a topic containing "/" arrives as one %2F-escaped segment.
func topicVar(w http.ResponseWriter, r *http.Request) (string, bool) {
	topic, err := url.PathUnescape(mux.Vars(r)["topic"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "malformed topic")
		return "", false
	}
	return topic, true
}

// handleTopicHistory returns the replay buffer, optionally only the last
// ?limit= entries.
func (s *Server) handleTopicHistory(w http.ResponseWriter, r *http.Request) {
	topic, ok := topicVar(w, r)
	if !ok {
		return
	}

	messages, ok := s.hub.History(topic)
	if !ok {
		respondError(w, http.StatusNotFound, "topic not found")
		return
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if limit < len(messages) {
			messages = messages[len(messages)-limit:]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"topic":    topic,
		"messages": messages,
	})
}

// handleBroadcast sends the request body, which must be JSON, to every
// subscriber of the topic as a server-origin message.
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	topic, ok := topicVar(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBroadcastBody))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}
	if len(body) == 0 || !json.Valid(body) {
		respondError(w, http.StatusBadRequest, "body must be valid JSON")
		return
	}

	delivered, err := s.hub.Broadcast(topic, json.RawMessage(body))
	if err != nil {
		if errors.Is(err, protocol.ErrInvalidTopic) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Info().Str("topic", topic).Int("delivered", delivered).Msg("admin broadcast")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"topic":     topic,
		"delivered": delivered,
	})
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	info, ok := s.hub.Lookup(mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusNotFound, "connection not found")
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.hub.Unregister(id) {
		respondError(w, http.StatusNotFound, "connection not found")
		return
	}
	s.log.Info().Str("conn_id", id).Msg("connection closed by admin")
	w.WriteHeader(http.StatusNoContent)
}

// Package api provides the HTTP admin surface of roomhub.
//
// The api package implements:
//   - Health and hub statistics
//   - Topic listing and history inspection
//   - Server-origin broadcast into a topic
//   - Connection inspection and forced disconnect
//   - Mounting of the WebSocket and metrics handlers
//
// Endpoints:
//
//   - GET /api/health - Liveness of the process
//   - GET /api/stats - Connection, authenticated and topic counts
//   - GET /api/topics - Topics with subscriber and history counts
//   - GET /api/topics/{topic}/history?limit=N - Replay buffer, oldest first
//   - POST /api/topics/{topic}/broadcast - Body is the message data (JSON)
//   - GET /api/connections/{id} - One connection's state and topics
//   - DELETE /api/connections/{id} - Close a connection
//   - GET /metrics - Prometheus metrics
//   - GET /ws - WebSocket upgrade
//
// Request/Response Format:
//
// All endpoints return JSON. Errors use {"error": "message"} with a
// matching HTTP status.
//
// Usage:
//
//	server := api.NewServer(h, api.Options{
//		WebSocket: wsHandler,
//		Metrics:   metrics.Handler(registry),
//	})
//	http.ListenAndServe(":8080", server)
package api

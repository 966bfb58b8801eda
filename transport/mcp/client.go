package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/mcp-training/roomhub/realtime/hub"
	"github.com/wricardo/mcp-training/roomhub/realtime/protocol"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"roomhub",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`roomhub - MCP Interface

Administrative access to a running roomhub server. Clients connect over
WebSocket, subscribe to topics and publish messages; these tools let you
inspect that activity and inject server messages.

AVAILABLE TOOLS:
- hub_stats: Connection, authenticated and topic counts
- list_topics: Topics with their subscriber and history counts
- topic_history: Recent messages of one topic, oldest first
- broadcast: Send a JSON message to every subscriber of a topic
- get_connection: State and subscriptions of one connection
- disconnect: Close one connection

Topics exist only while they have subscribers, so history disappears
when the last subscriber leaves.`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "hub_stats",
		Description: "Get connection and topic counts of the hub",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleHubStats)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_topics",
		Description: "List all topics with subscriber and history counts",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListTopics)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "topic_history",
		Description: "Get the recent messages of a topic, oldest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"topic": map[string]interface{}{
					"type":        "string",
					"description": "Topic name",
				},
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Only return the last N messages (optional)",
				},
			},
			Required: []string{"topic"},
		},
	}, c.handleTopicHistory)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "broadcast",
		Description: "Send a server message to every subscriber of a topic",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"topic": map[string]interface{}{
					"type":        "string",
					"description": "Topic name",
				},
				"data": map[string]interface{}{
					"description": "Message data; any JSON value. Strings that hold JSON are sent as that JSON.",
				},
			},
			Required: []string{"topic", "data"},
		},
	}, c.handleBroadcast)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_connection",
		Description: "Get the state and subscriptions of a connection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"connection_id": map[string]interface{}{
					"type":        "string",
					"description": "Connection ID",
				},
			},
			Required: []string{"connection_id"},
		},
	}, c.handleGetConnection)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "disconnect",
		Description: "Close a connection and remove it from all topics",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"connection_id": map[string]interface{}{
					"type":        "string",
					"description": "Connection ID",
				},
			},
			Required: []string{"connection_id"},
		},
	}, c.handleDisconnect)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// ServeStdio serves the tools over stdin/stdout until the client goes away.
func (c *Client) ServeStdio() error {
	return server.ServeStdio(c.mcpServer)
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body []byte, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

// Tool handlers

func (c *Client) handleHubStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stats hub.Stats
	if err := c.apiCall(ctx, "GET", "/api/stats", nil, &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatStats(stats)), nil
}

func (c *Client) handleListTopics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Topics []hub.TopicInfo `json:"topics"`
	}
	if err := c.apiCall(ctx, "GET", "/api/topics", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(response.Topics) == 0 {
		return mcp.NewToolResultText("No active topics.\n"), nil
	}
	result := fmt.Sprintf("Topics (%d):\n\n", len(response.Topics))
	for _, t := range response.Topics {
		result += fmt.Sprintf("- %s (subscribers: %d, history: %d)\n", t.Name, t.Subscribers, t.History)
	}
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleTopicHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	topic, _ := args["topic"].(string)
	if topic == "" {
		return mcp.NewToolResultError("topic is required"), nil
	}

	path := fmt.Sprintf("/api/topics/%s/history", url.PathEscape(topic))
	if limit, ok := args["limit"].(float64); ok && limit > 0 {
		path += fmt.Sprintf("?limit=%d", int(limit))
	}

	var response struct {
		Topic    string              `json:"topic"`
		Messages []protocol.Envelope `json:"messages"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatHistory(response.Topic, response.Messages)), nil
}

func (c *Client) handleBroadcast(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	topic, _ := args["topic"].(string)
	if topic == "" {
		return mcp.NewToolResultError("topic is required"), nil
	}
	raw, present := args["data"]
	if !present {
		return mcp.NewToolResultError("data is required"), nil
	}

	body, err := broadcastBody(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var response struct {
		Topic     string `json:"topic"`
		Delivered int    `json:"delivered"`
	}
	path := fmt.Sprintf("/api/topics/%s/broadcast", url.PathEscape(topic))
	if err := c.apiCall(ctx, "POST", path, body, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Broadcast to %s delivered to %d subscriber(s)\n", response.Topic, response.Delivered)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGetConnection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := request.GetArguments()["connection_id"].(string)
	if id == "" {
		return mcp.NewToolResultError("connection_id is required"), nil
	}

	var info hub.ConnectionInfo
	if err := c.apiCall(ctx, "GET", "/api/connections/"+url.PathEscape(id), nil, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatConnection(info)), nil
}

func (c *Client) handleDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := request.GetArguments()["connection_id"].(string)
	if id == "" {
		return mcp.NewToolResultError("connection_id is required"), nil
	}

	if err := c.apiCall(ctx, "DELETE", "/api/connections/"+url.PathEscape(id), nil, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Connection %s closed\n", id)), nil
}

// broadcastBody encodes a tool argument as the broadcast request body.
// Agents often pass JSON as a string; such strings are sent unchanged.
func broadcastBody(data interface{}) ([]byte, error) {
	if s, ok := data.(string); ok && json.Valid([]byte(s)) {
		trimmed := strings.TrimSpace(s)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			return []byte(trimmed), nil
		}
	}
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode data: %w", err)
	}
	return body, nil
}

func formatStats(s hub.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Connections: %d (authenticated: %d)\n", s.Connections, s.Authenticated)
	fmt.Fprintf(&b, "Topics: %d\n", s.Topics)

	names := make([]string, 0, len(s.Subscribers))
	for name := range s.Subscribers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "  %s: %d subscriber(s)\n", name, s.Subscribers[name])
	}
	return b.String()
}

func formatHistory(topic string, messages []protocol.Envelope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "History of %s (%d message(s)):\n\n", topic, len(messages))
	for _, env := range messages {
		var p protocol.MessagePayload
		json.Unmarshal(env.Payload, &p)

		from := "server"
		if env.OriginConnectionID != "" {
			from = env.OriginConnectionID
			if env.OriginUserID != "" {
				from += " (" + env.OriginUserID + ")"
			}
		}
		ts := time.UnixMilli(env.Timestamp).UTC().Format(time.RFC3339)
		fmt.Fprintf(&b, "[%s] %s: %s\n", ts, from, string(p.Data))
	}
	return b.String()
}

func formatConnection(info hub.ConnectionInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Connection: %s\n", info.ID)
	fmt.Fprintf(&b, "State: %s\n", info.State)
	if info.UserID != "" {
		fmt.Fprintf(&b, "User: %s\n", info.UserID)
	}
	fmt.Fprintf(&b, "Connected: %s\n", info.ConnectedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Last seen: %s\n", info.LastSeenAt.Format(time.RFC3339))
	if len(info.Topics) == 0 {
		b.WriteString("Topics: none\n")
	} else {
		fmt.Fprintf(&b, "Topics: %s\n", strings.Join(info.Topics, ", "))
	}
	return b.String()
}

// Package mcp exposes roomhub's admin API as Model Context Protocol tools.
//
// The mcp package implements:
//   - An MCP server with tools backed by the REST API
//   - Stdio transport for local MCP clients
//
// MCP Tools:
//
// The package exposes the following tools for AI agents:
//   - hub_stats: Connection, authenticated and topic counts
//   - list_topics: Topics with subscriber and history counts
//   - topic_history: Recent messages of a topic, optionally limited
//   - broadcast: Server-origin message to every subscriber of a topic
//   - get_connection: State and subscriptions of one connection
//   - disconnect: Close a connection
//
// Architecture:
//
// The client holds no hub state. Every tool is one HTTP call to a running
// roomhub server, so the MCP process can run anywhere the API is reachable.
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	if err := client.ServeStdio(); err != nil {
//		log.Fatal(err)
//	}
package mcp

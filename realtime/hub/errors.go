package hub

import (
	"github.com/wricardo/mcp-training/roomhub/realtime/protocol"
)

var (
	ErrUnknownConnection    = protocol.NewError(protocol.CodeConnectionClosed, "connection not found")
	ErrConnectionClosed     = protocol.NewError(protocol.CodeConnectionClosed, "connection closed")
	ErrCapacity             = protocol.NewError(protocol.CodeCapacity, "too many connections")
	ErrAlreadyAuthenticated = protocol.NewError(protocol.CodeAlreadyAuthenticated, "already authenticated")
	ErrAuthFailed           = protocol.NewError(protocol.CodeAuthFailed, "authentication failed")
	ErrUnauthenticated      = protocol.NewError(protocol.CodeUnauthenticated, "authentication required")
	ErrNotSubscribed        = protocol.NewError(protocol.CodeNotSubscribed, "not subscribed to topic")
	ErrRateLimited          = protocol.NewError(protocol.CodeRateLimited, "rate limit exceeded")
	ErrDeliveryFailed       = protocol.NewError(protocol.CodeConnectionClosed, "delivery failed")
)

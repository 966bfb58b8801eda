package protocol

import (
	"errors"
)

// Code is the machine-readable reason carried by an error frame.
type Code string

const (
	CodeBadRequest           Code = "bad_request"
	CodeUnknownType          Code = "unknown_type"
	CodeAuthFailed           Code = "auth_failed"
	CodeAlreadyAuthenticated Code = "already_authenticated"
	CodeUnauthenticated      Code = "unauthenticated"
	CodeNotSubscribed        Code = "not_subscribed"
	CodeInvalidTopic         Code = "invalid_topic"
	CodeRateLimited          Code = "rate_limited"
	CodeCapacity             Code = "capacity"
	CodeConnectionClosed     Code = "connection_closed"
	CodeInternal             Code = "internal"
)

// Error is an error with a wire code attached. Packages declare their
// sentinel errors with NewError so that CodeFor can classify them after
// any amount of wrapping.
type Error struct {
	code Code
	msg  string
}

// NewError returns an error that reports code on the wire.
func NewError(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Code returns the wire code of e.
func (e *Error) Code() Code { return e.code }

// Decode errors.
var (
	ErrMalformedFrame = NewError(CodeBadRequest, "malformed frame")
	ErrInvalidPayload = NewError(CodeBadRequest, "invalid payload")
	ErrUnknownType    = NewError(CodeUnknownType, "unknown message type")
	ErrInvalidTopic   = NewError(CodeInvalidTopic, "invalid topic")
)

// CodeFor classifies err. Errors without a code map to CodeInternal.
func CodeFor(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.code
	}
	return CodeInternal
}

// Copyright 2025 Joseph Cumines

// Package transport provides the line-delimited JSON-RPC 2.0 message
// transport, plus the metrics registry and operations endpoint that observe
// the traffic flowing over it.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCodeInternalError is the JSON-RPC code used for every protocol fault
// reported by the server.
const ErrCodeInternalError = -32603

// ErrInternalMessage is the error message paired with ErrCodeInternalError.
const ErrInternalMessage = "Internal error"

// ErrEndOfInput is returned by ReadMessage when the peer signalled the end
// of the session, either by closing the stream or by sending an empty line.
var ErrEndOfInput = errors.New("end of input")

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("transport is closed")

// ParseError reports a line that could not be decoded as a JSON-RPC
// message. The stream remains usable; the caller should respond to the
// fault and keep reading.
type ParseError struct {
	Err error
	// ID is the request id, when it could be recovered from the line.
	ID json.RawMessage
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Transport defines the interface for JSON-RPC message transport.
//
// Error handling:
//   - ErrEndOfInput indicates the peer ended the session
//   - *ParseError indicates one malformed message; reading may continue
//   - ErrClosed indicates the transport was closed locally
//   - Other errors indicate transport-layer failures
type Transport interface {
	// ReadMessage blocks until the next message is available.
	ReadMessage() (*Message, error)

	// WriteMessage writes one message and flushes it to the peer.
	WriteMessage(msg *Message) error

	// Close closes the transport. Close is idempotent.
	Close() error

	// IsClosed returns whether the transport has been closed.
	IsClosed() bool
}

// Message represents a JSON-RPC 2.0 request, response, or notification.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Message struct {
	// Error is present only in error responses; mutually exclusive with Result.
	Error *ErrorObj `json:"error,omitempty"`

	JSONRPC string `json:"jsonrpc"`

	// Method is present only in requests and notifications.
	Method string `json:"method,omitempty"`

	// ID is any JSON value; omitted for notifications.
	ID json.RawMessage `json:"id,omitempty"`

	Params json.RawMessage `json:"params,omitempty"`

	// Result is present only in success responses.
	Result json.RawMessage `json:"result,omitempty"`
}

// ErrorObj represents a JSON-RPC 2.0 error object.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type ErrorObj struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Code    int             `json:"code"`
}

// NewFault builds the error response for a protocol fault:
// code -32603, message "Internal error", and data {"details": details}.
func NewFault(id json.RawMessage, details string) *Message {
	data, _ := json.Marshal(struct {
		Details string `json:"details"`
	}{details})
	return &Message{
		JSONRPC: "2.0",
		ID:      id,
		Error: &ErrorObj{
			Code:    ErrCodeInternalError,
			Message: ErrInternalMessage,
			Data:    data,
		},
	}
}

var _ Transport = (*StdioTransport)(nil)

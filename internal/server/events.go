// Copyright 2025 Joseph Cumines
//
// Event tool handlers

package server

import (
	"context"
)

// handleRaiseEvent handles the raise_event tool. Event-based automation is
// not supported; the tool is advertised so clients get a clear failure.
func (s *MCPServer) handleRaiseEvent(_ context.Context, call *ToolCall) (*ToolResult, error) {
	var params struct {
		EventName string `json:"eventName"`
	}
	if fail := decodeArgs(call, &params); fail != nil {
		return fail, nil
	}
	return failureResultf("Raising events is not supported (event %q)", params.EventName), nil
}

// handleListenForEvent handles the listen_for_event tool. See
// handleRaiseEvent.
func (s *MCPServer) handleListenForEvent(_ context.Context, call *ToolCall) (*ToolResult, error) {
	var params struct {
		EventName string `json:"eventName"`
	}
	if fail := decodeArgs(call, &params); fail != nil {
		return fail, nil
	}
	return failureResultf("Listening for events is not supported (event %q)", params.EventName), nil
}

// Copyright 2025 Joseph Cumines
//
// Input tool handlers

package server

import (
	"context"
)

// handleSendKeys handles the send_keys tool. Keys go to whatever has focus;
// there is no element to resolve.
func (s *MCPServer) handleSendKeys(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	var params struct {
		Keys string `json:"keys"`
	}
	if fail := decodeArgs(call, &params); fail != nil {
		return fail, nil
	}

	prov, fail := s.automation(ctx, call.Name)
	if fail != nil {
		return fail, nil
	}

	if err := prov.SendKeys(ctx, params.Keys); err != nil {
		return providerErrorResult(err, call.Name), nil
	}
	return successResult(map[string]any{"length": len([]rune(params.Keys))}), nil
}

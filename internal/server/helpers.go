// Copyright 2025 Joseph Cumines
//
// Helper functions for tool handlers

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joeycumines/uiautomation-mcp/internal/poll"
	"github.com/joeycumines/uiautomation-mcp/internal/provider"
)

// payloadResult wraps payload, serialized as JSON, as a single text content.
func payloadResult(payload map[string]any, failed bool) *ToolResult {
	text, err := json.Marshal(payload)
	if err != nil {
		text, _ = json.Marshal(map[string]any{"success": false, "error": err.Error()})
		failed = true
	}
	return &ToolResult{
		Content: []Content{{Type: "text", Text: string(text)}},
		Failed:  failed,
	}
}

// successResult creates a {"success":true, ...fields} result.
func successResult(fields map[string]any) *ToolResult {
	payload := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["success"] = true
	return payloadResult(payload, false)
}

// failureResult creates a {"success":false,"error":msg} result.
func failureResult(msg string) *ToolResult {
	return payloadResult(map[string]any{"success": false, "error": msg}, true)
}

// failureResultf is the sprintf version of failureResult.
func failureResultf(format string, args ...any) *ToolResult {
	return failureResult(fmt.Sprintf(format, args...))
}

func isAbsent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || string(raw) == "null"
}

// argumentFields splits the arguments object into its fields. Absent
// arguments are an empty object.
func argumentFields(raw json.RawMessage) (map[string]json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if isAbsent(raw) {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// decodeArgs decodes the call's arguments into v. A type mismatch is a
// domain failure, returned as the result the handler should report.
func decodeArgs(call *ToolCall, v any) *ToolResult {
	if isAbsent(call.Arguments) {
		return nil
	}
	if err := json.Unmarshal(call.Arguments, v); err != nil {
		return invalidArguments(call.Name, err)
	}
	return nil
}

func invalidArguments(tool string, err error) *ToolResult {
	return failureResultf("Invalid arguments for %s: %v", tool, err)
}

// timeoutOr converts an optional millisecond argument, falling back to def.
func timeoutOr(ms int, def time.Duration) time.Duration {
	if ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

// formatProviderError formats a provider error with context for MCP tool
// responses, adding an actionable suggestion for the common cases.
func formatProviderError(err error, toolName string) string {
	if err == nil {
		return ""
	}

	suggestion := ""
	switch {
	case errors.Is(err, provider.ErrStaleElement):
		suggestion = "The element no longer exists. Find it again to get a new elementId"
	case errors.Is(err, provider.ErrNotFound):
		suggestion = "Verify the element or process exists and the identifier is correct"
	case errors.Is(err, provider.ErrRejected):
		suggestion = "The target refused the operation. Check that it is enabled, visible and in the expected state"
	case errors.Is(err, provider.ErrUnavailable):
		suggestion = "The automation provider may be down or unreachable. Check provider status"
	case errors.Is(err, poll.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		suggestion = "Operation timed out. Try increasing timeoutMs or check that the application is responsive"
	}

	result := fmt.Sprintf("Error in %s: %v", toolName, err)
	if suggestion != "" {
		result += fmt.Sprintf("\nSuggestion: %s", suggestion)
	}
	return result
}

// providerErrorResult is failureResult of formatProviderError.
func providerErrorResult(err error, toolName string) *ToolResult {
	return failureResult(formatProviderError(err, toolName))
}

// automation returns the session's provider, or a failure result when it
// cannot be acquired.
func (s *MCPServer) automation(ctx context.Context, toolName string) (provider.Provider, *ToolResult) {
	p, err := s.session.Provider(ctx)
	if err != nil {
		s.log.Warn("Automation provider unavailable", "tool", toolName, "err", err)
		return nil, providerErrorResult(err, toolName)
	}
	return p, nil
}

// resolveElement looks up a handle issued by this session.
func (s *MCPServer) resolveElement(id string) (*provider.Element, *ToolResult) {
	el, ok := s.session.Element(id)
	if !ok {
		return nil, failureResultf("Element %s not found in session", id)
	}
	return el, nil
}

// resolveParent resolves an optional parent handle; the empty id is the
// desktop root.
func (s *MCPServer) resolveParent(id string) (*provider.Element, *ToolResult) {
	if id == "" {
		return nil, nil
	}
	return s.resolveElement(id)
}

// elementErrorResult reports a failed element operation. Handles whose
// elements have gone stale are dropped from the session.
func (s *MCPServer) elementErrorResult(err error, toolName string, ids ...string) *ToolResult {
	if errors.Is(err, provider.ErrStaleElement) {
		for _, id := range ids {
			s.session.ForgetElement(id)
		}
		s.log.Debug("Dropped stale element handles", "tool", toolName, "ids", ids)
	}
	return providerErrorResult(err, toolName)
}

// elementFields describes a cached element in a success payload.
func elementFields(id string, el *provider.Element) map[string]any {
	return map[string]any{
		"elementId":    id,
		"automationId": el.AutomationID,
		"name":         el.Name,
		"className":    el.ClassName,
		"controlType":  el.ControlType,
		"bounds":       el.Bounds,
	}
}

func propertyNames() []string {
	out := make([]string, len(provider.Properties))
	copy(out, provider.Properties)
	return out
}

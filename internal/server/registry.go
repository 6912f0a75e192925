// Copyright 2025 Joseph Cumines
//
// Tool registry

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Handler implements one tool. A domain failure is reported through the
// returned ToolResult; a non-nil error is a protocol fault.
type Handler func(ctx context.Context, call *ToolCall) (*ToolResult, error)

// Tool represents an MCP tool
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Tool struct {
	Handler     Handler     `json:"-"`
	InputSchema InputSchema `json:"inputSchema"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	// Wait is how long the tool polls by default. A positive timeoutMs
	// argument replaces it when the schema declares one.
	Wait time.Duration `json:"-"`
}

// wait returns how long a call with the given arguments may poll.
func (t *Tool) wait(fields map[string]json.RawMessage) time.Duration {
	if _, ok := t.InputSchema.Properties["timeoutMs"]; ok {
		var ms int
		if raw, ok := fields["timeoutMs"]; ok && json.Unmarshal(raw, &ms) == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return t.Wait
}

// InputSchema is the JSON-schema-like description of a tool's arguments.
// It is advertised to clients; the server itself only checks Required.
type InputSchema struct {
	Properties map[string]Property `json:"properties"`
	Type       string              `json:"type"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes one tool argument.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

// objectSchema builds an InputSchema of type object.
func objectSchema(props map[string]Property, required ...string) InputSchema {
	if props == nil {
		props = map[string]Property{}
	}
	return InputSchema{Type: "object", Properties: props, Required: required}
}

// missing returns the required arguments absent from fields. A null or
// empty string value counts as absent.
func (s InputSchema) missing(fields map[string]json.RawMessage) []string {
	var out []string
	for _, name := range s.Required {
		v, ok := fields[name]
		if !ok {
			out = append(out, name)
			continue
		}
		switch string(v) {
		case "null", `""`:
			out = append(out, name)
		}
	}
	return out
}

// Registry is an ordered, immutable table of tools. It is built once, at
// construction, and only read afterwards.
type Registry struct {
	byName map[string]*Tool
	tools  []*Tool
}

// NewRegistry builds a registry from tools, preserving their order.
// Duplicate or empty names are a programming error and panic.
func NewRegistry(tools ...*Tool) *Registry {
	r := &Registry{byName: make(map[string]*Tool, len(tools))}
	for _, t := range tools {
		if t.Name == "" {
			panic("server: tool with empty name")
		}
		if _, ok := r.byName[t.Name]; ok {
			panic(fmt.Sprintf("server: duplicate tool %q", t.Name))
		}
		if t.Handler == nil {
			panic(fmt.Sprintf("server: tool %q has no handler", t.Name))
		}
		r.byName[t.Name] = t
		r.tools = append(r.tools, t)
	}
	return r
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []*Tool {
	out := make([]*Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

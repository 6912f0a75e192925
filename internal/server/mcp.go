// Copyright 2025 Joseph Cumines
//
// MCP server implementation

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joeycumines/uiautomation-mcp/internal/config"
	"github.com/joeycumines/uiautomation-mcp/internal/poll"
	"github.com/joeycumines/uiautomation-mcp/internal/session"
	"github.com/joeycumines/uiautomation-mcp/internal/transport"
)

// Server identity advertised by initialize.
const (
	ProtocolVersion = "2024-11-05"
	ServerName      = "uiautomation-mcp"
	ServerVersion   = "0.1.0"
)

// MCPServer routes JSON-RPC requests to tool handlers. Requests are handled
// strictly one at a time, in arrival order.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type MCPServer struct {
	ctx     context.Context
	cfg     *config.Config
	session *session.Session
	tools   *Registry
	metrics *transport.MetricsRegistry
	audit   *AuditLogger
	log     *log.Logger
	poller  *poll.Poller
	cancel  context.CancelFunc
	nextID  int64
}

// Options carries the optional collaborators of an MCPServer.
type Options struct {
	Logger  *log.Logger
	Metrics *transport.MetricsRegistry
	Audit   *AuditLogger
	// Poller overrides the poller built from the configured poll interval.
	Poller *poll.Poller
}

// ToolCall represents a tool call request
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult represents a tool call result
type ToolResult struct {
	Content []Content `json:"content"`
	// Failed marks a domain failure. It is not sent; the payload carries
	// success:false instead.
	Failed bool `json:"-"`
}

// Content represents a content item in a tool result
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ProtocolError is a malformed or unroutable request. Its message becomes
// the details of the JSON-RPC error object.
type ProtocolError struct {
	Details string
}

func (e *ProtocolError) Error() string { return e.Details }

func protocolErrorf(format string, args ...any) error {
	return &ProtocolError{Details: fmt.Sprintf(format, args...)}
}

// NewMCPServer creates a new MCP server around sess.
func NewMCPServer(cfg *config.Config, sess *session.Session, opts Options) *MCPServer {
	ctx, cancel := context.WithCancel(context.Background())

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	poller := opts.Poller
	if poller == nil {
		poller = poll.New(cfg.PollInterval)
	}

	s := &MCPServer{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		session: sess,
		metrics: opts.Metrics,
		audit:   opts.Audit,
		log:     logger.With("session", sess.ID()),
		poller:  poller,
	}
	s.tools = s.registerTools()
	return s
}

// Tools returns the tool registry.
func (s *MCPServer) Tools() *Registry {
	return s.tools
}

// Shutdown cancels in-flight tool calls and closes the session, which
// terminates every process the session launched.
func (s *MCPServer) Shutdown(ctx context.Context) error {
	s.cancel()
	s.log.Info("Shutting down MCP server...")
	return s.session.Close(ctx)
}

// registerTools builds the tool table
func (s *MCPServer) registerTools() *Registry {
	criteria := map[string]Property{
		"automationId": {Type: "string", Description: "AutomationId of the element"},
		"name":         {Type: "string", Description: "Name of the element"},
		"className":    {Type: "string", Description: "ClassName of the element"},
		"controlType":  {Type: "string", Description: "ControlType of the element, e.g. Button"},
		"parent":       {Type: "string", Description: "elementId to search within (optional, defaults to the desktop)"},
		"timeoutMs":    {Type: "integer", Description: "How long to keep searching, in milliseconds (optional)"},
	}
	elementID := Property{Type: "string", Description: "elementId returned by find_element"}

	return NewRegistry(
		&Tool{
			Name:        "find_element",
			Description: "Find a UI element by automationId, name, className and/or controlType",
			InputSchema: objectSchema(criteria),
			Handler:     s.handleFindElement,
			Wait:        s.cfg.FindTimeout,
		},
		&Tool{
			Name:        "find_elements",
			Description: "Find all UI elements matching the given criteria",
			InputSchema: objectSchema(criteria),
			Handler:     s.handleFindElements,
			Wait:        s.cfg.FindTimeout,
		},
		&Tool{
			Name:        "click_element",
			Description: "Click an element",
			InputSchema: objectSchema(map[string]Property{
				"elementId":   elementID,
				"doubleClick": {Type: "boolean", Description: "Double-click if true"},
			}, "elementId"),
			Handler: s.handleClickElement,
		},
		&Tool{
			Name:        "type_text",
			Description: "Type text into an element",
			InputSchema: objectSchema(map[string]Property{
				"elementId":  elementID,
				"text":       {Type: "string", Description: "Text to type"},
				"clearFirst": {Type: "boolean", Description: "Clear the field before typing"},
			}, "elementId", "text"),
			Handler: s.handleTypeText,
		},
		&Tool{
			Name:        "set_value",
			Description: "Set the value of an element",
			InputSchema: objectSchema(map[string]Property{
				"elementId": elementID,
				"value":     {Type: "string", Description: "Value to set"},
			}, "elementId", "value"),
			Handler: s.handleSetValue,
		},
		&Tool{
			Name:        "get_property",
			Description: "Read a property of an element",
			InputSchema: objectSchema(map[string]Property{
				"elementId":    elementID,
				"propertyName": {Type: "string", Description: "Property to read", Enum: propertyNames()},
			}, "elementId", "propertyName"),
			Handler: s.handleGetProperty,
		},
		&Tool{
			Name:        "get_main_window",
			Description: "Get the main window of a process",
			InputSchema: objectSchema(map[string]Property{
				"pid": {Type: "integer", Description: "Process id"},
			}, "pid"),
			Handler: s.handleGetMainWindow,
		},
		&Tool{
			Name:        "launch_app",
			Description: "Launch an application",
			InputSchema: objectSchema(map[string]Property{
				"path":             {Type: "string", Description: "Path to the executable"},
				"arguments":        {Type: "string", Description: "Command-line arguments (optional)"},
				"workingDirectory": {Type: "string", Description: "Working directory (optional)"},
			}, "path"),
			Handler: s.handleLaunchApp,
			Wait:    s.cfg.LaunchTimeout,
		},
		&Tool{
			Name:        "attach_to_process",
			Description: "Attach to a running process by pid or process name",
			InputSchema: objectSchema(map[string]Property{
				"pid":         {Type: "integer", Description: "Process id"},
				"processName": {Type: "string", Description: "Process name, used when pid is not given"},
			}),
			Handler: s.handleAttachToProcess,
		},
		&Tool{
			Name:        "close_app",
			Description: "Close an application launched or attached by this session",
			InputSchema: objectSchema(map[string]Property{
				"pid":   {Type: "integer", Description: "Process id"},
				"force": {Type: "boolean", Description: "Kill immediately instead of closing gracefully"},
			}, "pid"),
			Handler: s.handleCloseApp,
		},
		&Tool{
			Name:        "take_screenshot",
			Description: "Capture the desktop or an element to an image file",
			InputSchema: objectSchema(map[string]Property{
				"outputPath": {Type: "string", Description: "Path to save the screenshot; the extension selects the format (png by default)"},
				"elementId":  {Type: "string", Description: "Element to capture (optional, defaults to the whole desktop)"},
			}, "outputPath"),
			Handler: s.handleTakeScreenshot,
		},
		&Tool{
			Name:        "element_exists",
			Description: "Check whether an element exists",
			InputSchema: objectSchema(map[string]Property{
				"automationId": criteria["automationId"],
				"parent":       criteria["parent"],
			}, "automationId"),
			Handler: s.handleElementExists,
			Wait:    s.cfg.ExistsTimeout,
		},
		&Tool{
			Name:        "wait_for_element",
			Description: "Wait for an element to appear",
			InputSchema: objectSchema(map[string]Property{
				"automationId": criteria["automationId"],
				"parent":       criteria["parent"],
				"timeoutMs":    {Type: "integer", Description: "How long to wait, in milliseconds (optional)"},
			}, "automationId"),
			Handler: s.handleWaitForElement,
			Wait:    s.cfg.WaitTimeout,
		},
		&Tool{
			Name:        "drag_drop",
			Description: "Drag one element onto another",
			InputSchema: objectSchema(map[string]Property{
				"sourceId": {Type: "string", Description: "elementId to drag"},
				"targetId": {Type: "string", Description: "elementId to drop onto"},
			}, "sourceId", "targetId"),
			Handler: s.handleDragDrop,
		},
		&Tool{
			Name:        "send_keys",
			Description: "Send keystrokes to the focused element",
			InputSchema: objectSchema(map[string]Property{
				"keys": {Type: "string", Description: "Keys to send"},
			}, "keys"),
			Handler: s.handleSendKeys,
		},
		&Tool{
			Name:        "raise_event",
			Description: "Raise a UI automation event (not supported)",
			InputSchema: objectSchema(map[string]Property{
				"elementId": elementID,
				"eventName": {Type: "string", Description: "Event to raise"},
			}, "elementId", "eventName"),
			Handler: s.handleRaiseEvent,
		},
		&Tool{
			Name:        "listen_for_event",
			Description: "Listen for a UI automation event (not supported)",
			InputSchema: objectSchema(map[string]Property{
				"eventName": {Type: "string", Description: "Event to listen for"},
			}, "eventName"),
			Handler: s.handleListenForEvent,
		},
	)
}

// initResult is the result of initialize, also sent unsolicited at startup.
func (s *MCPServer) initResult() json.RawMessage {
	result, _ := json.Marshal(map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools": s.tools.Tools(),
		},
		"serverInfo": map[string]any{
			"name":    ServerName,
			"version": ServerVersion,
		},
	})
	return result
}

// Serve starts serving MCP requests. It returns once the peer ends the
// input (an empty line or EOF) or the transport fails, after closing the
// session.
func (s *MCPServer) Serve(tr transport.Transport) error {
	s.log.Info("MCP server starting...", "tools", s.tools.Len())

	var serveErr error
	if err := tr.WriteMessage(&transport.Message{JSONRPC: "2.0", Result: s.initResult()}); err != nil {
		serveErr = fmt.Errorf("failed to write init message: %w", err)
	}

	for serveErr == nil {
		msg, err := tr.ReadMessage()
		if err != nil {
			var perr *transport.ParseError
			if errors.As(err, &perr) {
				s.metrics.RecordRequest("")
				s.metrics.RecordProtocolError()
				s.log.Warn("Malformed request", "err", perr.Err)
				if err := tr.WriteMessage(transport.NewFault(perr.ID, perr.Err.Error())); err != nil {
					serveErr = fmt.Errorf("failed to write response: %w", err)
				}
				continue
			}
			switch {
			case errors.Is(err, transport.ErrEndOfInput):
				s.log.Info("MCP server stopping (end of input)")
			case errors.Is(err, transport.ErrClosed):
				s.log.Info("MCP server stopping (transport closed)")
			default:
				serveErr = fmt.Errorf("failed to read message: %w", err)
			}
			break
		}

		if err := tr.WriteMessage(s.handleMessage(msg)); err != nil {
			serveErr = fmt.Errorf("failed to write response: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()
	if err := s.session.Close(ctx); err != nil {
		serveErr = errors.Join(serveErr, err)
	}
	return serveErr
}

// handleMessage handles a single MCP message and returns the response.
func (s *MCPServer) handleMessage(msg *transport.Message) *transport.Message {
	s.metrics.RecordRequest(msg.Method)

	result, err := s.dispatch(msg)
	if err != nil {
		s.metrics.RecordProtocolError()
		s.log.Warn("Protocol error", "method", msg.Method, "err", err)
		return transport.NewFault(msg.ID, err.Error())
	}

	id := msg.ID
	if len(id) == 0 || string(id) == "null" {
		s.nextID++
		id = json.RawMessage(strconv.FormatInt(s.nextID, 10))
	}
	return &transport.Message{JSONRPC: "2.0", ID: id, Result: result}
}

func (s *MCPServer) dispatch(msg *transport.Message) (json.RawMessage, error) {
	switch msg.Method {
	case "":
		return nil, protocolErrorf("Missing method")
	case "initialize":
		return s.initResult(), nil
	case "tools/list":
		return json.Marshal(map[string]any{"tools": s.tools.Tools()})
	case "tools/call":
		return s.callTool(msg.Params)
	default:
		return nil, protocolErrorf("Unknown method: %s", msg.Method)
	}
}

// callTool validates and runs one tools/call request.
func (s *MCPServer) callTool(params json.RawMessage) (json.RawMessage, error) {
	if isAbsent(params) {
		return nil, protocolErrorf("Missing params")
	}
	var p struct {
		Name      *string         `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, protocolErrorf("Invalid params: %v", err)
	}
	if p.Name == nil || *p.Name == "" {
		return nil, protocolErrorf("Missing tool name")
	}
	name := *p.Name

	tool, ok := s.tools.Lookup(name)
	if !ok {
		return nil, protocolErrorf("Unknown tool: %s", name)
	}
	fields, err := argumentFields(p.Arguments)

	// The request timeout bounds the work around any polling, never the
	// caller's own wait.
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RequestTimeout+tool.wait(fields))
	defer cancel()

	start := time.Now()
	var res *ToolResult
	if err != nil {
		res, err = invalidArguments(name, err), nil
	} else if missing := tool.InputSchema.missing(fields); len(missing) > 0 {
		res = failureResultf("Missing required argument(s) for %s: %s", name, strings.Join(missing, ", "))
	} else {
		res, err = tool.Handler(ctx, &ToolCall{Name: name, Arguments: p.Arguments})
	}
	duration := time.Since(start)

	outcome := transport.OutcomeOK
	switch {
	case err != nil:
		outcome = transport.OutcomeProtocolError
	case res.Failed:
		outcome = transport.OutcomeFailed
		s.log.Info("Tool call failed", "tool", name, "duration", duration)
	default:
		s.log.Debug("Tool call succeeded", "tool", name, "duration", duration)
	}
	s.metrics.RecordToolCall(name, outcome, duration)
	s.audit.LogToolCall(s.session.ID(), name, p.Arguments, outcome, duration)
	s.publishSessionState()

	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

// publishSessionState updates the session gauges.
func (s *MCPServer) publishSessionState() {
	st := s.session.Stats()
	s.metrics.SetSessionState(st.Elements, st.LaunchedProcesses, st.Processes-st.LaunchedProcesses)
}

// Status reports the session state for the ops health endpoint.
func (s *MCPServer) Status() any {
	return map[string]any{
		"id":    s.session.ID(),
		"stats": s.session.Stats(),
		"tools": s.tools.Len(),
	}
}

// Copyright 2025 Joseph Cumines
//
// Audit logging for MCP tool invocations

package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const redacted = "[REDACTED]"

// AuditLogger writes one JSON line per tool invocation: tool name, redacted
// arguments, outcome, duration and session id. A nil or disabled
// AuditLogger discards everything.
type AuditLogger struct {
	logger      *slog.Logger
	file        *os.File
	enabled     bool
	redactInput bool
	mu          sync.RWMutex
}

// secretKeys are argument keys (or key fragments) that are always redacted.
var secretKeys = []string{
	"password",
	"passphrase",
	"secret",
	"token",
	"apikey",
	"api_key",
	"credential",
	"private_key",
	"authorization",
	"cookie",
}

// inputKeys carry text typed into the UI. They are redacted when the logger
// is created with redactInput.
var inputKeys = map[string]bool{
	"text":  true,
	"value": true,
	"keys":  true,
}

// NewAuditLogger creates an audit logger appending to filePath. If filePath
// is empty, audit logging is disabled.
func NewAuditLogger(filePath string, redactInput bool) (*AuditLogger, error) {
	if filePath == "" {
		return &AuditLogger{enabled: false}, nil
	}

	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	return &AuditLogger{
		logger:      slog.New(handler),
		file:        file,
		enabled:     true,
		redactInput: redactInput,
	}, nil
}

// Close closes the audit log file if it is open.
// Safe to call multiple times.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.enabled = false
	if a.file != nil {
		err := a.file.Close()
		a.file = nil
		return err
	}
	return nil
}

// IsEnabled returns true if audit logging is enabled.
func (a *AuditLogger) IsEnabled() bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// LogToolCall records a tool invocation.
func (a *AuditLogger) LogToolCall(sessionID, tool string, args json.RawMessage, outcome string, duration time.Duration) {
	if !a.IsEnabled() {
		return
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.logger == nil || !a.enabled {
		return
	}

	a.logger.Info("tool_invocation",
		slog.String("session", sessionID),
		slog.String("tool", tool),
		slog.String("arguments", a.redactArguments(args)),
		slog.String("outcome", outcome),
		slog.Float64("duration_seconds", duration.Seconds()),
	)
}

// redactArguments returns args as JSON with sensitive values replaced.
func (a *AuditLogger) redactArguments(args json.RawMessage) string {
	if isAbsent(args) {
		return "{}"
	}

	var parsed map[string]any
	if err := json.Unmarshal(args, &parsed); err != nil {
		return "[unparseable]"
	}

	a.redactMapValues(parsed)

	out, err := json.Marshal(parsed)
	if err != nil {
		return "[error]"
	}
	return string(out)
}

// redactMapValues recursively redacts sensitive values in a map.
func (a *AuditLogger) redactMapValues(m map[string]any) {
	for key, value := range m {
		if a.shouldRedact(key) {
			m[key] = redacted
			continue
		}
		switch v := value.(type) {
		case map[string]any:
			a.redactMapValues(v)
		case []any:
			for _, item := range v {
				if nested, ok := item.(map[string]any); ok {
					a.redactMapValues(nested)
				}
			}
		}
	}
}

func (a *AuditLogger) shouldRedact(key string) bool {
	lower := strings.ToLower(key)
	if a.redactInput && inputKeys[lower] {
		return true
	}
	for _, k := range secretKeys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

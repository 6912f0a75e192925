// Copyright 2025 Joseph Cumines
//
// Stdio transport for line-delimited JSON-RPC 2.0 communication

package transport

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// StdioTransport implements JSON-RPC 2.0 transport over a pair of streams,
// one message per line.
//
// Reads and writes are guarded separately, so a response may be written
// while the next read is pending.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type StdioTransport struct {
	reader  *bufio.Reader
	writer  *bufio.Writer
	readMu  sync.Mutex
	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
}

// NewStdioTransport creates a new stdio transport
func NewStdioTransport(stdin io.Reader, stdout io.Writer) *StdioTransport {
	return &StdioTransport{
		reader: bufio.NewReader(stdin),
		writer: bufio.NewWriter(stdout),
	}
}

// ReadMessage reads one line and decodes it. A closed stream, or an empty
// line, yields ErrEndOfInput.
func (t *StdioTransport) ReadMessage() (*Message, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	if t.IsClosed() {
		return nil, ErrClosed
	}

	line, err := t.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read line: %w", err)
	}

	// A final line without a trailing newline is still a message.
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, ErrEndOfInput
	}

	var msg Message
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return nil, &ParseError{Err: err, ID: recoverID(line)}
	}
	return &msg, nil
}

// recoverID extracts the id from a line that is valid JSON but not a valid
// message, e.g. {"id": 3, "method": 42}.
func recoverID(line string) json.RawMessage {
	var partial struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal([]byte(line), &partial); err != nil {
		return nil
	}
	return partial.ID
}

// WriteMessage writes msg as a single line and flushes it.
func (t *StdioTransport) WriteMessage(msg *Message) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.IsClosed() {
		return ErrClosed
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	data = append(data, '\n')

	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush message: %w", err)
	}
	return nil
}

// Close closes the transport
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// IsClosed returns whether the transport is closed
func (t *StdioTransport) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

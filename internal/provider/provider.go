// Copyright 2025 Joseph Cumines
//
// Package provider defines the Automation Provider: the external capability
// that performs UI element traversal, input injection, screen capture and
// process lifecycle operations.
//
// Every discovery method is a single attempt. Timeouts and retries are the
// caller's policy (see package poll); a provider must not block waiting for
// an element to appear.

package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Implementations wrap these so callers can classify
// failures with errors.Is.
var (
	// ErrNotFound indicates the referenced process or element does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStaleElement indicates an element reference that was valid once but
	// whose underlying UI element has since disappeared.
	ErrStaleElement = errors.New("element is no longer available")

	// ErrRejected indicates the provider refused the operation, e.g. the
	// element is disabled, off screen, or not interactable.
	ErrRejected = errors.New("operation rejected")

	// ErrUnavailable indicates the provider itself could not be reached.
	ErrUnavailable = errors.New("automation provider unavailable")
)

// Rect is a bounding rectangle in screen coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Center returns the center point of the rectangle.
func (r Rect) Center() (x, y float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Element is a provider-native element reference, plus the identity
// properties observed when it was found.
type Element struct {
	// Ref is the provider's own identifier for the element (a runtime id).
	// It is opaque to everything except the provider.
	Ref          string
	AutomationID string
	Name         string
	ClassName    string
	ControlType  string
	Bounds       Rect
}

// Condition selects elements. All non-empty fields must match.
type Condition struct {
	AutomationID string
	Name         string
	ClassName    string
	ControlType  string
}

// IsZero reports whether no criteria are set.
func (c Condition) IsZero() bool {
	return c == Condition{}
}

// String renders the condition for messages, e.g. `automationId="OK"`.
func (c Condition) String() string {
	var parts []string
	if c.AutomationID != "" {
		parts = append(parts, fmt.Sprintf("automationId=%q", c.AutomationID))
	}
	if c.Name != "" {
		parts = append(parts, fmt.Sprintf("name=%q", c.Name))
	}
	if c.ClassName != "" {
		parts = append(parts, fmt.Sprintf("className=%q", c.ClassName))
	}
	if c.ControlType != "" {
		parts = append(parts, fmt.Sprintf("controlType=%q", c.ControlType))
	}
	if len(parts) == 0 {
		return "(any)"
	}
	return strings.Join(parts, ", ")
}

// Process identifies an operating system process known to the provider.
type Process struct {
	Name string
	PID  int
}

// LaunchOptions describes a process to start.
type LaunchOptions struct {
	Path             string
	Arguments        string
	WorkingDirectory string
}

// Provider is the automation capability. A nil root element means the
// desktop.
//
// Implementations are not assumed to be safe for concurrent use; wrap them
// with Serialize when calls may overlap.
type Provider interface {
	// FindFirst returns the first child of root matching cond, or nil, nil
	// if there is none right now.
	FindFirst(ctx context.Context, root *Element, cond Condition) (*Element, error)

	// FindAll returns all children of root matching cond; possibly empty.
	FindAll(ctx context.Context, root *Element, cond Condition) ([]*Element, error)

	// MainWindow returns the main window of the process.
	MainWindow(ctx context.Context, pid int) (*Element, error)

	Click(ctx context.Context, el *Element, double bool) error
	TypeText(ctx context.Context, el *Element, text string, clearFirst bool) error
	SetValue(ctx context.Context, el *Element, value string) error

	// Property reads a named property of the element (see Properties).
	Property(ctx context.Context, el *Element, name string) (any, error)

	// DragDrop drags from the center of src to the center of dst.
	DragDrop(ctx context.Context, src, dst *Element) error

	// SendKeys injects a key sequence into the focused window.
	SendKeys(ctx context.Context, keys string) error

	// Capture returns an encoded image of el, or of the whole desktop when
	// el is nil.
	Capture(ctx context.Context, el *Element) ([]byte, error)

	Launch(ctx context.Context, opts LaunchOptions) (*Process, error)
	Attach(ctx context.Context, pid int) (*Process, error)
	AttachByName(ctx context.Context, name string) (*Process, error)

	// CloseProcess closes the process, gracefully unless force is set.
	// A process that has already exited yields an error wrapping ErrNotFound.
	CloseProcess(ctx context.Context, pid int, force bool) error

	// Close releases the provider.
	Close() error
}

// Properties lists the element property names understood by Property.
var Properties = []string{
	"name",
	"automationId",
	"className",
	"controlType",
	"isOffscreen",
	"isEnabled",
}

// CanonicalProperty matches name case-insensitively against Properties,
// returning the canonical spelling.
func CanonicalProperty(name string) (string, bool) {
	for _, p := range Properties {
		if strings.EqualFold(p, name) {
			return p, true
		}
	}
	return "", false
}

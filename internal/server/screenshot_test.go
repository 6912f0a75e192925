// Copyright 2025 Joseph Cumines
//
// Screenshot handler unit tests

package server

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/joeycumines/uiautomation-mcp/internal/provider"
)

func testCapture(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestTakeScreenshot_Desktop(t *testing.T) {
	var capturedEl *provider.Element
	captured := false
	prov := &mockProvider{
		captureFunc: func(_ context.Context, el *provider.Element) ([]byte, error) {
			capturedEl, captured = el, true
			return testCapture(t, 64, 32), nil
		},
	}
	s := newTestServer(t, prov)
	out := filepath.Join(t.TempDir(), "shots", "desktop")

	payload := callTool(t, s, "take_screenshot", map[string]any{"outputPath": out})
	wantSuccess(t, payload)
	if !captured || capturedEl != nil {
		t.Errorf("captured = %v, element = %+v; want a desktop capture", captured, capturedEl)
	}
	if payload["path"] != out+".png" {
		t.Errorf("path = %v, want %s.png", payload["path"], out)
	}
	if payload["width"] != float64(64) || payload["height"] != float64(32) {
		t.Errorf("size = %vx%v", payload["width"], payload["height"])
	}
	if _, err := os.Stat(out + ".png"); err != nil {
		t.Errorf("screenshot not written: %v", err)
	}
}

func TestTakeScreenshot_ElementScaled(t *testing.T) {
	prov := &mockProvider{
		findFirstFunc: func(context.Context, *provider.Element, provider.Condition) (*provider.Element, error) {
			return okButton(), nil
		},
		captureFunc: func(_ context.Context, el *provider.Element) ([]byte, error) {
			if el == nil || el.Ref != "ref-ok" {
				t.Errorf("captured element = %+v, want ref-ok", el)
			}
			return testCapture(t, 400, 100), nil
		},
	}
	cfg := testConfig()
	cfg.ScreenshotMaxDimension = 100
	s := newTestServerWithConfig(t, cfg, prov)
	id := callTool(t, s, "find_element", map[string]any{"name": "OK"})["elementId"]
	out := filepath.Join(t.TempDir(), "button.jpg")

	payload := callTool(t, s, "take_screenshot", map[string]any{"outputPath": out, "elementId": id})
	wantSuccess(t, payload)
	if payload["scaled"] != true || payload["width"] != float64(100) || payload["height"] != float64(25) {
		t.Errorf("payload = %v, want scaled 100x25", payload)
	}
	if payload["format"] != "jpeg" {
		t.Errorf("format = %v, want jpeg", payload["format"])
	}
}

func TestTakeScreenshot_Failures(t *testing.T) {
	tests := []struct {
		name    string
		args    func(dir string) map[string]any
		capture func(context.Context, *provider.Element) ([]byte, error)
		substr  string
	}{
		{
			name:   "unknown element",
			args:   func(dir string) map[string]any { return map[string]any{"outputPath": filepath.Join(dir, "a.png"), "elementId": "elem_999"} },
			substr: "not found in session",
		},
		{
			name: "capture rejected",
			args: func(dir string) map[string]any { return map[string]any{"outputPath": filepath.Join(dir, "a.png")} },
			capture: func(context.Context, *provider.Element) ([]byte, error) {
				return nil, provider.ErrRejected
			},
			substr: "Error in take_screenshot",
		},
		{
			name: "not an image",
			args: func(dir string) map[string]any { return map[string]any{"outputPath": filepath.Join(dir, "a.png")} },
			capture: func(context.Context, *provider.Element) ([]byte, error) {
				return []byte("plain text, not pixels"), nil
			},
			substr: "Failed to save screenshot",
		},
		{
			name: "unsupported extension",
			args: func(dir string) map[string]any { return map[string]any{"outputPath": filepath.Join(dir, "a.xyz")} },
			capture: func(context.Context, *provider.Element) ([]byte, error) {
				return testCapture(t, 4, 4), nil
			},
			substr: "Failed to save screenshot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &mockProvider{captureFunc: tt.capture})
			wantFailure(t, callTool(t, s, "take_screenshot", tt.args(t.TempDir())), tt.substr)
		})
	}
}

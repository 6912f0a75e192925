// Copyright 2025 Joseph Cumines
//
// Operations endpoint unit tests

package transport

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOpsServer_Health(t *testing.T) {
	ops := NewOpsServer("", NewMetricsRegistry(), func() any {
		return map[string]any{"id": "session-1", "elements": 3}
	}, nil)

	rec := httptest.NewRecorder()
	ops.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s", ct)
	}

	var body struct {
		Session map[string]any `json:"session"`
		Status  string         `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("health body is not JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %s, want ok", body.Status)
	}
	if body.Session["id"] != "session-1" {
		t.Errorf("session = %v", body.Session)
	}
}

func TestOpsServer_Metrics(t *testing.T) {
	metrics := NewMetricsRegistry()
	metrics.RecordRequest("tools/list")
	ops := NewOpsServer("", metrics, nil, nil)

	rec := httptest.NewRecorder()
	ops.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("Content-Type = %s", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), `mcp_requests_total{method="tools/list"} 1`) {
		t.Errorf("metrics body = %s", rec.Body.String())
	}
}

func TestOpsServer_MethodNotAllowed(t *testing.T) {
	ops := NewOpsServer("", NewMetricsRegistry(), nil, nil)

	for _, path := range []string{"/health", "/metrics"} {
		rec := httptest.NewRecorder()
		ops.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST %s status = %d, want 405", path, rec.Code)
		}
	}
}

func TestOpsServer_ServeAndShutdown(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ops := NewOpsServer(listener.Addr().String(), NewMetricsRegistry(), nil, nil)

	done := make(chan error, 1)
	go func() { done <- ops.Serve(listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ops.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() returned %v after Shutdown, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after Shutdown")
	}
}

// Copyright 2025 Joseph Cumines
//
// Operations HTTP endpoint: health and metrics

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// OpsServer serves GET /health and GET /metrics. It is independent of the
// JSON-RPC stream and is only started when a listen address is configured.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type OpsServer struct {
	server  *http.Server
	metrics *MetricsRegistry
	status  func() any
	log     *log.Logger
	started time.Time
}

// NewOpsServer creates an operations server listening on addr. status, if
// non-nil, supplies the "session" field of the health response.
func NewOpsServer(addr string, metrics *MetricsRegistry, status func() any, logger *log.Logger) *OpsServer {
	if logger == nil {
		logger = log.Default()
	}
	o := &OpsServer{
		metrics: metrics,
		status:  status,
		log:     logger,
		started: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", o.handleHealth)
	mux.HandleFunc("/metrics", o.handleMetrics)

	o.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return o
}

// Handler returns the HTTP handler, for embedding or testing.
func (o *OpsServer) Handler() http.Handler {
	return o.server.Handler
}

// ListenAndServe listens on the configured address and serves until
// Shutdown is called.
func (o *OpsServer) ListenAndServe() error {
	listener, err := net.Listen("tcp", o.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", o.server.Addr, err)
	}
	return o.Serve(listener)
}

// Serve serves on listener until Shutdown is called.
func (o *OpsServer) Serve(listener net.Listener) error {
	o.log.Info("ops endpoint listening", "addr", listener.Addr().String())
	if err := o.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (o *OpsServer) Shutdown(ctx context.Context) error {
	if err := o.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown ops server: %w", err)
	}
	return nil
}

// handleHealth handles GET /health for health checks
func (o *OpsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := map[string]any{
		"status":         "ok",
		"server_time":    time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(o.started).Seconds()),
	}
	if o.status != nil {
		body["session"] = o.status()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		o.log.Warn("failed to encode health response", "err", err)
	}
}

// handleMetrics handles GET /metrics in the Prometheus text format
func (o *OpsServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := o.metrics.WritePrometheus(w); err != nil {
		o.log.Warn("failed to write metrics", "err", err)
	}
}

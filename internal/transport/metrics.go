// Copyright 2025 Joseph Cumines
//
// Metrics registry for observability

package transport

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"
)

// Metric names exported by the server.
const (
	MetricRequests         = "mcp_requests_total"
	MetricProtocolErrors   = "mcp_protocol_errors_total"
	MetricToolCalls        = "mcp_tool_calls_total"
	MetricToolCallDuration = "mcp_tool_call_duration_seconds"
	MetricElementHandles   = "uia_element_handles"
	MetricTrackedProcesses = "uia_tracked_processes"
)

// Tool call outcomes, used as the outcome label.
const (
	OutcomeOK            = "ok"
	OutcomeFailed        = "failed"
	OutcomeProtocolError = "protocol_error"
)

// MetricsRegistry provides thread-safe metrics collection, exported in the
// Prometheus text exposition format. Series are keyed by their rendered
// label set, e.g. `tool="click_element",outcome="ok"`.
type MetricsRegistry struct {
	families map[string]*family
	mu       sync.RWMutex
}

type metricKind string

const (
	kindCounter   metricKind = "counter"
	kindGauge     metricKind = "gauge"
	kindHistogram metricKind = "histogram"
)

// family is one named metric and all of its labelled series.
type family struct {
	values  map[string]float64  // counters and gauges
	buckets map[string][]uint64 // histogram bucket counts, +Inf last
	sums    map[string]float64  // histogram sums
	help    string
	kind    metricKind
	bounds  []float64 // histogram upper bounds
	mu      sync.Mutex
}

// Default histogram buckets for tool call latencies (in seconds). Waits
// can legitimately run for the full wait timeout.
var defaultLatencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetricsRegistry creates a registry with the server metrics registered.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{families: make(map[string]*family)}
	m.register(MetricRequests, kindCounter, "JSON-RPC requests received, by method.", nil)
	m.register(MetricProtocolErrors, kindCounter, "Requests answered with a protocol fault.", nil)
	m.register(MetricToolCalls, kindCounter, "Tool invocations, by tool and outcome.", nil)
	m.register(MetricToolCallDuration, kindHistogram, "Tool invocation latency in seconds.", defaultLatencyBuckets)
	m.register(MetricElementHandles, kindGauge, "Element handles currently held by the session.", nil)
	m.register(MetricTrackedProcesses, kindGauge, "Processes tracked by the session, by ownership.", nil)
	return m
}

func (m *MetricsRegistry) register(name string, kind metricKind, help string, bounds []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.families[name] = &family{
		values:  make(map[string]float64),
		buckets: make(map[string][]uint64),
		sums:    make(map[string]float64),
		help:    help,
		kind:    kind,
		bounds:  bounds,
	}
}

func (m *MetricsRegistry) lookup(name string, kind metricKind) *family {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.families[name]
	if !ok || f.kind != kind {
		return nil
	}
	return f
}

// Labels renders label pairs, given as alternating keys and values.
func Labels(kv ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(kv[i])
		b.WriteString(`="`)
		b.WriteString(labelEscaper.Replace(kv[i+1]))
		b.WriteByte('"')
	}
	return b.String()
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// IncrementCounter adds 1 to the counter series with the given labels.
func (m *MetricsRegistry) IncrementCounter(name, labels string) {
	if f := m.lookup(name, kindCounter); f != nil {
		f.mu.Lock()
		f.values[labels]++
		f.mu.Unlock()
	}
}

// SetGauge sets the gauge series with the given labels.
func (m *MetricsRegistry) SetGauge(name, labels string, value float64) {
	if f := m.lookup(name, kindGauge); f != nil {
		f.mu.Lock()
		f.values[labels] = value
		f.mu.Unlock()
	}
}

// ObserveHistogram records value in the histogram series with the given labels.
func (m *MetricsRegistry) ObserveHistogram(name, labels string, value float64) {
	f := m.lookup(name, kindHistogram)
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	counts, ok := f.buckets[labels]
	if !ok {
		counts = make([]uint64, len(f.bounds)+1)
		f.buckets[labels] = counts
	}
	i, _ := slices.BinarySearch(f.bounds, value)
	counts[i]++
	f.sums[labels] += value
}

// RecordRequest counts one incoming request.
func (m *MetricsRegistry) RecordRequest(method string) {
	if method == "" {
		method = "(none)"
	}
	m.IncrementCounter(MetricRequests, Labels("method", method))
}

// RecordProtocolError counts one protocol fault response.
func (m *MetricsRegistry) RecordProtocolError() {
	m.IncrementCounter(MetricProtocolErrors, "")
}

// RecordToolCall records a tool invocation's outcome and latency.
func (m *MetricsRegistry) RecordToolCall(tool, outcome string, duration time.Duration) {
	m.IncrementCounter(MetricToolCalls, Labels("tool", tool, "outcome", outcome))
	m.ObserveHistogram(MetricToolCallDuration, Labels("tool", tool), duration.Seconds())
}

// SetSessionState publishes the session's handle and process counts.
func (m *MetricsRegistry) SetSessionState(handles, launched, attached int) {
	m.SetGauge(MetricElementHandles, "", float64(handles))
	m.SetGauge(MetricTrackedProcesses, Labels("owner", "launched"), float64(launched))
	m.SetGauge(MetricTrackedProcesses, Labels("owner", "attached"), float64(attached))
}

// WritePrometheus writes all metrics in Prometheus text format to w,
// ordered by name and then by label set.
func (m *MetricsRegistry) WritePrometheus(w io.Writer) error {
	m.mu.RLock()
	names := make([]string, 0, len(m.families))
	for name := range m.families {
		names = append(names, name)
	}
	m.mu.RUnlock()
	slices.Sort(names)

	bw := bufio.NewWriter(w)
	for _, name := range names {
		m.mu.RLock()
		f := m.families[name]
		m.mu.RUnlock()

		fmt.Fprintf(bw, "# HELP %s %s\n", name, f.help)
		fmt.Fprintf(bw, "# TYPE %s %s\n", name, f.kind)
		f.writeSeries(bw, name)
	}
	return bw.Flush()
}

func (f *family) writeSeries(w io.Writer, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.kind != kindHistogram {
		for _, labels := range sortedKeys(f.values) {
			fmt.Fprintf(w, "%s%s %g\n", name, braced(labels), f.values[labels])
		}
		return
	}

	for _, labels := range sortedKeys(f.buckets) {
		counts := f.buckets[labels]
		prefix := labels
		if prefix != "" {
			prefix += ","
		}
		var cumulative uint64
		for i, bound := range f.bounds {
			cumulative += counts[i]
			fmt.Fprintf(w, "%s_bucket{%sle=\"%g\"} %d\n", name, prefix, bound, cumulative)
		}
		cumulative += counts[len(f.bounds)]
		fmt.Fprintf(w, "%s_bucket{%sle=\"+Inf\"} %d\n", name, prefix, cumulative)
		fmt.Fprintf(w, "%s_sum%s %g\n", name, braced(labels), f.sums[labels])
		fmt.Fprintf(w, "%s_count%s %d\n", name, braced(labels), cumulative)
	}
}

func braced(labels string) string {
	if labels == "" {
		return ""
	}
	return "{" + labels + "}"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

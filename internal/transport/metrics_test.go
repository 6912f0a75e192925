// Copyright 2025 Joseph Cumines
//
// Metrics unit tests

package transport

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func render(t *testing.T, m *MetricsRegistry) string {
	t.Helper()
	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus error: %v", err)
	}
	return buf.String()
}

func TestLabels(t *testing.T) {
	tests := []struct {
		name string
		kv   []string
		want string
	}{
		{"none", nil, ""},
		{"single", []string{"method", "tools/call"}, `method="tools/call"`},
		{"pair", []string{"tool", "click_element", "outcome", "ok"}, `tool="click_element",outcome="ok"`},
		{"escaped", []string{"tool", `a"b\c` + "\n"}, `tool="a\"b\\c\n"`},
		{"odd trailing key dropped", []string{"tool", "x", "dangling"}, `tool="x"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Labels(tt.kv...); got != tt.want {
				t.Errorf("Labels() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMetricsRegistry_RecordRequest(t *testing.T) {
	m := NewMetricsRegistry()

	m.RecordRequest("tools/call")
	m.RecordRequest("tools/call")
	m.RecordRequest("initialize")
	m.RecordRequest("")

	output := render(t, m)
	for _, want := range []string{
		`mcp_requests_total{method="tools/call"} 2`,
		`mcp_requests_total{method="initialize"} 1`,
		`mcp_requests_total{method="(none)"} 1`,
		"# TYPE mcp_requests_total counter",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in:\n%s", want, output)
		}
	}
}

func TestMetricsRegistry_RecordToolCall(t *testing.T) {
	m := NewMetricsRegistry()

	m.RecordToolCall("find_element", OutcomeOK, 50*time.Millisecond)
	m.RecordToolCall("find_element", OutcomeFailed, 5*time.Second)
	m.RecordToolCall("find_element", OutcomeOK, 250*time.Millisecond)

	output := render(t, m)
	for _, want := range []string{
		`mcp_tool_calls_total{tool="find_element",outcome="ok"} 2`,
		`mcp_tool_calls_total{tool="find_element",outcome="failed"} 1`,
		`mcp_tool_call_duration_seconds_bucket{tool="find_element",le="0.05"} 1`,
		`mcp_tool_call_duration_seconds_bucket{tool="find_element",le="0.25"} 2`,
		`mcp_tool_call_duration_seconds_bucket{tool="find_element",le="5"} 3`,
		`mcp_tool_call_duration_seconds_bucket{tool="find_element",le="+Inf"} 3`,
		`mcp_tool_call_duration_seconds_count{tool="find_element"} 3`,
		`mcp_tool_call_duration_seconds_sum{tool="find_element"} 5.3`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in:\n%s", want, output)
		}
	}
}

func TestMetricsRegistry_SessionState(t *testing.T) {
	m := NewMetricsRegistry()
	m.SetSessionState(4, 1, 2)
	m.SetSessionState(5, 0, 2)

	output := render(t, m)
	for _, want := range []string{
		"uia_element_handles 5",
		`uia_tracked_processes{owner="launched"} 0`,
		`uia_tracked_processes{owner="attached"} 2`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in:\n%s", want, output)
		}
	}
}

func TestMetricsRegistry_KindMismatchIgnored(t *testing.T) {
	m := NewMetricsRegistry()
	m.SetGauge(MetricRequests, "", 10)
	m.IncrementCounter("not_registered", "")

	output := render(t, m)
	if strings.Contains(output, "mcp_requests_total 10") || strings.Contains(output, "not_registered") {
		t.Errorf("mismatched writes were recorded:\n%s", output)
	}
}

func TestMetricsRegistry_NilSafe(t *testing.T) {
	var m *MetricsRegistry
	m.RecordRequest("initialize")
	m.RecordToolCall("x", OutcomeOK, time.Millisecond)
	m.RecordProtocolError()
}

func TestMetricsRegistry_OutputOrdered(t *testing.T) {
	m := NewMetricsRegistry()
	m.RecordProtocolError()

	output := render(t, m)
	last := -1
	for _, name := range []string{
		MetricProtocolErrors,
		MetricRequests,
		MetricToolCallDuration,
		MetricToolCalls,
		MetricElementHandles,
		MetricTrackedProcesses,
	} {
		idx := strings.Index(output, "# TYPE "+name+" ")
		if idx < 0 {
			t.Fatalf("missing family %s", name)
		}
		if idx < last {
			t.Errorf("family %s out of order", name)
		}
		last = idx
	}
}

func TestMetricsRegistry_Concurrent(t *testing.T) {
	m := NewMetricsRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordRequest("tools/call")
			m.RecordToolCall("send_keys", OutcomeOK, time.Millisecond)
			var buf bytes.Buffer
			_ = m.WritePrometheus(&buf)
		}()
	}
	wg.Wait()

	if output := render(t, m); !strings.Contains(output, `mcp_tool_calls_total{tool="send_keys",outcome="ok"} 50`) {
		t.Errorf("concurrent increments lost:\n%s", output)
	}
}

package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Second)
	m.ObserveStage("reading", "completed", time.Second)
	m.IncJobFinished("content", "completed")
	m.ObserveLLMRequest("m", "chat", "ok", time.Second)
	m.ObserveEscalation("resolved", 2)
	m.IncPrerequisiteLookup("cached")
	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil || buf.Len() != 0 {
		t.Fatalf("nil metrics wrote %q err=%v", buf.String(), err)
	}
}

func TestWritePrometheus(t *testing.T) {
	m := newMetrics()
	m.ObserveAPI("POST", "/v1/plans", "202", 30*time.Millisecond)
	m.ObserveAPI("GET", "/v1/jobs/:id", "500", 10*time.Millisecond)
	m.ObserveStage("reading", "completed", 2*time.Second)
	m.ObserveEscalation("resolved", 2)
	m.IncPrerequisiteLookup("structured")
	m.IncPrerequisiteLookup("structured")

	if got := m.prereqLookup.Value("structured"); got != 2 {
		t.Fatalf("prerequisite lookups: want=2 got=%v", got)
	}
	if got := m.apiReqError.Value(); got != 1 {
		t.Fatalf("api errors: want=1 got=%v", got)
	}

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`# TYPE remedy_api_requests_total counter`,
		`remedy_api_requests_total{method="POST",route="/v1/plans",status="202"} 1`,
		`remedy_stage_duration_seconds_bucket{stage="reading",status="completed",le="1"} 0`,
		`remedy_stage_duration_seconds_bucket{stage="reading",status="completed",le="2"} 1`,
		`remedy_stage_duration_seconds_bucket{stage="reading",status="completed",le="+Inf"} 1`,
		`remedy_escalation_cycles_count{final_status="resolved"} 1`,
		`remedy_prerequisite_lookups_total{source="structured"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("exposition missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, `route="/v1/jobs/:id"`) > strings.Index(out, `route="/v1/plans"`) {
		t.Fatalf("series should be sorted by label set")
	}
}

func TestLabelEscaping(t *testing.T) {
	got := labelString([]string{"a", "b"}, []string{`x"y`})
	if got != `{a="x\"y",b="unknown"}` {
		t.Fatalf("labelString: got=%s", got)
	}
	if got := withLe("", "0.5"); got != `{le="0.5"}` {
		t.Fatalf("withLe: got=%s", got)
	}
}

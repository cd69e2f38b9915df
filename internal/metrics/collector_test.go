package metrics

import (
	"strings"
	"testing"
	"time"
)

func TestCounterSameKeyReturnsSameInstance(t *testing.T) {
	c := NewCollector()
	a := c.Counter("x_total", "x", "")
	b := c.Counter("x_total", "x", "")
	a.Inc()
	b.Add(2)
	if a != b {
		t.Fatal("expected the same counter for the same key")
	}
	if a.Value() != 3 {
		t.Fatalf("expected 3, got %d", a.Value())
	}
}

func TestGauge(t *testing.T) {
	c := NewCollector()
	g := c.Gauge("g", "g", "")
	g.Set(5)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 4 {
		t.Fatalf("expected 4, got %d", g.Value())
	}
}

func TestHistogramBuckets(t *testing.T) {
	c := NewCollector()
	h := c.Histogram("lat", "latency", "", []float64{5, 1})
	h.Observe(0.5)
	h.Observe(3)
	h.Observe(100)

	if h.Count() != 3 {
		t.Fatalf("expected 3 observations, got %d", h.Count())
	}
	var sb strings.Builder
	if err := c.WriteText(&sb); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	for _, want := range []string{
		`lat_bucket{le="1"} 1`,
		`lat_bucket{le="5"} 2`,
		`lat_bucket{le="+Inf"} 3`,
		"lat_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestWriteTextIsSorted(t *testing.T) {
	c := NewCollector()
	c.Counter("b_total", "b", "").Inc()
	c.Counter("a_total", "a", "").Inc()

	var sb strings.Builder
	_ = c.WriteText(&sb)
	out := sb.String()
	if strings.Index(out, "a_total") > strings.Index(out, "b_total") {
		t.Fatalf("counters not sorted:\n%s", out)
	}
}

// --- Run ---

func TestRunToolCallsByKind(t *testing.T) {
	r := NewRun()
	r.ToolCall("execute_command")
	r.ToolCall("execute_command")
	r.ToolCall("ability")

	if got := r.ToolCalls("execute_command"); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := r.ToolCalls("ability"); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}

func TestRunWriteSummary(t *testing.T) {
	r := NewRun()
	r.ObserveInference(1500*time.Millisecond, 42)
	r.InvalidContent.Inc()
	r.Turns.Set(3)
	r.TranscriptMessages.Set(7)

	var sb strings.Builder
	if err := r.WriteSummary(&sb); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	if !strings.HasPrefix(out, "inferences=1 invalid_content=1 summaries=0 tokens=42 turns=3 elapsed=") {
		t.Fatalf("unexpected digest: %q", strings.SplitN(out, "\n", 2)[0])
	}
	if !strings.Contains(out, `buddy_inference_latency_seconds_bucket{le="2"} 1`) {
		t.Fatalf("latency not rendered:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE buddy_transcript_messages gauge\nbuddy_transcript_messages 7\n") {
		t.Fatalf("gauge not rendered:\n%s", out)
	}
}

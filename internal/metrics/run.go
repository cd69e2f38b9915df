package metrics

import (
	"fmt"
	"io"
	"time"
)

// Run holds the metrics of one task execution.
type Run struct {
	c *Collector

	Inferences     *Counter
	InvalidContent *Counter
	Summaries      *Counter
	Tokens         *Counter
	Approvals      *Counter
	Denials        *Counter

	Turns              *Gauge
	TranscriptMessages *Gauge

	InferenceLatency *Histogram
	CommandLatency   *Histogram
}

// NewRun registers the run metrics on a fresh collector.
func NewRun() *Run {
	c := NewCollector()
	return &Run{
		c:              c,
		Inferences:     c.Counter("buddy_inferences_total", "Model inference calls", ""),
		InvalidContent: c.Counter("buddy_invalid_content_total", "Inference attempts rejected as invalid content", ""),
		Summaries:      c.Counter("buddy_summaries_total", "Output summarization calls", ""),
		Tokens:         c.Counter("buddy_tokens_total", "Tokens reported by the provider", ""),
		Approvals:      c.Counter("buddy_operator_approvals_total", "Operator approvals", ""),
		Denials:        c.Counter("buddy_operator_denials_total", "Operator denials", ""),

		Turns:              c.Gauge("buddy_flow_turns", "Flow turns taken so far", ""),
		TranscriptMessages: c.Gauge("buddy_transcript_messages", "Messages in the flow transcript at the last turn", ""),

		InferenceLatency: c.Histogram("buddy_inference_latency_seconds", "Inference latency in seconds", "",
			[]float64{0.5, 1, 2, 5, 10, 30, 60, 120}),
		CommandLatency: c.Histogram("buddy_command_latency_seconds", "Shell command latency in seconds", "",
			[]float64{0.1, 0.5, 1, 5, 10, 30}),
	}
}

// ToolCall counts one dispatched tool call of the given kind.
func (r *Run) ToolCall(kind string) {
	r.c.Counter("buddy_tool_calls_total", "Tool calls dispatched", fmt.Sprintf("kind=%q", kind)).Inc()
}

// ToolCalls returns the count recorded for kind.
func (r *Run) ToolCalls(kind string) int64 {
	return r.c.Counter("buddy_tool_calls_total", "Tool calls dispatched", fmt.Sprintf("kind=%q", kind)).Value()
}

// ObserveInference records one inference call.
func (r *Run) ObserveInference(d time.Duration, tokens int) {
	r.Inferences.Inc()
	r.InferenceLatency.Observe(d.Seconds())
	r.Tokens.Add(int64(tokens))
}

// WriteSummary prints a short human-readable digest followed by the full
// metric dump.
func (r *Run) WriteSummary(w io.Writer) error {
	_, err := fmt.Fprintf(w, "inferences=%d invalid_content=%d summaries=%d tokens=%d turns=%d elapsed=%s\n\n",
		r.Inferences.Value(), r.InvalidContent.Value(), r.Summaries.Value(), r.Tokens.Value(),
		r.Turns.Value(), r.c.Uptime().Round(time.Millisecond))
	if err != nil {
		return err
	}
	return r.c.WriteText(w)
}

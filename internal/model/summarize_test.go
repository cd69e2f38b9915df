package model

import (
	"context"
	"errors"
	"strings"
	"testing"

	"buddy/internal/domain"
	"buddy/internal/model/modeltest"
)

func TestSummarize_UsesSummaryModelAtZeroTemperature(t *testing.T) {
	p := modeltest.NewProvider(modeltest.Text("  short version \n"))
	c := newTestClient(t, p)

	got, err := c.Summarize(context.Background(), "a long text")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "short version" {
		t.Fatalf("expected trimmed summary, got %q", got)
	}

	req := p.LastRequest()
	if req.Model != "cheap" || req.Temperature != 0 || len(req.Tools) != 0 {
		t.Fatalf("unexpected request: model=%q temp=%v tools=%d", req.Model, req.Temperature, len(req.Tools))
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != domain.RoleSystem || req.Messages[1].Content != "a long text" {
		t.Fatalf("unexpected messages: %+v", req.Messages)
	}
	if !strings.HasPrefix(req.Messages[0].Content, "You will condense the user's message") {
		t.Fatalf("unexpected system prompt: %q", req.Messages[0].Content)
	}
}

func TestSummarize_ErrorPropagates(t *testing.T) {
	boom := &domain.ProviderError{Kind: domain.KindTransport, Provider: "scripted", Message: "down"}
	p := modeltest.NewProvider(modeltest.Fail(boom))
	c := newTestClient(t, p)

	_, err := c.Summarize(context.Background(), "x")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}

func TestSummarizeIfLong_Threshold(t *testing.T) {
	p := modeltest.NewProvider(modeltest.Text("summary"))
	c := newTestClient(t, p)

	exact := strings.Repeat("é", DefaultSummaryThreshold)
	got, err := c.SummarizeIfLong(context.Background(), exact)
	if err != nil {
		t.Fatal(err)
	}
	if got != exact || p.Calls() != 0 {
		t.Fatalf("text at the threshold must pass through unchanged (calls=%d)", p.Calls())
	}

	got, err = c.SummarizeIfLong(context.Background(), exact+"x")
	if err != nil {
		t.Fatal(err)
	}
	if got != "summary" || p.Calls() != 1 {
		t.Fatalf("expected one summary call, got %q after %d calls", got, p.Calls())
	}
	if c.Metrics().Summaries.Value() != 1 {
		t.Fatalf("expected summaries counter 1, got %d", c.Metrics().Summaries.Value())
	}
}

func TestSummaryModelFallsBackToModel(t *testing.T) {
	p := modeltest.NewProvider(modeltest.Text("s"))
	c, err := New(Config{Provider: p, Model: "only", Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Summarize(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if got := p.LastRequest().Model; got != "only" {
		t.Fatalf("expected fallback model, got %q", got)
	}
}

// Package model wraps a domain.Provider with the conversation rules the flows
// rely on: bounded retry of invalid model output, tool-call lookup and
// tool-result construction, and summarization of oversized text.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"buddy/internal/domain"
	"buddy/internal/metrics"
)

const (
	// MaxInferenceAttempts bounds the attempts RunInference makes when the
	// provider rejects the generated content.
	MaxInferenceAttempts = 5

	// InvalidContentNudge is appended to the transcript before each retry.
	InvalidContentNudge = "You provided invalid content. Please try again."

	DefaultSummaryThreshold = 1000
)

var (
	// ErrInferenceExhausted means every attempt produced invalid content.
	ErrInferenceExhausted = errors.New("model produced invalid content on every attempt")

	// ErrUnansweredToolCall means the transcript still has a tool call without
	// a result, which the provider would reject.
	ErrUnansweredToolCall = errors.New("transcript has an unanswered tool call")
)

type Config struct {
	Provider         domain.Provider
	Model            string // empty uses the provider default
	SummaryModel     string // empty falls back to Model
	SummaryThreshold int    // characters; zero uses DefaultSummaryThreshold
	MaxTokens        int
	Metrics          *metrics.Run
	Logger           *slog.Logger
}

// Client is the model abstraction the flows and capabilities talk to.
type Client struct {
	provider         domain.Provider
	model            string
	summaryModel     string
	summaryThreshold int
	maxTokens        int
	metrics          *metrics.Run
	logger           *slog.Logger

	mu    sync.Mutex
	usage domain.Usage
}

func New(cfg Config) (*Client, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("model client: provider is required")
	}
	if cfg.SummaryModel == "" {
		cfg.SummaryModel = cfg.Model
	}
	if cfg.SummaryThreshold <= 0 {
		cfg.SummaryThreshold = DefaultSummaryThreshold
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewRun()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		provider:         cfg.Provider,
		model:            cfg.Model,
		summaryModel:     cfg.SummaryModel,
		summaryThreshold: cfg.SummaryThreshold,
		maxTokens:        cfg.MaxTokens,
		metrics:          cfg.Metrics,
		logger:           cfg.Logger,
	}, nil
}

// ProviderName returns the name of the wrapped provider.
func (c *Client) ProviderName() string { return c.provider.Name() }

// Usage returns the token usage accumulated over every call.
func (c *Client) Usage() domain.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Metrics returns the run metrics the client records into.
func (c *Client) Metrics() *metrics.Run { return c.metrics }

// RunInference asks the model for the next turn of t. When the provider
// rejects the generated content, InvalidContentNudge is appended to t and the
// call is retried, up to MaxInferenceAttempts in total. Every other error is
// returned unchanged on the first occurrence.
//
// The assistant turn itself is not appended; callers add AssistantMessage(resp)
// before answering its tool calls.
func (c *Client) RunInference(ctx context.Context, t *Transcript, tools []domain.ToolDefinition, temperature float64, requireTools bool) (*domain.ChatResponse, error) {
	if ids := t.Unanswered(); len(ids) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnansweredToolCall, strings.Join(ids, ", "))
	}

	choice := domain.ToolChoiceAuto
	if requireTools && len(tools) > 0 {
		choice = domain.ToolChoiceRequired
	}

	var lastErr error
	for attempt := 1; attempt <= MaxInferenceAttempts; attempt++ {
		resp, err := c.chat(ctx, domain.ChatRequest{
			Messages:    t.Messages(),
			Tools:       tools,
			Model:       c.model,
			MaxTokens:   c.maxTokens,
			Temperature: temperature,
			ToolChoice:  choice,
		})
		if err == nil {
			c.recoverEmbeddedCalls(resp, tools)
			return resp, nil
		}
		if !domain.IsInvalidContent(err) {
			return nil, err
		}

		lastErr = err
		c.metrics.InvalidContent.Inc()
		c.logger.Warn("invalid content from model", "attempt", attempt, "error", err)
		t.Append(domain.Message{Role: domain.RoleUser, Content: InvalidContentNudge})
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrInferenceExhausted, MaxInferenceAttempts, lastErr)
}

// chat performs one provider call and records its metrics and usage.
func (c *Client) chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	start := time.Now()
	resp, err := c.provider.Chat(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.ObserveInference(elapsed, 0)
		c.logger.Debug("inference failed", "provider", c.provider.Name(), "kind", domain.KindOf(err), "duration", elapsed)
		return nil, err
	}

	c.metrics.ObserveInference(elapsed, resp.Usage.TotalTokens)
	c.mu.Lock()
	c.usage.Add(resp.Usage)
	c.mu.Unlock()
	c.logger.Debug("inference done", "provider", c.provider.Name(), "tool_calls", len(resp.ToolCalls),
		"tokens", resp.Usage.TotalTokens, "duration", elapsed)
	return resp, nil
}

// recoverEmbeddedCalls turns a tool call written into the text into a
// structured call when it names one of the offered tools, and gives every call
// an id.
func (c *Client) recoverEmbeddedCalls(resp *domain.ChatResponse, tools []domain.ToolDefinition) {
	resp.Content = stripRolePrefix(resp.Content)
	if !resp.HasToolCalls() && len(tools) > 0 && resp.Content != "" {
		for _, call := range extractToolCallsFromContent(resp.Content) {
			if offered(call.Name, tools) {
				resp.ToolCalls = append(resp.ToolCalls, call)
			}
		}
		if resp.HasToolCalls() {
			c.logger.Debug("recovered tool calls from content", "count", len(resp.ToolCalls))
			resp.Content = ""
		}
	}
	for i := range resp.ToolCalls {
		if resp.ToolCalls[i].ID == "" {
			resp.ToolCalls[i].ID = "call_" + uuid.NewString()
		}
		if resp.ToolCalls[i].Arguments == nil {
			resp.ToolCalls[i].Arguments = make(map[string]any)
		}
	}
}

func offered(name string, tools []domain.ToolDefinition) bool {
	for _, t := range tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// AssistantMessage converts a response into the transcript entry for it.
func AssistantMessage(resp *domain.ChatResponse) domain.Message {
	return domain.Message{
		Role:      domain.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	}
}

// GetToolCall finds the call named name among calls. A call matches when its
// name equals name or is a capability-qualified form of it, "<capability>_<name>",
// where the capability part contains no underscore.
func GetToolCall(name string, calls []domain.ToolCall) (domain.ToolCall, bool) {
	for _, call := range calls {
		if matchesToolName(call.Name, name) {
			return call, true
		}
	}
	return domain.ToolCall{}, false
}

func matchesToolName(callName, name string) bool {
	if callName == name {
		return true
	}
	prefix, ok := strings.CutSuffix(callName, "_"+name)
	return ok && prefix != "" && !strings.Contains(prefix, "_")
}

// MakeToolResult answers call with result.
func MakeToolResult(call domain.ToolCall, result string) domain.Message {
	return domain.Message{
		Role:       domain.RoleTool,
		Content:    result,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
}

// Package modeltest provides a scripted domain.Provider for tests of code
// that drives a conversation.
package modeltest

import (
	"context"
	"fmt"
	"sync"

	"buddy/internal/domain"
)

// Step is one scripted provider answer.
type Step struct {
	Resp *domain.ChatResponse
	Err  error
}

// Provider replays Steps in order and records every request. A request past
// the end of the script fails the call.
type Provider struct {
	mu       sync.Mutex
	steps    []Step
	requests []domain.ChatRequest
}

func NewProvider(steps ...Step) *Provider {
	return &Provider{steps: steps}
}

// Reply is a Step answering with a single tool call.
func Reply(id, name string, args map[string]any) Step {
	if args == nil {
		args = map[string]any{}
	}
	return Step{Resp: &domain.ChatResponse{
		ToolCalls: []domain.ToolCall{{ID: id, Name: name, Arguments: args}},
	}}
}

// Text is a Step answering with plain content.
func Text(content string) Step {
	return Step{Resp: &domain.ChatResponse{Content: content}}
}

// Fail is a Step answering with err.
func Fail(err error) Step {
	return Step{Err: err}
}

// InvalidContent is a Step the model client treats as retryable.
func InvalidContent() Step {
	return Step{Err: &domain.ProviderError{Kind: domain.KindInvalidContent, Provider: "scripted", Message: "invalid content"}}
}

func (p *Provider) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	req.Messages = append([]domain.Message(nil), req.Messages...)
	p.requests = append(p.requests, req)
	n := len(p.requests)
	if n > len(p.steps) {
		return nil, fmt.Errorf("scripted provider: unexpected call %d", n)
	}
	step := p.steps[n-1]
	if step.Err != nil {
		return nil, step.Err
	}
	resp := *step.Resp
	resp.ToolCalls = append([]domain.ToolCall(nil), step.Resp.ToolCalls...)
	return &resp, nil
}

func (p *Provider) Name() string                    { return "scripted" }
func (p *Provider) Models() []string                { return []string{"scripted-model"} }
func (p *Provider) Healthy(_ context.Context) error { return nil }

// Calls returns the number of Chat calls made so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Requests returns a copy of every request received.
func (p *Provider) Requests() []domain.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.ChatRequest(nil), p.requests...)
}

// LastRequest returns the most recent request.
func (p *Provider) LastRequest() domain.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return domain.ChatRequest{}
	}
	return p.requests[len(p.requests)-1]
}

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"buddy/internal/domain"
)

// OpenAI implements domain.Provider for OpenAI-compatible chat completion APIs.
type OpenAI struct {
	name    string
	apiKey  string
	apiBase string
	model   string
	retries int
	client  *http.Client
	logger  *slog.Logger
}

type OpenAIConfig struct {
	Name    string // reported provider name, "openai" when empty
	APIKey  string
	APIBase string
	Model   string
	Retries int // transport retries, 0 = none
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenAI{
		name:    cfg.Name,
		apiKey:  cfg.APIKey,
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		model:   cfg.Model,
		retries: cfg.Retries,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

func (o *OpenAI) Name() string { return o.name }
func (o *OpenAI) Models() []string {
	return []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-4.1", "gpt-4.1-mini"}
}

func (o *OpenAI) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", o.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s not reachable: %w", o.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: invalid API key", o.name)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", o.name, resp.StatusCode)
	}
	return nil
}

type oaiRequest struct {
	Model             string       `json:"model"`
	Messages          []oaiMessage `json:"messages"`
	Tools             []oaiTool    `json:"tools,omitempty"`
	ToolChoice        string       `json:"tool_choice,omitempty"`
	ParallelToolCalls *bool        `json:"parallel_tool_calls,omitempty"`
	MaxTokens         int          `json:"max_tokens,omitempty"`
	Temperature       *float64     `json:"temperature,omitempty"`
	Stream            bool         `json:"stream"`
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

type oaiTool struct {
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type oaiToolCall struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Function oaiToolCallFn `json:"function"`
}

type oaiToolCallFn struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Usage   oaiUsage    `json:"usage"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (o *OpenAI) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}

	msgs := make([]oaiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		om := oaiMessage{Role: m.Role, Content: m.Content}
		if m.ToolCallID != "" {
			om.ToolCallID = m.ToolCallID
			om.Name = m.ToolName
		}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			om.ToolCalls = append(om.ToolCalls, oaiToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: oaiToolCallFn{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		msgs = append(msgs, om)
	}

	temperature := req.Temperature
	body := oaiRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: &temperature,
		MaxTokens:   req.MaxTokens,
	}

	if len(req.Tools) > 0 {
		for _, t := range req.Tools {
			body.Tools = append(body.Tools, oaiTool{
				Type: "function",
				Function: oaiFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		parallel := false
		body.ParallelToolCalls = &parallel
		if req.ToolChoice == domain.ToolChoiceRequired {
			body.ToolChoice = "required"
		}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	start := time.Now()
	resp, err := doWithRetry(ctx, o.client, o.retries, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, "POST", o.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
		return httpReq, nil
	}, o.logger)
	if err != nil {
		return nil, transportError(o.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(o.name, resp, oaiInvalidContent)
	}

	var oaiResp oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return nil, transportError(o.name, fmt.Errorf("decode: %w", err))
	}

	if len(oaiResp.Choices) == 0 {
		return &domain.ChatResponse{FinishReason: "stop", LatencyMs: time.Since(start).Milliseconds()}, nil
	}

	choice := oaiResp.Choices[0]
	out := &domain.ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		LatencyMs:    time.Since(start).Milliseconds(),
		Usage: domain.Usage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		args := make(map[string]any)
		if strings.TrimSpace(tc.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, invalidArgsError(o.name, tc.Function.Name, err)
			}
		}
		if args == nil {
			args = make(map[string]any)
		}
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return out, nil
}

// oaiInvalidContent recognises the server error OpenAI returns when the model
// generated output it could not serialise.
func oaiInvalidContent(status int, body string) bool {
	return status >= 500 && strings.Contains(strings.ToLower(body), "invalid content")
}

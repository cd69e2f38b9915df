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

const (
	claudeDefaultBase  = "https://api.anthropic.com/v1"
	claudeAPIVersion   = "2023-06-01"
	claudeDefaultModel = "claude-sonnet-4-20250514"
	defaultMaxTokens   = 4096
)

// Claude implements domain.Provider for the Anthropic messages API.
type Claude struct {
	apiKey  string
	apiBase string
	model   string
	retries int
	client  *http.Client
	logger  *slog.Logger
}

type ClaudeConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Retries int
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

// NewClaude creates a new Claude provider.
func NewClaude(cfg ClaudeConfig) *Claude {
	if cfg.APIBase == "" {
		cfg.APIBase = claudeDefaultBase
	}
	if cfg.Model == "" {
		cfg.Model = claudeDefaultModel
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Claude{
		apiKey:  cfg.APIKey,
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		model:   cfg.Model,
		retries: cfg.Retries,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

func (c *Claude) Name() string { return "claude" }
func (c *Claude) Models() []string {
	return []string{"claude-sonnet-4-20250514", "claude-opus-4-1-20250805", "claude-3-5-haiku-latest"}
}

func (c *Claude) Healthy(ctx context.Context) error {
	if c.apiKey == "" {
		return fmt.Errorf("claude: no API key configured")
	}
	return nil
}

type claudeRequest struct {
	Model       string            `json:"model"`
	MaxTokens   int               `json:"max_tokens"`
	System      string            `json:"system,omitempty"`
	Messages    []claudeMsg       `json:"messages"`
	Tools       []claudeTool      `json:"tools,omitempty"`
	ToolChoice  *claudeToolChoice `json:"tool_choice,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
}

type claudeToolChoice struct {
	Type                   string `json:"type"` // "auto" | "any"
	DisableParallelToolUse bool   `json:"disable_parallel_tool_use"`
}

type claudeMsg struct {
	Role    string          `json:"role"`
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type      string `json:"type"` // "text" | "tool_use" | "tool_result"
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`          // for tool_use
	Name      string `json:"name,omitempty"`        // for tool_use
	Input     any    `json:"input,omitempty"`       // for tool_use
	ToolUseID string `json:"tool_use_id,omitempty"` // for tool_result
	Content   string `json:"content,omitempty"`     // for tool_result
}

type claudeTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type claudeResponse struct {
	Content    []claudeContent `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      claudeUsage     `json:"usage"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// claudeMessages converts a transcript. System messages are concatenated into
// the top-level system prompt; consecutive tool results are merged into one
// user turn as the API requires.
func claudeMessages(in []domain.Message) (string, []claudeMsg) {
	var system []string
	var msgs []claudeMsg
	appendBlock := func(role string, block claudeContent) {
		if n := len(msgs); n > 0 && msgs[n-1].Role == role {
			msgs[n-1].Content = append(msgs[n-1].Content, block)
			return
		}
		msgs = append(msgs, claudeMsg{Role: role, Content: []claudeContent{block}})
	}

	for _, m := range in {
		switch {
		case m.Role == domain.RoleSystem:
			system = append(system, m.Content)
		case m.Role == domain.RoleTool:
			appendBlock("user", claudeContent{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.Content,
			})
		case m.Role == domain.RoleAssistant:
			var blocks []claudeContent
			if m.Content != "" {
				blocks = append(blocks, claudeContent{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := tc.Arguments
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, claudeContent{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
			}
			if len(blocks) > 0 {
				msgs = append(msgs, claudeMsg{Role: "assistant", Content: blocks})
			}
		default:
			appendBlock("user", claudeContent{Type: "text", Text: m.Content})
		}
	}
	return strings.Join(system, "\n\n"), msgs
}

func (c *Claude) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	system, msgs := claudeMessages(req.Messages)
	temperature := req.Temperature
	body := claudeRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    msgs,
		Temperature: &temperature,
	}

	if len(req.Tools) > 0 {
		for _, t := range req.Tools {
			body.Tools = append(body.Tools, claudeTool{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.Parameters,
			})
		}
		choice := &claudeToolChoice{Type: "auto", DisableParallelToolUse: true}
		if req.ToolChoice == domain.ToolChoiceRequired {
			choice.Type = "any"
		}
		body.ToolChoice = choice
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	start := time.Now()
	resp, err := doWithRetry(ctx, c.client, c.retries, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.apiBase+"/messages", bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", claudeAPIVersion)
		return httpReq, nil
	}, c.logger)
	if err != nil {
		return nil, transportError(c.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(c.Name(), resp, nil)
	}

	var claudeResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&claudeResp); err != nil {
		return nil, transportError(c.Name(), fmt.Errorf("decode: %w", err))
	}

	out := &domain.ChatResponse{
		FinishReason: claudeResp.StopReason,
		LatencyMs:    time.Since(start).Milliseconds(),
		Usage: domain.Usage{
			PromptTokens:     claudeResp.Usage.InputTokens,
			CompletionTokens: claudeResp.Usage.OutputTokens,
			TotalTokens:      claudeResp.Usage.InputTokens + claudeResp.Usage.OutputTokens,
		},
	}

	var textParts []string
	for _, block := range claudeResp.Content {
		switch block.Type {
		case "text":
			textParts = append(textParts, block.Text)
		case "tool_use":
			args, ok := block.Input.(map[string]any)
			if block.Input != nil && !ok {
				return nil, invalidArgsError(c.Name(), block.Name, fmt.Errorf("input is %T, not an object", block.Input))
			}
			if args == nil {
				args = make(map[string]any)
			}
			out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	out.Content = strings.Join(textParts, "")

	return out, nil
}

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
	ollamaDefaultBase  = "http://localhost:11434"
	ollamaDefaultModel = "llama3.1:8b"
)

// Ollama implements domain.Provider for a local Ollama server. Ollama has no
// tool-choice control, so small models often answer with a tool call written
// into the text; the model client recovers those.
type Ollama struct {
	apiBase      string
	defaultModel string
	retries      int
	client       *http.Client
	logger       *slog.Logger
}

type OllamaConfig struct {
	APIBase      string
	DefaultModel string
	Retries      int
	Timeout      time.Duration
	Client       *http.Client
	Logger       *slog.Logger
}

func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.APIBase == "" {
		cfg.APIBase = ollamaDefaultBase
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = ollamaDefaultModel
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Ollama{
		apiBase:      strings.TrimRight(cfg.APIBase, "/"),
		defaultModel: cfg.DefaultModel,
		retries:      cfg.Retries,
		client:       cfg.Client,
		logger:       cfg.Logger,
	}
}

func (o *Ollama) Name() string { return "ollama" }

// Models returns common defaults; the full list would require GET /api/tags.
func (o *Ollama) Models() []string {
	return []string{"llama3.1:8b", "llama3.1:70b", "llama3.2:3b", "qwen2.5:7b", "mistral"}
}

func (o *Ollama) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", o.apiBase+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

// ollamaRequest matches the Ollama /api/chat request body.
type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []ollamaMsg    `json:"messages"`
	Stream   bool           `json:"stream"`
	Tools    []ollamaTool   `json:"tools,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaMsg struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaTool struct {
	Type     string     `json:"type"`
	Function ollamaFunc `json:"function"`
}

type ollamaFunc struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ollamaToolCall struct {
	ID       string         `json:"id,omitempty"`
	Function ollamaFuncCall `json:"function"`
}

type ollamaFuncCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"` // JSON object or JSON string
}

type ollamaResponse struct {
	Message         ollamaMsg `json:"message"`
	Done            bool      `json:"done"`
	DoneReason      string    `json:"done_reason"`
	PromptEvalCount int       `json:"prompt_eval_count"`
	EvalCount       int       `json:"eval_count"`
}

func (o *Ollama) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = o.defaultModel
	}

	msgs := make([]ollamaMsg, 0, len(req.Messages))
	for _, m := range req.Messages {
		om := ollamaMsg{Role: m.Role, Content: m.Content, ToolName: m.ToolName}
		for _, tc := range m.ToolCalls {
			argsRaw, err := json.Marshal(tc.Arguments)
			if err != nil {
				argsRaw = []byte("{}")
			}
			om.ToolCalls = append(om.ToolCalls, ollamaToolCall{
				ID:       tc.ID,
				Function: ollamaFuncCall{Name: tc.Name, Arguments: argsRaw},
			})
		}
		msgs = append(msgs, om)
	}

	body := ollamaRequest{
		Model:    model,
		Messages: msgs,
		Options:  map[string]any{"temperature": req.Temperature},
	}
	if req.MaxTokens > 0 {
		body.Options["num_predict"] = req.MaxTokens
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, ollamaTool{
			Type: "function",
			Function: ollamaFunc{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	resp, err := doWithRetry(ctx, o.client, o.retries, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, "POST", o.apiBase+"/api/chat", bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return httpReq, nil
	}, o.logger)
	if err != nil {
		return nil, transportError(o.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(o.Name(), resp, nil)
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, transportError(o.Name(), fmt.Errorf("decode response: %w", err))
	}

	out, err := o.buildResponse(ollamaResp)
	if err != nil {
		return nil, err
	}
	out.LatencyMs = time.Since(start).Milliseconds()
	return out, nil
}

func (o *Ollama) buildResponse(ollamaResp ollamaResponse) (*domain.ChatResponse, error) {
	out := &domain.ChatResponse{
		Content:      ollamaResp.Message.Content,
		FinishReason: ollamaResp.DoneReason,
		Usage: domain.Usage{
			PromptTokens:     ollamaResp.PromptEvalCount,
			CompletionTokens: ollamaResp.EvalCount,
			TotalTokens:      ollamaResp.PromptEvalCount + ollamaResp.EvalCount,
		},
	}

	for _, tc := range ollamaResp.Message.ToolCalls {
		args, err := decodeOllamaArgs(tc.Function.Arguments)
		if err != nil {
			return nil, invalidArgsError(o.Name(), tc.Function.Name, err)
		}
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return out, nil
}

// decodeOllamaArgs accepts arguments sent either as an object or as a string
// holding an object.
func decodeOllamaArgs(raw json.RawMessage) (map[string]any, error) {
	args := make(map[string]any)
	if len(raw) == 0 || string(raw) == "null" {
		return args, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if strings.TrimSpace(s) == "" {
			return args, nil
		}
		raw = json.RawMessage(s)
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = make(map[string]any)
	}
	return args, nil
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"buddy/internal/domain"
)

const geminiDefaultModel = "gemini-2.5-flash"

// geminiModels is the slice of the genai client used here.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini implements domain.Provider on the Google Gen AI SDK.
type Gemini struct {
	models geminiModels
	model  string
	apiKey string
	logger *slog.Logger
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

// NewGemini builds a Gemini provider. The SDK client is created eagerly so a
// missing key is reported at construction.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(cfg.Timeout)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.Client,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{models: client.Models, model: cfg.Model, apiKey: cfg.APIKey, logger: cfg.Logger}, nil
}

func newGeminiWithModels(models geminiModels, model string, logger *slog.Logger) *Gemini {
	if model == "" {
		model = geminiDefaultModel
	}
	return &Gemini{models: models, model: model, apiKey: "test", logger: logger}
}

func (g *Gemini) Name() string { return "gemini" }
func (g *Gemini) Models() []string {
	return []string{"gemini-2.5-flash", "gemini-2.5-pro", "gemini-2.5-flash-lite"}
}

func (g *Gemini) Healthy(ctx context.Context) error {
	if g.apiKey == "" {
		return fmt.Errorf("gemini: no API key configured")
	}
	return nil
}

func (g *Gemini) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}

	system, contents := geminiContents(req.Messages)
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if system != nil {
		config.SystemInstruction = system
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		mode := genai.FunctionCallingConfigModeAuto
		if req.ToolChoice == domain.ToolChoiceRequired {
			mode = genai.FunctionCallingConfigModeAny
		}
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode},
		}
	}

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, g.classify(err)
	}

	out := &domain.ChatResponse{LatencyMs: time.Since(start).Milliseconds()}
	if resp.UsageMetadata != nil {
		out.Usage = domain.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		out.FinishReason = "stop"
		return out, nil
	}

	cand := resp.Candidates[0]
	out.FinishReason = string(cand.FinishReason)
	if cand.FinishReason == genai.FinishReasonMalformedFunctionCall {
		return nil, &domain.ProviderError{
			Kind:     domain.KindInvalidContent,
			Provider: g.Name(),
			Message:  "model produced a malformed function call",
		}
	}

	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.FunctionCall != nil {
				fc := part.FunctionCall
				id := fc.ID
				if id == "" {
					id = "call_" + uuid.NewString()
				}
				args := fc.Args
				if args == nil {
					args = make(map[string]any)
				}
				out.ToolCalls = append(out.ToolCalls, domain.ToolCall{ID: id, Name: fc.Name, Arguments: args})
				continue
			}
			if part.Text != "" && !part.Thought {
				out.Content += part.Text
			}
		}
	}
	return out, nil
}

func (g *Gemini) classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &domain.ProviderError{
			Kind:       domain.KindForStatus(apiErr.Code),
			Provider:   g.Name(),
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	return transportError(g.Name(), err)
}

// geminiContents converts a transcript. Tool results become function
// responses in a user turn; consecutive results share one turn.
func geminiContents(in []domain.Message) (*genai.Content, []*genai.Content) {
	var systemParts []*genai.Part
	var contents []*genai.Content
	appendPart := func(role string, part *genai.Part) {
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, part)
			return
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{part}})
	}

	for _, m := range in {
		switch m.Role {
		case domain.RoleSystem:
			systemParts = append(systemParts, &genai.Part{Text: m.Content})
		case domain.RoleTool:
			appendPart(genai.RoleUser, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.ToolName,
				Response: map[string]any{"output": m.Content},
			}})
		case domain.RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: tc.Arguments,
				}})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}
		default:
			appendPart(genai.RoleUser, &genai.Part{Text: m.Content})
		}
	}

	if len(systemParts) == 0 {
		return nil, contents
	}
	return &genai.Content{Parts: systemParts}, contents
}

// Package flow drives one task from the first prompt to a terminal tool call:
// it seeds the transcript, asks the model for turns, dispatches every tool
// call to a built-in handler or a capability action and feeds the results
// back until the model ends the process.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"buddy/internal/capability"
	"buddy/internal/domain"
	"buddy/internal/model"
	"buddy/internal/security"
	"buddy/internal/tool"
)

const (
	DefaultMaxIterations = 50

	// freeTextNudge answers a turn that called no tool.
	freeTextNudge = "Please continue by calling one of the available tools."

	flowTemperature = 0.0
)

var (
	// ErrIterationLimit means the model did not end the process within the
	// configured number of turns.
	ErrIterationLimit = errors.New("iteration limit reached")

	ErrAlreadyExecuted = errors.New("flow already executed")
)

// CommandRunner runs shell commands for execute_command.
type CommandRunner interface {
	Run(ctx context.Context, command string, display bool) (tool.CommandResult, error)
}

// SystemContextFunc describes the operator's environment for the model.
type SystemContextFunc func(ctx context.Context) string

// Status is the terminal state of a flow.
type Status int

const (
	Succeeded Status = iota + 1
	Failed
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return domain.RunSucceeded
	case Failed:
		return domain.RunFailed
	default:
		return "unknown"
	}
}

// Result describes a flow that reached a terminal state.
type Result struct {
	Status     Status
	Iterations int
	Summary    string
	Usage      domain.Usage
}

type Config struct {
	Variant       Variant
	Model         *model.Client
	Capabilities  []domain.Capability // enabled capabilities, in prompt order
	Console       domain.Console
	Runner        CommandRunner
	SystemContext SystemContextFunc
	MaxIterations int
	Audit         security.AuditLogger // optional
	Runs          domain.RunStore      // optional
	RunID         string
	ModelName     string // recorded with the run
	Logger        *slog.Logger
}

// Flow is a single-use orchestrator bound to one model client and a tool
// list fixed at construction.
type Flow struct {
	variant       Variant
	model         *model.Client
	console       domain.Console
	runner        CommandRunner
	policy        *security.Policy
	systemContext SystemContextFunc
	maxIterations int
	runs          domain.RunStore
	runID         string
	modelName     string
	logger        *slog.Logger

	systemPrompt string
	tools        []domain.ToolDefinition
	handlers     map[string]toolHandler
	capabilities map[string]domain.Capability

	executed bool
}

func New(cfg Config) (*Flow, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("flow: model client is required")
	}
	if cfg.Console == nil {
		return nil, fmt.Errorf("flow: console is required")
	}
	if cfg.Runner == nil && cfg.Variant != Explain {
		return nil, fmt.Errorf("flow: command runner is required for the %s flow", cfg.Variant)
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.SystemContext == nil {
		sc := tool.NewSystemContext()
		cfg.SystemContext = sc.Describe
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	f := &Flow{
		variant:       cfg.Variant,
		model:         cfg.Model,
		console:       cfg.Console,
		runner:        cfg.Runner,
		systemContext: cfg.SystemContext,
		maxIterations: cfg.MaxIterations,
		runs:          cfg.Runs,
		runID:         cfg.RunID,
		modelName:     cfg.ModelName,
		logger:        cfg.Logger.With("flow", cfg.Variant.String()),
		handlers:      make(map[string]toolHandler),
		capabilities:  make(map[string]domain.Capability),
	}
	f.policy = security.NewPolicy(security.PolicyConfig{
		Supervised: cfg.Variant.supervised(),
		Console:    cfg.Console,
		Audit:      cfg.Audit,
		RunID:      cfg.RunID,
		Metrics:    cfg.Model.Metrics(),
		Logger:     f.logger,
	})

	var fragments []string
	for _, c := range cfg.Capabilities {
		if _, dup := f.capabilities[c.Name()]; dup {
			return nil, fmt.Errorf("flow: capability %s listed twice", c.Name())
		}
		f.capabilities[c.Name()] = c
		fragments = append(fragments, c.Prompt())
		for _, a := range c.Actions() {
			def := a.Definition
			def.Name = capability.QualifiedName(c.Name(), a.Name())
			if err := f.offer(def, actionHandler{capability: c, action: a.Name()}); err != nil {
				return nil, err
			}
		}
	}
	for _, def := range builtinTools(cfg.Variant) {
		if err := f.offer(def, f.builtin(def.Name)); err != nil {
			return nil, err
		}
	}
	f.systemPrompt = SystemPrompt(cfg.Variant, fragments)
	return f, nil
}

func (f *Flow) offer(def domain.ToolDefinition, h toolHandler) error {
	if _, dup := f.handlers[def.Name]; dup {
		return fmt.Errorf("flow: tool %s offered twice", def.Name)
	}
	f.handlers[def.Name] = h
	f.tools = append(f.tools, def)
	return nil
}

// Tools returns the definitions offered to the model.
func (f *Flow) Tools() []domain.ToolDefinition {
	return append([]domain.ToolDefinition(nil), f.tools...)
}

// Variant returns the variant the flow was built for.
func (f *Flow) Variant() Variant { return f.variant }

// Execute runs task to a terminal state. A task the model ends with failure
// is a Result with Status Failed, not an error; errors are reserved for
// conditions that abort the flow.
func (f *Flow) Execute(ctx context.Context, task string) (*Result, error) {
	if f.executed {
		return nil, ErrAlreadyExecuted
	}
	f.executed = true

	transcript := model.NewTranscript(
		domain.Message{Role: domain.RoleSystem, Content: f.systemPrompt},
		domain.Message{Role: domain.RoleUser, Content: "My system information: " + f.systemContext(ctx)},
		domain.Message{Role: domain.RoleUser, Content: f.variant.userPrompt(task)},
	)

	record := domain.RunRecord{
		ID:        f.runID,
		Variant:   f.variant.String(),
		Task:      task,
		Provider:  f.model.ProviderName(),
		Model:     f.modelName,
		Status:    domain.RunRunning,
		StartedAt: time.Now(),
	}
	f.startRun(ctx, record)

	res, err := f.loop(ctx, transcript)
	f.finishRun(record, res, err)
	if err != nil {
		return nil, err
	}

	if res.Status == Failed {
		f.console.Error("Task failed")
	} else {
		f.console.Info("Task completed")
	}
	return res, nil
}

func (f *Flow) loop(ctx context.Context, t *model.Transcript) (*Result, error) {
	res := &Result{}
	for res.Iterations < f.maxIterations {
		res.Iterations++
		f.model.Metrics().Turns.Set(int64(res.Iterations))
		f.model.Metrics().TranscriptMessages.Set(int64(t.Len()))

		stop := f.console.Status("Thinking...")
		resp, err := f.model.RunInference(ctx, t, f.tools, flowTemperature, true)
		stop()
		if err != nil {
			return res, fmt.Errorf("inference: %w", err)
		}
		t.Append(model.AssistantMessage(resp))

		if !resp.HasToolCalls() {
			f.logger.Debug("turn without tool call", "content", resp.Content)
			t.Append(domain.Message{Role: domain.RoleUser, Content: freeTextNudge})
			continue
		}

		// Every call is answered before anything else happens.
		results := make([]domain.Message, 0, len(resp.ToolCalls))
		var end *outcome
		for _, call := range resp.ToolCalls {
			out, err := f.dispatch(ctx, call)
			if err != nil {
				return res, fmt.Errorf("%s: %w", call.Name, err)
			}
			results = append(results, model.MakeToolResult(call, out.result))
			if out.terminal && end == nil {
				end = &out
			}
		}
		t.Append(results...)

		if end != nil {
			res.Status = Succeeded
			if end.failed {
				res.Status = Failed
			}
			res.Summary = end.summary
			res.Usage = f.model.Usage()
			return res, nil
		}
	}
	res.Usage = f.model.Usage()
	return res, fmt.Errorf("%w after %d turns", ErrIterationLimit, res.Iterations)
}

// --- Run history ---

func (f *Flow) startRun(ctx context.Context, rec domain.RunRecord) {
	if f.runs == nil {
		return
	}
	if err := f.runs.StartRun(ctx, rec); err != nil {
		f.logger.Warn("run record not saved", "err", err)
	}
}

func (f *Flow) finishRun(rec domain.RunRecord, res *Result, runErr error) {
	if f.runs == nil {
		return
	}
	now := time.Now()
	rec.FinishedAt = &now
	if res != nil {
		rec.Iterations = res.Iterations
		rec.Summary = res.Summary
	}
	rec.Usage = f.model.Usage()
	switch {
	case runErr != nil:
		rec.Status = domain.RunError
		rec.Error = runErr.Error()
	case res.Status == Failed:
		rec.Status = domain.RunFailed
	default:
		rec.Status = domain.RunSucceeded
	}
	// The run context may already be cancelled; the record is still written.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.runs.FinishRun(ctx, rec); err != nil {
		f.logger.Warn("run record not updated", "err", err)
	}
}

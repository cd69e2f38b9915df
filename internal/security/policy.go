// Package security decides which model actions need the operator's consent
// and runs the confirmation exchange.
package security

import (
	"context"
	"fmt"
	"log/slog"

	"buddy/internal/domain"
	"buddy/internal/metrics"
)

// Prompts shown to the operator.
const (
	executeTool    = "execute_command"
	executePrompt  = "OK to execute? (y/n)"
	feedbackPrompt = "Please provide reasoning or provide other instructions"
)

// AuditLogger is the interface for writing audit entries.
type AuditLogger interface {
	LogAudit(ctx context.Context, entry domain.AuditEntry) error
}

type PolicyConfig struct {
	Supervised bool
	Console    domain.Console
	Audit      AuditLogger // nil disables auditing
	RunID      string
	Metrics    *metrics.Run
	Logger     *slog.Logger
}

// Policy gates command execution for one flow.
type Policy struct {
	supervised bool
	console    domain.Console
	audit      AuditLogger
	runID      string
	metrics    *metrics.Run
	logger     *slog.Logger
}

func NewPolicy(cfg PolicyConfig) *Policy {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewRun()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Policy{
		supervised: cfg.Supervised,
		console:    cfg.Console,
		audit:      cfg.Audit,
		runID:      cfg.RunID,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// Supervised reports whether execute_command calls carry a dangerous flag.
func (p *Policy) Supervised() bool { return p.supervised }

// RequiresApproval reports whether a command must be confirmed before it runs.
func (p *Policy) RequiresApproval(dangerous bool) bool {
	return p.supervised && dangerous
}

// Verdict is the outcome of reviewing a command.
type Verdict struct {
	Approved bool
	// Feedback is the operator's reasoning when the command was denied.
	Feedback string
}

// DeniedResult is the tool result for a denied command.
func (v Verdict) DeniedResult() string {
	return fmt.Sprintf("Command execution denied by user with reasoning: %s", v.Feedback)
}

// ReviewCommand decides whether command may run. Commands that do not need
// approval are allowed without prompting. Otherwise the operator is asked
// until the reply is a clear approval or denial; a denial collects free-text
// reasoning.
func (p *Policy) ReviewCommand(ctx context.Context, command string, dangerous bool) (Verdict, error) {
	if !p.RequiresApproval(dangerous) {
		p.record(ctx, executeTool, "tool_exec", command, "allowed", "")
		return Verdict{Approved: true}, nil
	}

	p.console.Command(command)
	p.record(ctx, executeTool, "approval_requested", command, "", "")
	p.logger.Info("command requires confirmation", "command", command)

	for {
		reply, err := p.console.Ask(ctx, executePrompt)
		if err != nil {
			return Verdict{}, fmt.Errorf("confirmation: %w", err)
		}

		switch Classify(reply) {
		case Approved:
			p.metrics.Approvals.Inc()
			p.record(ctx, executeTool, "confirm_yes", command, "approved", "")
			return Verdict{Approved: true}, nil

		case Denied:
			feedback, err := p.console.Ask(ctx, feedbackPrompt)
			if err != nil {
				return Verdict{}, fmt.Errorf("confirmation feedback: %w", err)
			}
			p.metrics.Denials.Inc()
			p.record(ctx, executeTool, "confirm_no", command, "denied", feedback)
			return Verdict{Feedback: feedback}, nil

		default:
			p.logger.Debug("unclear confirmation reply", "reply", reply)
		}
	}
}

// Consultation is a one-shot question whose reply becomes a tool result.
type Consultation struct {
	Tool         string // tool being answered, for the audit log
	Subject      string // plan or command under review
	Question     string
	ApprovedText string
	DeniedText   string
}

// Consult asks the question once and returns ApprovedText or DeniedText for a
// clear reply, or the raw reply otherwise.
func (p *Policy) Consult(ctx context.Context, c Consultation) (string, error) {
	reply, err := p.console.Ask(ctx, c.Question)
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.Tool, err)
	}
	switch Classify(reply) {
	case Approved:
		p.metrics.Approvals.Inc()
		p.record(ctx, c.Tool, "confirm_yes", c.Subject, "approved", "")
		return c.ApprovedText, nil
	case Denied:
		p.metrics.Denials.Inc()
		p.record(ctx, c.Tool, "confirm_no", c.Subject, "denied", "")
		return c.DeniedText, nil
	default:
		p.record(ctx, c.Tool, "feedback", c.Subject, "", reply)
		return reply, nil
	}
}

func (p *Policy) record(ctx context.Context, toolName, action, command, result, details string) {
	if p.audit == nil {
		return
	}
	err := p.audit.LogAudit(ctx, domain.AuditEntry{
		RunID:    p.runID,
		Action:   action,
		ToolName: toolName,
		Command:  command,
		Result:   result,
		Details:  details,
	})
	if err != nil {
		p.logger.Warn("audit write failed", "action", action, "err", err)
	}
}

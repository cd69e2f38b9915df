package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"buddy/internal/capability"
	"buddy/internal/domain"
	"buddy/internal/model"
	"buddy/internal/security"
	"buddy/internal/tool"
)

// Tool results returned to the model.
const (
	resultSuccess   = "Success"
	resultNoAbility = "No such ability. Please try again with a different tool"

	planQuestion    = "Does this plan look right? (y/n)"
	planApproved    = "The plan was approved by the user"
	planDenied      = "The user did not approve the plan"
	commandQuestion = "Do you approve? (y/n)"
	commandApproved = "The command was approved by the user"
	commandDenied   = "The user did not approve the command"
)

// outcome is what a handler produced for one tool call.
type outcome struct {
	result   string
	terminal bool
	failed   bool
	summary  string
}

// toolHandler is resolved once per offered tool when the flow is built. It is
// either a builtinHandler or an actionHandler.
type toolHandler interface {
	handle(ctx context.Context, f *Flow, call domain.ToolCall) (outcome, error)
}

type builtinHandler func(ctx context.Context, call domain.ToolCall) (outcome, error)

func (h builtinHandler) handle(ctx context.Context, _ *Flow, call domain.ToolCall) (outcome, error) {
	return h(ctx, call)
}

type actionHandler struct {
	capability domain.Capability
	action     string
}

func (h actionHandler) handle(ctx context.Context, f *Flow, call domain.ToolCall) (outcome, error) {
	f.model.Metrics().ToolCall("capability")
	f.console.Info(fmt.Sprintf("Using the %s ability...", h.capability.Name()))
	out, err := capability.Call(ctx, h.capability, h.action, call.Arguments)
	if err != nil {
		if fatal(ctx, err) {
			return outcome{}, err
		}
		f.logger.Warn("capability action failed", "capability", h.capability.Name(), "action", h.action, "err", err)
		return outcome{result: "Error: " + err.Error()}, nil
	}
	if out == "" {
		out = resultSuccess
	}
	return outcome{result: out}, nil
}

// fatal reports whether a capability error must abort the flow rather than
// be shown to the model: cancellation and model failures in a
// sub-conversation.
func fatal(ctx context.Context, err error) bool {
	var pe *domain.ProviderError
	return ctx.Err() != nil || errors.As(err, &pe) || errors.Is(err, model.ErrInferenceExhausted) || errors.Is(err, model.ErrUnansweredToolCall)
}

func (f *Flow) builtin(name string) toolHandler {
	switch name {
	case toolProvidePlan:
		return builtinHandler(f.providePlan)
	case toolProvideExplanation:
		return builtinHandler(f.provideExplanation)
	case toolProvideResolution:
		return builtinHandler(f.provideResolution)
	case toolProvideCommand:
		return builtinHandler(f.provideCommand)
	case toolExecuteCommand:
		return builtinHandler(f.executeCommand)
	case toolEndProcess:
		return builtinHandler(f.endProcess)
	}
	panic("flow: no handler for built-in tool " + name)
}

// dispatch answers one tool call. Unknown tools are answered, never dropped.
// An error aborts the flow.
func (f *Flow) dispatch(ctx context.Context, call domain.ToolCall) (outcome, error) {
	f.logger.Debug("tool call", "tool", call.Name, "id", call.ID)

	if h, ok := f.handlers[call.Name]; ok {
		return h.handle(ctx, f, call)
	}
	if h, ok := f.bareAction(call.Name); ok {
		return h.handle(ctx, f, call)
	}

	f.model.Metrics().ToolCall("unknown")
	if capName, _, ok := capability.SplitQualified(call.Name); ok && !capability.Reserved(capName) {
		if _, enabled := f.capabilities[capName]; !enabled {
			f.logger.Warn("call to unavailable capability", "tool", call.Name)
			return outcome{result: resultNoAbility}, nil
		}
	}
	f.logger.Warn("call to unknown tool", "tool", call.Name)
	return outcome{result: fmt.Sprintf("No such tool '%s'", call.Name)}, nil
}

// bareAction resolves an unqualified action name when exactly one enabled
// capability offers it.
func (f *Flow) bareAction(name string) (toolHandler, bool) {
	var found toolHandler
	n := 0
	for qualified, h := range f.handlers {
		if _, ok := h.(actionHandler); !ok {
			continue
		}
		if _, action, ok := capability.SplitQualified(qualified); ok && action == name {
			found = h
			n++
		}
	}
	return found, n == 1
}

// --- Built-in handlers ---

func (f *Flow) providePlan(ctx context.Context, call domain.ToolCall) (outcome, error) {
	f.model.Metrics().ToolCall(toolProvidePlan)
	plan := tool.ArgsString(call.Arguments, "plan")
	f.console.Panel("Plan", plan)
	reply, err := f.policy.Consult(ctx, security.Consultation{
		Tool:         toolProvidePlan,
		Subject:      plan,
		Question:     planQuestion,
		ApprovedText: planApproved,
		DeniedText:   planDenied,
	})
	if err != nil {
		return outcome{}, err
	}
	return outcome{result: reply}, nil
}

func (f *Flow) provideExplanation(_ context.Context, call domain.ToolCall) (outcome, error) {
	f.model.Metrics().ToolCall(toolProvideExplanation)
	title := tool.ArgsString(call.Arguments, "title")
	if title == "" {
		title = "Explanation"
	}
	f.console.Panel(title, tool.ArgsString(call.Arguments, "explanation"))
	return outcome{result: resultSuccess}, nil
}

// provideResolution ends the flow as failed when recoverable is false. A
// missing flag counts as recoverable.
func (f *Flow) provideResolution(_ context.Context, call domain.ToolCall) (outcome, error) {
	f.model.Metrics().ToolCall(toolProvideResolution)
	resolution := tool.ArgsString(call.Arguments, "resolution")
	f.console.Panel("Resolution", resolution)

	recoverable, ok := tool.ArgsBool(call.Arguments, "recoverable")
	if ok && !recoverable {
		return outcome{result: resultSuccess, terminal: true, failed: true, summary: resolution}, nil
	}
	return outcome{result: resultSuccess}, nil
}

func (f *Flow) provideCommand(ctx context.Context, call domain.ToolCall) (outcome, error) {
	f.model.Metrics().ToolCall(toolProvideCommand)
	command := tool.ArgsString(call.Arguments, "command")
	f.console.Command(command)
	if sudo, _ := tool.ArgsBool(call.Arguments, "require_sudo"); sudo {
		f.console.Warn("This command requires sudo")
	}
	reply, err := f.policy.Consult(ctx, security.Consultation{
		Tool:         toolProvideCommand,
		Subject:      command,
		Question:     commandQuestion,
		ApprovedText: commandApproved,
		DeniedText:   commandDenied,
	})
	if err != nil {
		return outcome{}, err
	}
	return outcome{result: reply}, nil
}

// executeCommand runs the command once the policy allows it. Both output
// streams above the summary threshold are summarized before they reach the
// transcript; a summarization failure aborts the flow.
func (f *Flow) executeCommand(ctx context.Context, call domain.ToolCall) (outcome, error) {
	f.model.Metrics().ToolCall(toolExecuteCommand)
	command := strings.TrimSpace(tool.ArgsString(call.Arguments, "command"))
	if command == "" {
		return outcome{result: "Missing required argument: command"}, nil
	}

	dangerous, _ := tool.ArgsBool(call.Arguments, "dangerous")
	verdict, err := f.policy.ReviewCommand(ctx, command, dangerous)
	if err != nil {
		return outcome{}, err
	}
	if !verdict.Approved {
		return outcome{result: verdict.DeniedResult()}, nil
	}

	f.logger.Info("executing command", "command", command)
	res, runErr := f.runner.Run(ctx, command, true)
	f.model.Metrics().CommandLatency.Observe(res.Duration.Seconds())
	if runErr != nil {
		if ctx.Err() != nil {
			return outcome{}, runErr
		}
		f.logger.Warn("command did not complete", "command", command, "err", runErr)
	}

	stdout, err := f.model.SummarizeIfLong(ctx, res.Stdout)
	if err != nil {
		return outcome{}, err
	}
	stderr, err := f.model.SummarizeIfLong(ctx, res.Stderr)
	if err != nil {
		return outcome{}, err
	}

	head := "Execution complete"
	if runErr != nil {
		head = "Execution did not complete: " + runErr.Error()
	}
	return outcome{result: fmt.Sprintf("%s\n\n### Stdout Summary\n%s\n\n### Stderr Summary\n%s", head, stdout, stderr)}, nil
}

// endProcess is always terminal. A missing success flag counts as failure.
func (f *Flow) endProcess(_ context.Context, call domain.ToolCall) (outcome, error) {
	f.model.Metrics().ToolCall(toolEndProcess)
	success, _ := tool.ArgsBool(call.Arguments, "success")
	summary := tool.ArgsString(call.Arguments, "summary")
	details := tool.ArgsString(call.Arguments, "details")

	switch {
	case summary != "" && details != "":
		f.console.Panel("Result", fmt.Sprintf("### Summary\n%s\n\n### Details\n%s", summary, details))
	case summary != "":
		f.console.Panel("Result", summary)
	case details != "":
		f.console.Panel("Result", details)
	}
	return outcome{result: resultSuccess, terminal: true, failed: !success, summary: summary}, nil
}

package flow

import (
	"buddy/internal/domain"
	"buddy/internal/tool"
)

// Built-in tool names.
const (
	toolProvidePlan        = "provide_plan"
	toolProvideExplanation = "provide_explanation"
	toolProvideResolution  = "provide_resolution"
	toolProvideCommand     = "provide_command"
	toolExecuteCommand     = "execute_command"
	toolEndProcess         = "end_process"
)

var (
	providePlanTool = tool.MustMakeTool(toolProvidePlan,
		"Provides a plan to the user for accomplishing the task. This will be a numbered list with titles of each step and no other information",
		tool.Args{"plan": tool.T("string")},
		[]string{"plan"})

	provideExplanationTool = tool.MustMakeTool(toolProvideExplanation,
		"Provides an explanation for a step to the user in an informative manner. Commands should be explained in a way that can be educational for the user. The title should be the step number or name",
		tool.Args{"title": tool.T("string"), "explanation": tool.T("string")},
		[]string{"explanation"})

	provideResolutionTool = tool.MustMakeTool(toolProvideResolution,
		"Used to provide the resolution you will attempt after handling an unexpected output from a step. If the issue is not recoverable, the process will end",
		tool.Args{"resolution": tool.T("string"), "recoverable": tool.T("boolean")},
		[]string{"resolution"})

	provideCommandTool = tool.MustMakeTool(toolProvideCommand,
		"Provides a command to be executed as part of a step, prior to execution, for the user to either ask questions about or approve for execution",
		tool.Args{"command": tool.T("string"), "require_sudo": tool.T("boolean")},
		[]string{"command", "require_sudo"})

	endProcessTool = tool.MustMakeTool(toolEndProcess,
		"Ends the task, returning control of the terminal to the user",
		tool.Args{
			"success": tool.T("boolean"),
			"summary": tool.T("string"),
			"details": {Type: "string", Description: "Detailed information in markdown syntax about the task's results, if necessary"},
		},
		[]string{"success", "summary"})
)

func executeCommandTool(dangerous bool) domain.ToolDefinition {
	args := tool.Args{"command": tool.T("string")}
	required := []string{"command"}
	if dangerous {
		args["dangerous"] = tool.T("boolean")
		required = append(required, "dangerous")
	}
	return tool.MustMakeTool(toolExecuteCommand, "Execute a command in the shell", args, required)
}

// builtinTools lists the built-in tools offered by v, in offer order.
func builtinTools(v Variant) []domain.ToolDefinition {
	switch v {
	case Educational:
		return []domain.ToolDefinition{
			providePlanTool,
			provideExplanationTool,
			provideResolutionTool,
			provideCommandTool,
			executeCommandTool(false),
			endProcessTool,
		}
	case Explain:
		return []domain.ToolDefinition{provideExplanationTool, endProcessTool}
	default:
		return []domain.ToolDefinition{executeCommandTool(v.supervised()), endProcessTool}
	}
}

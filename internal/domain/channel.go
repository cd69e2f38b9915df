package domain

import "context"

// Operator is the human answering prompts at the terminal. Ask blocks until a
// line is read or ctx is done.
type Operator interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// Console is the operator-facing surface of a flow.
type Console interface {
	Operator
	// Panel renders markdown under a title.
	Panel(title, markdown string)
	// Command shows a command proposed by the model.
	Command(command string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	// Output echoes one line of a running command.
	Output(line string, isStderr bool)
	// Status shows a busy indicator until the returned func is called.
	Status(msg string) (stop func())
}

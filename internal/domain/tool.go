package domain

import "context"

// ActionFunc handles one invocation of a capability action. A returned error
// is shown to the model as the tool result; it never ends a flow by itself.
type ActionFunc func(ctx context.Context, args map[string]any) (string, error)

// Action is a named operation of a capability. Definition carries the
// unqualified action name and its argument schema.
type Action struct {
	Definition ToolDefinition
	Handler    ActionFunc
}

func (a Action) Name() string { return a.Definition.Name }

// Capability is a pluggable unit of functionality whose actions are offered
// to the model as tools while it is enabled.
type Capability interface {
	Name() string
	Description() string
	// Prompt is appended to the flow system prompt; it may be empty.
	Prompt() string
	Actions() []Action
	// Enable performs one-time setup and reports whether the capability is
	// usable. Calling it again must leave the same state.
	Enable(ctx context.Context, args map[string]string) bool
	// Disable undoes Enable where applicable. It is safe on a capability that
	// was never enabled.
	Disable(ctx context.Context)
}

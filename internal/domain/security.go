package domain

// AuditEntry records an operator decision or a command execution.
type AuditEntry struct {
	RunID    string
	Action   string // approval_requested | confirm_yes | confirm_no | feedback | tool_exec
	ToolName string
	Command  string
	Result   string // allowed | approved | denied, empty for requests and feedback
	Details  string
}

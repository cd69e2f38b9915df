package model

import (
	"slices"

	"buddy/internal/domain"
)

// Transcript is the ordered message history of one flow execution. It is
// append-only and not safe for concurrent use.
type Transcript struct {
	msgs []domain.Message
}

func NewTranscript(msgs ...domain.Message) *Transcript {
	return &Transcript{msgs: slices.Clone(msgs)}
}

func (t *Transcript) Append(msgs ...domain.Message) {
	t.msgs = append(t.msgs, msgs...)
}

// Messages returns a copy of the history.
func (t *Transcript) Messages() []domain.Message {
	return slices.Clone(t.msgs)
}

func (t *Transcript) Len() int { return len(t.msgs) }

// Last returns the most recent message.
func (t *Transcript) Last() (domain.Message, bool) {
	if len(t.msgs) == 0 {
		return domain.Message{}, false
	}
	return t.msgs[len(t.msgs)-1], true
}

// Unanswered returns the ids of tool calls in the latest assistant turn that
// have no tool result after it.
func (t *Transcript) Unanswered() []string {
	idx := -1
	for i := len(t.msgs) - 1; i >= 0; i-- {
		if t.msgs[i].Role == domain.RoleAssistant {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	answered := make(map[string]bool)
	for _, m := range t.msgs[idx+1:] {
		if m.Role == domain.RoleTool {
			answered[m.ToolCallID] = true
		}
	}
	var missing []string
	for _, tc := range t.msgs[idx].ToolCalls {
		if !answered[tc.ID] {
			missing = append(missing, tc.ID)
		}
	}
	return missing
}

// Reply appends the assistant turn of resp followed by one tool result per
// call, in call order. It is the usual way a sub-conversation answers a turn.
func (t *Transcript) Reply(resp *domain.ChatResponse, answer func(call domain.ToolCall) string) {
	t.Append(AssistantMessage(resp))
	for _, call := range resp.ToolCalls {
		t.Append(MakeToolResult(call, answer(call)))
	}
}

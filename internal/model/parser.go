package model

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"buddy/internal/domain"
)

// extractToolCallsFromContent parses tool calls that a model wrote into its
// text instead of the structured tool-call field. Handles several patterns:
//   - Pure JSON: `{"name":"execute_command","arguments":{...}}`
//   - Code-fenced: ```json\n{...}\n```
//   - Prefixed text: `assistant\n{"name":...}` (common with llama models)
//   - Mixed text: `Sure.\n{"name":...}\nLet me do that.`
func extractToolCallsFromContent(content string) []domain.ToolCall {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
			content = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	if calls := tryParseToolJSON(content); len(calls) > 0 {
		return calls
	}

	if start, end := findJSONBounds(content); start >= 0 && end > start {
		if calls := tryParseToolJSON(content[start:end]); len(calls) > 0 {
			return calls
		}
	}
	return nil
}

// findJSONBounds locates the first top-level JSON object or array in s.
// Returns the start index and end+1 index, or (-1, -1) if not found.
func findJSONBounds(s string) (int, int) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return -1, -1
	}

	openChar := s[start]
	closeChar := byte('}')
	if openChar == '[' {
		closeChar = ']'
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

type embeddedCall struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
	Arguments  map[string]any `json:"arguments"`
}

// tryParseToolJSON parses raw as a single tool call object or an array of them.
func tryParseToolJSON(raw string) []domain.ToolCall {
	text := raw
	var single embeddedCall
	if err := json.Unmarshal([]byte(text), &single); err != nil {
		text = sanitizeJSONEscapes(text)
		_ = json.Unmarshal([]byte(text), &single)
	}
	if single.Name != "" {
		return []domain.ToolCall{newExtractedCall(single)}
	}

	var multi []embeddedCall
	if err := json.Unmarshal([]byte(text), &multi); err != nil {
		_ = json.Unmarshal([]byte(sanitizeJSONEscapes(raw)), &multi)
	}
	var calls []domain.ToolCall
	for _, tc := range multi {
		if tc.Name == "" {
			continue
		}
		calls = append(calls, newExtractedCall(tc))
	}
	return calls
}

func newExtractedCall(c embeddedCall) domain.ToolCall {
	return domain.ToolCall{
		ID:        "extracted_" + uuid.NewString(),
		Name:      normalizeToolName(c.Name),
		Arguments: coalesce(c.Parameters, c.Arguments),
	}
}

// normalizeToolName undoes the hyphenation small models apply to tool names.
func normalizeToolName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), "-", "_")
}

// stripRolePrefix removes role-name prefixes that some local models leak into
// their content. Examples: "assistant\nHello" → "Hello".
func stripRolePrefix(content string) string {
	prefixes := []string{
		"assistant\n",
		"Assistant\n",
		"assistant:\n",
		"Assistant:\n",
		"assistant: ",
		"Assistant: ",
	}
	for _, p := range prefixes {
		if strings.HasPrefix(content, p) {
			return strings.TrimSpace(content[len(p):])
		}
	}
	return content
}

// coalesce returns the first non-nil map, or an empty map if both are nil.
func coalesce(a, b map[string]any) map[string]any {
	if a != nil {
		return a
	}
	if b != nil {
		return b
	}
	return make(map[string]any)
}

// sanitizeJSONEscapes drops the backslash of invalid JSON escape sequences
// (e.g. \% or \Y) that some models produce.
func sanitizeJSONEscapes(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '"' {
			inString = !inString
			buf.WriteByte(ch)
			continue
		}
		if inString && ch == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				buf.WriteByte(ch)
				// The escaped byte never toggles string state.
				i++
				buf.WriteByte(s[i])
			default:
				continue
			}
		} else {
			buf.WriteByte(ch)
		}
	}
	return buf.String()
}

package model

import "testing"

// --- extractToolCallsFromContent ---

func TestExtractToolCalls_SingleObject(t *testing.T) {
	calls := extractToolCallsFromContent(`{"name": "execute_command", "arguments": {"command": "ls -la"}}`)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "execute_command" || calls[0].Arguments["command"] != "ls -la" {
		t.Fatalf("unexpected call: %+v", calls[0])
	}
}

func TestExtractToolCalls_ParametersField(t *testing.T) {
	calls := extractToolCallsFromContent(`{"name": "analysis_analyze_file", "parameters": {"file_path": "/tmp/a.csv"}}`)
	if len(calls) != 1 || calls[0].Arguments["file_path"] != "/tmp/a.csv" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

func TestExtractToolCalls_Array(t *testing.T) {
	calls := extractToolCallsFromContent(`[{"name": "a", "arguments": {}}, {"name": "b", "arguments": {}}]`)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].ID == calls[1].ID {
		t.Fatal("extracted ids must differ")
	}
}

func TestExtractToolCalls_CodeFenceWrapped(t *testing.T) {
	calls := extractToolCallsFromContent("```json\n{\"name\": \"end_process\", \"arguments\": {\"success\": true}}\n```")
	if len(calls) != 1 || calls[0].Name != "end_process" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

func TestExtractToolCalls_MixedText(t *testing.T) {
	calls := extractToolCallsFromContent("Sure.\n{\"name\": \"execute_command\", \"arguments\": {\"command\": \"echo {}\"}}\nLet me do that.")
	if len(calls) != 1 || calls[0].Arguments["command"] != "echo {}" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

func TestExtractToolCalls_PlainText(t *testing.T) {
	if calls := extractToolCallsFromContent("Sure, let me help you with that!"); len(calls) != 0 {
		t.Fatalf("expected 0 calls, got %d", len(calls))
	}
	if calls := extractToolCallsFromContent(""); len(calls) != 0 {
		t.Fatalf("expected 0 calls for empty input, got %d", len(calls))
	}
	if calls := extractToolCallsFromContent(`{"name": "", "arguments": {}}`); len(calls) != 0 {
		t.Fatalf("expected 0 calls for empty name, got %d", len(calls))
	}
}

func TestExtractToolCalls_NilArguments(t *testing.T) {
	calls := extractToolCallsFromContent(`{"name": "end_process"}`)
	if len(calls) != 1 || calls[0].Arguments == nil {
		t.Fatalf("expected empty non-nil arguments, got %+v", calls)
	}
}

func TestExtractToolCalls_WithInvalidEscapes(t *testing.T) {
	calls := extractToolCallsFromContent(`{"name": "execute_command", "arguments": {"command": "echo 100\%"}}`)
	if len(calls) != 1 || calls[0].Arguments["command"] != "echo 100%" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

// --- helpers ---

func TestSanitizeJSONEscapes(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"key": "100\% done"}`, `{"key": "100% done"}`},
		{`{"msg": "Hello \World \!"}`, `{"msg": "Hello World !"}`},
		{`{"text": "line1\nline2\ttab"}`, `{"text": "line1\nline2\ttab"}`},
		{`{"p": "C:\\dir\\"}`, `{"p": "C:\\dir\\"}`},
		{`{"q": "say \"hi\""}`, `{"q": "say \"hi\""}`},
		{``, ``},
	}
	for _, tt := range tests {
		if got := sanitizeJSONEscapes(tt.in); got != tt.want {
			t.Errorf("sanitizeJSONEscapes(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStripRolePrefix(t *testing.T) {
	tests := map[string]string{
		"assistant\nHello":  "Hello",
		"Assistant: Hello":  "Hello",
		"Hello":             "Hello",
		"assistantship now": "assistantship now",
	}
	for in, want := range tests {
		if got := stripRolePrefix(in); got != want {
			t.Errorf("stripRolePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFindJSONBounds(t *testing.T) {
	s := `text {"a": "}"} more`
	start, end := findJSONBounds(s)
	if got := s[start:end]; got != `{"a": "}"}` {
		t.Fatalf("unexpected bounds: %q", got)
	}
	if start, end := findJSONBounds("no json"); start != -1 || end != -1 {
		t.Fatalf("expected (-1,-1), got (%d,%d)", start, end)
	}
}

func TestCoalesce(t *testing.T) {
	a := map[string]any{"x": 1}
	b := map[string]any{"y": 2}
	if got := coalesce(a, b); got["x"] != 1 {
		t.Fatal("expected first map")
	}
	if got := coalesce(nil, b); got["y"] != 2 {
		t.Fatal("expected second map")
	}
	if got := coalesce(nil, nil); got == nil || len(got) != 0 {
		t.Fatal("expected empty map")
	}
}

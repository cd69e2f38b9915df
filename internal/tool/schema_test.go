package tool

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// --- MakeTool ---

func TestMakeTool_DescribedAndBareParams(t *testing.T) {
	def, err := MakeTool("provide_command", "Provides a command", Args{
		"command":      {Type: "string", Description: "The shell command"},
		"require_sudo": T("boolean"),
		"note":         T("string"),
	}, []string{"command", "require_sudo"})
	if err != nil {
		t.Fatalf("MakeTool: %v", err)
	}

	want := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command":      map[string]any{"type": "string", "description": "The shell command"},
			"require_sudo": map[string]any{"type": "boolean", "description": "require_sudo is required"},
			"note":         map[string]any{"type": "string"},
		},
		"required": []string{"command", "require_sudo"},
	}
	if diff := cmp.Diff(want, def.Parameters); diff != "" {
		t.Errorf("parameters mismatch (-want +got):\n%s", diff)
	}
	if def.Name != "provide_command" || def.Description != "Provides a command" {
		t.Errorf("name/description: got %q / %q", def.Name, def.Description)
	}
}

func TestMakeTool_NilArgs_EmptyObject(t *testing.T) {
	def, err := MakeTool("stop_reading", "Stop", nil, nil)
	if err != nil {
		t.Fatalf("MakeTool: %v", err)
	}
	if got := PropertiesOf(def); len(got) != 0 {
		t.Errorf("properties: got %v", got)
	}
	req := RequiredOf(def)
	if req == nil || len(req) != 0 {
		t.Errorf("required should be an empty non-nil list, got %#v", req)
	}
}

func TestMakeTool_UndeclaredRequired_Error(t *testing.T) {
	if _, err := MakeTool("x", "d", Args{"a": T("string")}, []string{"b"}); err == nil {
		t.Fatal("expected error for undeclared required parameter")
	}
}

func TestMakeTool_MissingType_Error(t *testing.T) {
	if _, err := MakeTool("x", "d", Args{"a": {Description: "no type"}}, nil); err == nil {
		t.Fatal("expected error for untyped parameter")
	}
}

func TestMakeTool_EmptyName_Error(t *testing.T) {
	if _, err := MakeTool("", "d", nil, nil); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestMakeTool_RequiredIsCopied(t *testing.T) {
	required := []string{"a"}
	def := MustMakeTool("x", "d", Args{"a": T("string")}, required)
	required[0] = "mutated"
	if RequiredOf(def)[0] != "a" {
		t.Fatal("definition must not alias the caller's slice")
	}
}

func TestMustMakeTool_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	MustMakeTool("x", "d", nil, []string{"missing"})
}

// --- argument helpers ---

func TestArgsBool(t *testing.T) {
	cases := []struct {
		in     any
		want   bool
		wantOK bool
	}{
		{true, true, true},
		{false, false, true},
		{"true", true, true},
		{"False", false, true},
		{float64(1), true, true},
		{"maybe", false, false},
		{nil, false, false},
	}
	for _, c := range cases {
		got, ok := ArgsBool(map[string]any{"k": c.in}, "k")
		if got != c.want || ok != c.wantOK {
			t.Errorf("ArgsBool(%v): got (%v,%v), want (%v,%v)", c.in, got, ok, c.want, c.wantOK)
		}
	}
	if _, ok := ArgsBool(map[string]any{}, "k"); ok {
		t.Error("absent key should report ok=false")
	}
}

func TestArgsString(t *testing.T) {
	args := map[string]any{"s": "hi", "n": float64(3)}
	if ArgsString(args, "s") != "hi" {
		t.Error("string value")
	}
	if ArgsString(args, "n") != "3" {
		t.Errorf("number value: got %q", ArgsString(args, "n"))
	}
	if ArgsString(nil, "s") != "" || ArgsString(args, "missing") != "" {
		t.Error("absent values should be empty")
	}
}

package tool

import (
	"encoding/json"
	"fmt"
	"slices"

	"buddy/internal/domain"
)

// Param describes a single tool parameter. A Param with an empty Description
// is the "bare type" form.
type Param struct {
	Type        string
	Description string
}

// Args maps parameter names to their schema.
type Args map[string]Param

// T is shorthand for a bare-typed parameter.
func T(typ string) Param { return Param{Type: typ} }

// MakeTool builds a provider-agnostic tool definition. A nil args yields an
// empty object schema. Every name in required must be a key of args.
// Required parameters given in bare form get the description "<name> is required".
func MakeTool(name, description string, args Args, required []string) (domain.ToolDefinition, error) {
	if name == "" {
		return domain.ToolDefinition{}, fmt.Errorf("tool name is empty")
	}
	for _, r := range required {
		if _, ok := args[r]; !ok {
			return domain.ToolDefinition{}, fmt.Errorf("tool %s: required parameter %q is not declared", name, r)
		}
	}

	props := make(map[string]any, len(args))
	for param, p := range args {
		if p.Type == "" {
			return domain.ToolDefinition{}, fmt.Errorf("tool %s: parameter %q has no type", name, param)
		}
		prop := map[string]any{"type": p.Type}
		desc := p.Description
		if desc == "" && slices.Contains(required, param) {
			desc = fmt.Sprintf("%s is required", param)
		}
		if desc != "" {
			prop["description"] = desc
		}
		props[param] = prop
	}

	req := make([]string, len(required))
	copy(req, required)

	return domain.ToolDefinition{
		Name:        name,
		Description: description,
		Parameters: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   req,
		},
	}, nil
}

// MustMakeTool is MakeTool for static definitions; a malformed definition is a
// programming error and panics.
func MustMakeTool(name, description string, args Args, required []string) domain.ToolDefinition {
	def, err := MakeTool(name, description, args, required)
	if err != nil {
		panic(err)
	}
	return def
}

// RequiredOf returns the required list of a definition built by MakeTool.
func RequiredOf(def domain.ToolDefinition) []string {
	req, _ := def.Parameters["required"].([]string)
	return req
}

// PropertiesOf returns the property names of a definition built by MakeTool.
func PropertiesOf(def domain.ToolDefinition) []string {
	props, _ := def.Parameters["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for n := range props {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func ArgsString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// ArgsBool reads a boolean argument. Models sometimes send "true"/"false"
// strings; those are accepted too. ok is false when the key is absent.
func ArgsBool(args map[string]any, key string) (value, ok bool) {
	v, present := args[key]
	if !present || v == nil {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch b {
		case "true", "True", "TRUE", "yes", "1":
			return true, true
		case "false", "False", "FALSE", "no", "0":
			return false, true
		}
	case float64:
		return b != 0, true
	}
	return false, false
}

package config

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// leaf is one settable value, addressed by its dot path in `buddy config`.
type leaf[T any] struct {
	get    func(T) any
	set    func(T, string) error
	secret bool
}

func textLeaf[T any](field func(T) *string) leaf[T] {
	return leaf[T]{
		get: func(t T) any { return *field(t) },
		set: func(t T, v string) error { *field(t) = strings.TrimSpace(v); return nil },
	}
}

func intLeaf[T any](field func(T) *int) leaf[T] {
	return leaf[T]{
		get: func(t T) any { return *field(t) },
		set: func(t T, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%q is not a whole number", v)
			}
			*field(t) = n
			return nil
		},
	}
}

func boolLeaf[T any](field func(T) *bool) leaf[T] {
	return leaf[T]{
		get: func(t T) any { return *field(t) },
		set: func(t T, v string) error {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%q is not true or false", v)
			}
			*field(t) = b
			return nil
		},
	}
}

func secretLeaf[T any](field func(T) *string) leaf[T] {
	l := textLeaf(field)
	l.secret = true
	return l
}

// settings are the fixed leaves outside providers and abilities.
var settings = map[string]leaf[*Config]{
	"general.provider":         textLeaf(func(c *Config) *string { return &c.General.Provider }),
	"general.logLevel":         textLeaf(func(c *Config) *string { return &c.General.LogLevel }),
	"general.logFile":          textLeaf(func(c *Config) *string { return &c.General.LogFile }),
	"general.maxIterations":    intLeaf(func(c *Config) *int { return &c.General.MaxIterations }),
	"general.summaryThreshold": intLeaf(func(c *Config) *int { return &c.General.SummaryThreshold }),

	"shell.shell":          textLeaf(func(c *Config) *string { return &c.Shell.Shell }),
	"shell.timeoutSeconds": intLeaf(func(c *Config) *int { return &c.Shell.TimeoutSeconds }),

	"store.dbPath":   textLeaf(func(c *Config) *string { return &c.Store.DBPath }),
	"store.auditLog": boolLeaf(func(c *Config) *bool { return &c.Store.AuditLog }),

	"browser.profileDir":         textLeaf(func(c *Config) *string { return &c.Browser.ProfileDir }),
	"browser.headless":           boolLeaf(func(c *Config) *bool { return &c.Browser.Headless }),
	"browser.pageTimeoutSeconds": intLeaf(func(c *Config) *int { return &c.Browser.PageTimeoutSeconds }),
	"browser.searchUrl":          textLeaf(func(c *Config) *string { return &c.Browser.SearchURL }),
	"browser.maxChunks":          intLeaf(func(c *Config) *int { return &c.Browser.MaxChunks }),
}

// providerSettings are the leaves under providers.<name>.
var providerSettings = map[string]leaf[*ProviderConfig]{
	"enabled":        boolLeaf(func(p *ProviderConfig) *bool { return &p.Enabled }),
	"apiBase":        textLeaf(func(p *ProviderConfig) *string { return &p.APIBase }),
	"apiKey":         secretLeaf(func(p *ProviderConfig) *string { return &p.APIKey }),
	"model":          textLeaf(func(p *ProviderConfig) *string { return &p.Model }),
	"summaryModel":   textLeaf(func(p *ProviderConfig) *string { return &p.SummaryModel }),
	"httpRetries":    intLeaf(func(p *ProviderConfig) *int { return &p.HTTPRetries }),
	"timeoutSeconds": intLeaf(func(p *ProviderConfig) *int { return &p.TimeoutSeconds }),
}

const abilitiesPath = "abilities"

// ListPaths returns every settable path with its current value.
func ListPaths(cfg *Config) map[string]any {
	out := make(map[string]any, len(settings)+len(cfg.Providers)*len(providerSettings)+1)
	for path, l := range settings {
		out[path] = l.get(cfg)
	}
	for name, pc := range cfg.Providers {
		for field, l := range providerSettings {
			out["providers."+name+"."+field] = l.get(&pc)
		}
	}
	out[abilitiesPath] = cfg.EnabledAbilities()
	return out
}

// GetByPath returns the value at a dot path such as "general.provider". A
// section path ("general", "providers.openai") returns the nested values
// below it; "abilities.N" returns one enabled ability.
func GetByPath(cfg *Config, path string) (any, error) {
	path = strings.Trim(path, ". ")
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}
	if i, ok := strings.CutPrefix(path, abilitiesPath+"."); ok {
		idx, err := strconv.Atoi(i)
		if err != nil || idx < 0 || idx >= len(cfg.Abilities) {
			return nil, fmt.Errorf("invalid ability index: %s", i)
		}
		return cfg.Abilities[idx], nil
	}

	all := ListPaths(cfg)
	if v, ok := all[path]; ok {
		return v, nil
	}
	tree := map[string]any{}
	prefix := path + "."
	for p, v := range all {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok {
			continue
		}
		insert(tree, strings.Split(rest, "."), v)
	}
	if len(tree) == 0 {
		return nil, fmt.Errorf("key not found: %s", path)
	}
	return tree, nil
}

func insert(tree map[string]any, keys []string, v any) {
	for _, k := range keys[:len(keys)-1] {
		child, ok := tree[k].(map[string]any)
		if !ok {
			child = map[string]any{}
			tree[k] = child
		}
		tree = child
	}
	tree[keys[len(keys)-1]] = v
}

// SetByPath parses value for the leaf at path and applies it. The result is
// validated as a whole; on any error cfg is left unchanged. "abilities" takes
// a comma-separated list.
func SetByPath(cfg *Config, path, value string) error {
	next := clone(cfg)
	if err := apply(next, strings.Trim(path, ". "), value); err != nil {
		return err
	}
	if err := Validate(next); err != nil {
		return err
	}
	*cfg = *next
	return nil
}

func apply(cfg *Config, path, value string) error {
	if l, ok := settings[path]; ok {
		if err := l.set(cfg, value); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return nil
	}

	if path == abilitiesPath {
		cfg.Abilities = cfg.Abilities[:0]
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.Abilities = append(cfg.Abilities, name)
			}
		}
		return nil
	}

	if rest, ok := strings.CutPrefix(path, "providers."); ok {
		name, field, ok := strings.Cut(rest, ".")
		if !ok {
			return fmt.Errorf("not a settable value: %s", path)
		}
		pc, known := cfg.Providers[name]
		if !known {
			return fmt.Errorf("unknown provider: %s", name)
		}
		l, ok := providerSettings[field]
		if !ok {
			return fmt.Errorf("unknown provider setting: %s", field)
		}
		if err := l.set(&pc, value); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		cfg.Providers[name] = pc
		return nil
	}

	return fmt.Errorf("not a settable value: %s", path)
}

// clone copies cfg deeply enough that apply cannot reach the original.
func clone(cfg *Config) *Config {
	c := *cfg
	c.Providers = maps.Clone(cfg.Providers)
	c.Abilities = slices.Clone(cfg.Abilities)
	return &c
}

// Sanitize returns a copy of the config with secret leaves masked.
func Sanitize(cfg *Config) *Config {
	c := clone(cfg)
	for name, pc := range c.Providers {
		for _, l := range providerSettings {
			if !l.secret {
				continue
			}
			if s, _ := l.get(&pc).(string); s != "" {
				_ = l.set(&pc, maskString(s))
			}
		}
		c.Providers[name] = pc
	}
	return c
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

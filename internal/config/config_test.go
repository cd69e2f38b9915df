package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_MaxIterations_Bounds(t *testing.T) {
	cfg := Defaults()
	cfg.General.MaxIterations = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxIterations=0")
	}

	cfg.General.MaxIterations = 999
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxIterations=999")
	}

	for _, n := range []int{1, 200} {
		cfg.General.MaxIterations = n
		if err := Validate(cfg); err != nil {
			t.Fatalf("maxIterations=%d should be valid: %v", n, err)
		}
	}
}

func TestValidate_UnknownCurrentProvider(t *testing.T) {
	cfg := Defaults()
	cfg.General.Provider = "nope"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown current provider")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "loud"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestValidate_DuplicateAbility(t *testing.T) {
	cfg := Defaults()
	cfg.Abilities = []string{"browsing", "browsing"}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for duplicate ability")
	}
}

func TestValidate_HTTPRetriesRange(t *testing.T) {
	cfg := Defaults()
	pc := cfg.Providers["openai"]
	pc.HTTPRetries = 11
	cfg.Providers["openai"] = pc
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for httpRetries=11")
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.General.MaxIterations = 0
	cfg.Shell.TimeoutSeconds = -1
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"general.maxIterations", "shell.timeoutSeconds"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error should mention %s: %s", want, msg)
		}
	}
}

// --- Abilities ---

func TestEnableDisableAbility(t *testing.T) {
	cfg := Defaults()
	if !cfg.EnableAbility("browsing") {
		t.Fatal("first enable should report a change")
	}
	if cfg.EnableAbility("browsing") {
		t.Fatal("second enable should be a no-op")
	}
	cfg.EnableAbility("analysis")
	if diff := cmp.Diff([]string{"browsing", "analysis"}, cfg.EnabledAbilities()); diff != "" {
		t.Fatalf("abilities mismatch (-want +got):\n%s", diff)
	}
	if !cfg.DisableAbility("browsing") {
		t.Fatal("disable should report a change")
	}
	if cfg.DisableAbility("browsing") {
		t.Fatal("second disable should be a no-op")
	}
	if diff := cmp.Diff([]string{"analysis"}, cfg.EnabledAbilities()); diff != "" {
		t.Fatalf("abilities mismatch (-want +got):\n%s", diff)
	}
}

func TestEnabledAbilities_ReturnsCopy(t *testing.T) {
	cfg := Defaults()
	cfg.EnableAbility("browsing")
	got := cfg.EnabledAbilities()
	got[0] = "mutated"
	if cfg.Abilities[0] != "browsing" {
		t.Fatal("EnabledAbilities must not alias config state")
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	original := Defaults()
	original.General.Provider = "claude"
	original.EnableAbility("analysis")

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.CurrentProvider() != "claude" {
		t.Fatalf("expected 'claude', got %q", loaded.CurrentProvider())
	}
	if diff := cmp.Diff([]string{"analysis"}, loaded.EnabledAbilities()); diff != "" {
		t.Fatalf("abilities mismatch (-want +got):\n%s", diff)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("config file should be private, got %v", info.Mode().Perm())
	}
}

func TestLoad_MissingFile_ReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("missing file should yield defaults: %v", err)
	}
	if cfg.CurrentProvider() != "" {
		t.Fatalf("fresh config has no provider, got %q", cfg.CurrentProvider())
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{"general": {"maxIterations": 0}}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgFile); err == nil {
		t.Fatal("expected validation error for maxIterations=0")
	}
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_BUDDY_MODEL", "gpt-test")

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{
		"general": {"provider": "openai"},
		"providers": {"openai": {"enabled": true, "model": "${TEST_BUDDY_MODEL}"}}
	}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Providers["openai"].Model != "gpt-test" {
		t.Fatalf("expected model 'gpt-test', got %q", cfg.Providers["openai"].Model)
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "providers.ollama.apiBase")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "http://localhost:11434" {
		t.Fatalf("unexpected value %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	cfg := Defaults()
	if _, err := GetByPath(cfg, "nonexistent.path"); err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}

func TestSetByPath_StringAndIntAndBool(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "general.provider", "claude"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := SetByPath(cfg, "general.maxIterations", "75"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if err := SetByPath(cfg, "store.auditLog", "false"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if cfg.General.Provider != "claude" || cfg.General.MaxIterations != 75 || cfg.Store.AuditLog {
		t.Fatalf("unexpected config after set: %+v %+v", cfg.General, cfg.Store)
	}
}

func TestSetByPath_RejectsInvalidResult(t *testing.T) {
	cases := []struct{ path, value string }{
		{"general.maxIterations", "500"},
		{"general.maxIterations", "many"},
		{"general.provider", "nope"},
		{"store.auditLog", "sometimes"},
		{"providers.nope.model", "x"},
		{"providers.openai.color", "blue"},
		{"providers.openai", "x"},
		{"general", "x"},
		{"abilities", "browsing,browsing"},
	}
	for _, c := range cases {
		cfg := Defaults()
		if err := SetByPath(cfg, c.path, c.value); err == nil {
			t.Errorf("SetByPath(%s, %s): expected error", c.path, c.value)
		}
		if diff := cmp.Diff(Defaults(), cfg); diff != "" {
			t.Errorf("SetByPath(%s, %s) changed config on error (-want +got):\n%s", c.path, c.value, diff)
		}
	}
}

func TestSetByPath_ProviderField(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "providers.ollama.httpRetries", "3"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := cfg.Providers["ollama"]; got.HTTPRetries != 3 || got.Model != "llama3.1:8b" {
		t.Fatalf("unexpected provider after set: %+v", got)
	}
}

func TestSetByPath_Abilities(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "abilities", " browsing, analysis ,"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if diff := cmp.Diff([]string{"browsing", "analysis"}, cfg.Abilities); diff != "" {
		t.Fatalf("abilities (-want +got):\n%s", diff)
	}
	if v, err := GetByPath(cfg, "abilities.1"); err != nil || v != "analysis" {
		t.Fatalf("abilities.1 = %v, %v", v, err)
	}
	if _, err := GetByPath(cfg, "abilities.2"); err == nil {
		t.Fatal("expected error for out of range ability index")
	}
	if err := SetByPath(cfg, "abilities", ""); err != nil || len(cfg.Abilities) != 0 {
		t.Fatalf("clearing abilities: %v %v", cfg.Abilities, err)
	}
}

func TestGetByPath_Section(t *testing.T) {
	v, err := GetByPath(Defaults(), "providers.ollama")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok || m["apiBase"] != "http://localhost:11434" || m["enabled"] != true {
		t.Fatalf("unexpected section %#v", v)
	}
	v, err = GetByPath(Defaults(), "providers")
	if err != nil {
		t.Fatalf("get providers: %v", err)
	}
	if _, ok := v.(map[string]any)["gemini"].(map[string]any); !ok {
		t.Fatalf("providers section missing gemini: %#v", v)
	}
}

// --- Sanitize ---

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Providers["openai"] = ProviderConfig{Enabled: true, APIKey: "sk-1234567890abcdefghijklmnop"}
	cfg.Providers["claude"] = ProviderConfig{Enabled: true, APIKey: "short"}

	sanitized := Sanitize(cfg)

	if got := sanitized.Providers["openai"].APIKey; got != "sk-1****mnop" {
		t.Fatalf("API key should be masked, got %q", got)
	}
	if got := sanitized.Providers["claude"].APIKey; got != "***" {
		t.Fatalf("short secret should be '***', got %q", got)
	}
	if cfg.Providers["openai"].APIKey != "sk-1234567890abcdefghijklmnop" {
		t.Fatal("original config should not be modified")
	}
}

// --- ListPaths ---

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	paths := ListPaths(Defaults())
	for _, expected := range []string{"general.logLevel", "store.dbPath", "browser.searchUrl", "providers.openai.model", "abilities"} {
		if _, ok := paths[expected]; !ok {
			t.Errorf("missing expected path: %s", expected)
		}
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-abc123")
	t.Setenv("EMPTY_VAR", "")
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")

	cases := []struct{ in, want string }{
		{`"${TEST_API_KEY}"`, `"sk-abc123"`},
		{`"${TOTALLY_UNSET_VAR_XYZ:-8080}"`, `"8080"`},
		{`"${TEST_API_KEY:-fallback}"`, `"sk-abc123"`},
		{`"${EMPTY_VAR:-fallback}"`, `"fallback"`},
		{`"${TOTALLY_UNSET_VAR_XYZ}"`, `"${TOTALLY_UNSET_VAR_XYZ}"`},
		{`"$HOME is not substituted"`, `"$HOME is not substituted"`},
	}
	for _, c := range cases {
		if got := ExpandEnvVars(c.in); got != c.want {
			t.Errorf("ExpandEnvVars(%s): got %s, want %s", c.in, got, c.want)
		}
	}
}

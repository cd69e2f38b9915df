package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// Config is the root configuration for buddy.
type Config struct {
	General   GeneralConfig             `json:"general"`
	Providers map[string]ProviderConfig `json:"providers"`
	Abilities []string                  `json:"abilities"`
	Shell     ShellConfig               `json:"shell"`
	Store     StoreConfig               `json:"store"`
	Browser   BrowserConfig             `json:"browser"`
}

type GeneralConfig struct {
	Provider         string `json:"provider"` // current provider
	LogLevel         string `json:"logLevel"`
	LogFile          string `json:"logFile,omitempty"`
	MaxIterations    int    `json:"maxIterations"`
	SummaryThreshold int    `json:"summaryThreshold"` // characters before output is condensed
}

type ProviderConfig struct {
	Enabled        bool   `json:"enabled"`
	APIBase        string `json:"apiBase,omitempty"`
	APIKey         string `json:"apiKey,omitempty"` // prefer the secret store; kept for ${VAR} configs
	Model          string `json:"model,omitempty"`
	SummaryModel   string `json:"summaryModel,omitempty"` // cheaper profile used to condense output
	HTTPRetries    int    `json:"httpRetries,omitempty"`  // 0 = failures propagate immediately
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

type ShellConfig struct {
	Shell          string `json:"shell"`
	TimeoutSeconds int    `json:"timeoutSeconds"` // 0 = no timeout
}

type StoreConfig struct {
	DBPath   string `json:"dbPath"`
	AuditLog bool   `json:"auditLog"`
}

type BrowserConfig struct {
	ProfileDir         string `json:"profileDir,omitempty"`
	Headless           bool   `json:"headless"`
	PageTimeoutSeconds int    `json:"pageTimeoutSeconds"`
	SearchURL          string `json:"searchUrl"`
	MaxChunks          int    `json:"maxChunks"` // page text chunks read per webpage
}

// CurrentProvider returns the configured provider name, or "" when unset.
func (c *Config) CurrentProvider() string {
	return c.General.Provider
}

// EnabledAbilities returns the enabled capability names in configured order.
func (c *Config) EnabledAbilities() []string {
	return slices.Clone(c.Abilities)
}

// EnableAbility adds name to the enabled list. It reports false if already present.
func (c *Config) EnableAbility(name string) bool {
	if slices.Contains(c.Abilities, name) {
		return false
	}
	c.Abilities = append(c.Abilities, name)
	return true
}

// DisableAbility removes name from the enabled list. It reports false if absent.
func (c *Config) DisableAbility(name string) bool {
	i := slices.Index(c.Abilities, name)
	if i < 0 {
		return false
	}
	c.Abilities = slices.Delete(c.Abilities, i, i+1)
	return true
}

// DefaultConfigDir returns the default config directory (~/.buddy).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".buddy"
	}
	return filepath.Join(home, ".buddy")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the config at path. A missing file yields the defaults so a fresh
// install works before `buddy use provider` has written anything.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Defaults()
		expandPaths(cfg)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	expandPaths(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func expandPaths(cfg *Config) {
	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Browser.ProfileDir = ExpandPath(cfg.Browser.ProfileDir)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	// May carry API keys.
	return os.WriteFile(path, data, 0o600)
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.MaxIterations < 1 || cfg.General.MaxIterations > 200 {
		errs = append(errs, "general.maxIterations must be between 1 and 200")
	}
	if cfg.General.SummaryThreshold < 1 {
		errs = append(errs, "general.summaryThreshold must be >= 1")
	}
	if cfg.General.LogLevel != "" && !slices.Contains(logLevels, cfg.General.LogLevel) {
		errs = append(errs, "general.logLevel must be one of: "+strings.Join(logLevels, ", "))
	}
	if p := cfg.General.Provider; p != "" {
		if _, ok := cfg.Providers[p]; !ok {
			errs = append(errs, fmt.Sprintf("general.provider references unknown provider: %s", p))
		}
	}

	if cfg.Shell.TimeoutSeconds < 0 {
		errs = append(errs, "shell.timeoutSeconds must be >= 0")
	}
	if cfg.Browser.PageTimeoutSeconds < 1 {
		errs = append(errs, "browser.pageTimeoutSeconds must be >= 1")
	}
	if cfg.Browser.MaxChunks < 1 {
		errs = append(errs, "browser.maxChunks must be >= 1")
	}

	seen := make(map[string]bool, len(cfg.Abilities))
	for _, a := range cfg.Abilities {
		if seen[a] {
			errs = append(errs, fmt.Sprintf("abilities lists %q more than once", a))
		}
		seen[a] = true
	}

	for name, pc := range cfg.Providers {
		if pc.HTTPRetries < 0 || pc.HTTPRetries > 10 {
			errs = append(errs, fmt.Sprintf("providers.%s.httpRetries must be between 0 and 10", name))
		}
		if pc.TimeoutSeconds < 0 {
			errs = append(errs, fmt.Sprintf("providers.%s.timeoutSeconds must be >= 0", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"buddy/internal/config"
	"buddy/internal/domain"
)

// ErrNoAPIKey is returned when a provider that needs a key has none.
var ErrNoAPIKey = errors.New("no API key")

// SecretStore supplies provider API keys.
type SecretStore interface {
	APIKey(ctx context.Context, provider string) (string, error)
}

// ProviderConstructor creates a provider from its config entry and key.
type ProviderConstructor func(ctx context.Context, pc config.ProviderConfig, apiKey string, logger *slog.Logger) (domain.Provider, error)

type constructorEntry struct {
	ctor     ProviderConstructor
	needsKey bool
}

// Factory creates and caches LLM providers from config.
type Factory struct {
	cfg          *config.Config
	secrets      SecretStore
	logger       *slog.Logger
	constructors map[string]constructorEntry
	cache        map[string]domain.Provider
	mu           sync.RWMutex
}

// NewFactory creates a provider factory with the built-in constructors registered.
func NewFactory(cfg *config.Config, secrets SecretStore, logger *slog.Logger) *Factory {
	f := &Factory{
		cfg:          cfg,
		secrets:      secrets,
		logger:       logger,
		constructors: make(map[string]constructorEntry),
		cache:        make(map[string]domain.Provider),
	}
	f.registerDefaults()
	return f
}

// RegisterConstructor adds (or replaces) a provider constructor by name.
func (f *Factory) RegisterConstructor(name string, needsKey bool, ctor ProviderConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = constructorEntry{ctor: ctor, needsKey: needsKey}
}

func timeout(pc config.ProviderConfig) time.Duration {
	return time.Duration(pc.TimeoutSeconds) * time.Second
}

// registerDefaults registers all built-in provider constructors.
func (f *Factory) registerDefaults() {
	f.constructors["openai"] = constructorEntry{needsKey: true, ctor: func(_ context.Context, pc config.ProviderConfig, key string, logger *slog.Logger) (domain.Provider, error) {
		return NewOpenAI(OpenAIConfig{APIKey: key, APIBase: pc.APIBase, Model: pc.Model, Retries: pc.HTTPRetries, Timeout: timeout(pc), Logger: logger}), nil
	}}
	f.constructors["claude"] = constructorEntry{needsKey: true, ctor: func(_ context.Context, pc config.ProviderConfig, key string, logger *slog.Logger) (domain.Provider, error) {
		return NewClaude(ClaudeConfig{APIKey: key, APIBase: pc.APIBase, Model: pc.Model, Retries: pc.HTTPRetries, Timeout: timeout(pc), Logger: logger}), nil
	}}
	f.constructors["gemini"] = constructorEntry{needsKey: true, ctor: func(ctx context.Context, pc config.ProviderConfig, key string, logger *slog.Logger) (domain.Provider, error) {
		return NewGemini(ctx, GeminiConfig{APIKey: key, Model: pc.Model, Timeout: timeout(pc), Logger: logger})
	}}
	f.constructors["ollama"] = constructorEntry{needsKey: false, ctor: func(_ context.Context, pc config.ProviderConfig, _ string, logger *slog.Logger) (domain.Provider, error) {
		return NewOllama(OllamaConfig{APIBase: pc.APIBase, DefaultModel: pc.Model, Retries: pc.HTTPRetries, Timeout: timeout(pc), Logger: logger}), nil
	}}
}

// Known lists every provider name that has a config entry, sorted.
func (f *Factory) Known() []string {
	names := make([]string, 0, len(f.cfg.Providers))
	for n := range f.cfg.Providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NeedsKey reports whether the named provider requires an API key.
func (f *Factory) NeedsKey(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if e, ok := f.constructors[name]; ok {
		return e.needsKey
	}
	return true
}

// Get returns the provider with the given name, or the current one if name is
// empty. Created providers are cached.
func (f *Factory) Get(ctx context.Context, name string) (domain.Provider, error) {
	if name == "" {
		name = f.cfg.CurrentProvider()
	}
	if name == "" {
		return nil, fmt.Errorf("no provider selected, run `buddy use provider <name>`")
	}

	f.mu.RLock()
	if cached, ok := f.cache[name]; ok {
		f.mu.RUnlock()
		return cached, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.cache[name]; ok {
		return cached, nil
	}

	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", name)
	}

	entry, found := f.constructors[name]
	if !found {
		// Unknown names with an endpoint are treated as OpenAI-compatible.
		if pc.APIBase == "" {
			return nil, fmt.Errorf("provider %s: no constructor registered and no apiBase configured", name)
		}
		entry = constructorEntry{needsKey: true, ctor: func(_ context.Context, pc config.ProviderConfig, key string, logger *slog.Logger) (domain.Provider, error) {
			return NewOpenAI(OpenAIConfig{Name: name, APIKey: key, APIBase: pc.APIBase, Model: pc.Model, Retries: pc.HTTPRetries, Timeout: timeout(pc), Logger: logger}), nil
		}}
	}

	key, err := f.apiKey(ctx, name, pc)
	if err != nil && entry.needsKey {
		return nil, err
	}

	p, err := entry.ctor(ctx, pc, key, f.logger)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", name, err)
	}
	f.cache[name] = p
	return p, nil
}

func (f *Factory) apiKey(ctx context.Context, name string, pc config.ProviderConfig) (string, error) {
	// An unset ${VAR} survives expansion verbatim and is not a key.
	if pc.APIKey != "" && !strings.HasPrefix(pc.APIKey, "${") {
		return pc.APIKey, nil
	}
	if f.secrets == nil {
		return "", fmt.Errorf("provider %s: %w; see `buddy info`", name, ErrNoAPIKey)
	}
	key, err := f.secrets.APIKey(ctx, name)
	if err != nil || key == "" {
		return "", fmt.Errorf("provider %s: %w; see `buddy info`", name, ErrNoAPIKey)
	}
	return key, nil
}

// Models returns the primary and summary model names configured for name.
// An empty summary model falls back to the primary one.
func (f *Factory) Models(name string) (primary, summary string) {
	if name == "" {
		name = f.cfg.CurrentProvider()
	}
	pc := f.cfg.Providers[name]
	primary, summary = pc.Model, pc.SummaryModel
	if summary == "" {
		summary = primary
	}
	return primary, summary
}

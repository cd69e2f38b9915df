package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:         "warn",
			MaxIterations:    50,
			SummaryThreshold: 1000,
		},
		Providers: map[string]ProviderConfig{
			"openai": {
				Enabled:      true,
				APIBase:      "https://api.openai.com/v1",
				Model:        "gpt-4o",
				SummaryModel: "gpt-4o-mini",
			},
			"claude": {
				Enabled:      true,
				APIBase:      "https://api.anthropic.com/v1",
				Model:        "claude-sonnet-4-20250514",
				SummaryModel: "claude-3-5-haiku-latest",
			},
			"gemini": {
				Enabled:      true,
				Model:        "gemini-2.5-flash",
				SummaryModel: "gemini-2.5-flash-lite",
			},
			"ollama": {
				Enabled: true,
				APIBase: "http://localhost:11434",
				Model:   "llama3.1:8b",
			},
		},
		Abilities: []string{},
		Shell: ShellConfig{
			Shell: "sh",
		},
		Store: StoreConfig{
			DBPath:   "~/.buddy/buddy.db",
			AuditLog: true,
		},
		Browser: BrowserConfig{
			Headless:           true,
			PageTimeoutSeconds: 30,
			SearchURL:          "https://www.google.com/search?q=",
			MaxChunks:          8,
		},
	}
}

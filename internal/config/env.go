package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Environment holds the variables that override file configuration.
type Environment struct {
	// GeminiAPIKey authenticates every Gemini provider. API_KEY is accepted
	// as an alias; GEMINI_API_KEY wins when both are set.
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	APIKey       string `env:"API_KEY"`

	// OpenAIAPIKey authenticates the openai fallback provider.
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`

	LogLevel   LogLevel `env:"FORTUNA_LOG_LEVEL"`
	ListenAddr string   `env:"FORTUNA_LISTEN_ADDR"`
}

// GeminiKey returns the effective Gemini credential.
func (e Environment) GeminiKey() string {
	if e.GeminiAPIKey != "" {
		return e.GeminiAPIKey
	}
	return e.APIKey
}

// ApplyEnv overrides cfg with values from the process environment.
func ApplyEnv(cfg *Config) error {
	e, err := env.ParseAs[Environment]()
	if err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}
	e.Apply(cfg)
	return nil
}

// ApplyEnvMap overrides cfg with values from environ instead of the process
// environment.
func ApplyEnvMap(cfg *Config, environ map[string]string) error {
	e, err := env.ParseAsWithOptions[Environment](env.Options{Environment: environ})
	if err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}
	e.Apply(cfg)
	return nil
}

// Apply copies every set variable into cfg. Credentials are routed to the
// provider entries that use them.
func (e Environment) Apply(cfg *Config) {
	if e.LogLevel != "" {
		cfg.Server.LogLevel = e.LogLevel
	}
	if e.ListenAddr != "" {
		cfg.Server.ListenAddr = e.ListenAddr
	}

	entries := []*ProviderEntry{
		&cfg.Providers.Text,
		&cfg.Providers.Fallback,
		&cfg.Providers.Image,
		&cfg.Providers.Speech,
		&cfg.Providers.Live,
	}
	for _, entry := range entries {
		switch entry.Name {
		case "gemini", "gemini-live":
			if k := e.GeminiKey(); k != "" {
				entry.APIKey = k
			}
		case "openai":
			if e.OpenAIAPIKey != "" {
				entry.APIKey = e.OpenAIAPIKey
			}
		}
	}
}

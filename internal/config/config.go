// Package config provides the configuration schema, loader, environment
// overrides and provider registry for fortuna.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a [slog.Level]. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [Resolve].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Retry     RetryConfig     `yaml:"retry"`
	Live      LiveConfig      `yaml:"live"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig selects the remote backends. Each entry names a factory
// registered in the [Registry].
type ProvidersConfig struct {
	// Text generates structured readings.
	Text ProviderEntry `yaml:"text"`

	// Fallback, when Name is set, takes over text generation while Text is
	// failing.
	Fallback ProviderEntry `yaml:"fallback"`

	// Image draws wanted posters. An empty Name disables posters.
	Image ProviderEntry `yaml:"image"`

	// Speech narrates readings. An empty Name disables speech.
	Speech ProviderEntry `yaml:"speech"`

	// Live runs duplex voice sessions.
	Live ProviderEntry `yaml:"live"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. Usually supplied through the
	// environment instead of the file.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model. Empty selects the provider default.
	Model string `yaml:"model"`

	// Options holds provider-specific values such as "voice" or
	// "probe_model".
	Options map[string]any `yaml:"options"`
}

// Option returns the string option key, or def when unset.
func (e ProviderEntry) Option(key, def string) string {
	if v, ok := e.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}

// RetryConfig bounds retries of one-shot remote calls.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first. Nil selects the
	// default of 2; zero disables retries.
	MaxRetries *int `yaml:"max_retries"`

	// Delay is the fixed wait between attempts.
	Delay time.Duration `yaml:"delay"`
}

// LiveConfig tunes the live voice session.
type LiveConfig struct {
	// Instructions is the persona prompt. Empty selects the built-in master.
	Instructions string `yaml:"instructions"`

	// Transcribe enables input/output transcripts in the terminal.
	Transcribe bool `yaml:"transcribe"`

	CaptureSampleRate  int `yaml:"capture_sample_rate"`
	PlaybackSampleRate int `yaml:"playback_sample_rate"`
	FrameSize          int `yaml:"frame_size"`
}

// RateLimitConfig throttles HTTP API requests per client address.
type RateLimitConfig struct {
	// Disabled turns limiting off entirely.
	Disabled bool `yaml:"disabled"`

	// RequestsPerSecond is the sustained rate.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the bucket size.
	Burst int `yaml:"burst"`
}

// TelemetryConfig configures metrics and traces.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
}

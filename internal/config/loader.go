package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/fortuna/pkg/audio"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr        = ":8080"
	DefaultMaxRetries        = 2
	DefaultRetryDelay        = 2 * time.Second
	DefaultRequestsPerSecond = 2
	DefaultBurst             = 5
	DefaultServiceName       = "fortuna"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"text":  {"gemini", "openai"},
	"image": {"gemini"},
	"tts":   {"gemini"},
	"live":  {"gemini-live"},
}

// Default returns a configuration with every default applied and no file
// loaded.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Unknown fields are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve builds the effective configuration: variables from a .env file in
// the working directory are loaded into the process environment (existing
// variables win), the YAML file at path is read (an empty path uses
// [Default]), and environment overrides are applied on top.
func Resolve(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	p := &cfg.Providers
	if p.Text.Name == "" {
		p.Text.Name = "gemini"
	}
	if p.Image.Name == "" {
		p.Image.Name = "gemini"
	}
	if p.Speech.Name == "" {
		p.Speech.Name = "gemini"
	}
	if p.Live.Name == "" {
		p.Live.Name = "gemini-live"
	}

	if cfg.Retry.MaxRetries == nil {
		n := DefaultMaxRetries
		cfg.Retry.MaxRetries = &n
	}
	if cfg.Retry.Delay == 0 {
		cfg.Retry.Delay = DefaultRetryDelay
	}

	if cfg.Live.CaptureSampleRate == 0 {
		cfg.Live.CaptureSampleRate = audio.CaptureSampleRate
	}
	if cfg.Live.PlaybackSampleRate == 0 {
		cfg.Live.PlaybackSampleRate = audio.PlaybackSampleRate
	}
	if cfg.Live.FrameSize == 0 {
		cfg.Live.FrameSize = audio.FrameSize
	}

	if cfg.RateLimit.RequestsPerSecond == 0 && cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.RequestsPerSecond = DefaultRequestsPerSecond
		cfg.RateLimit.Burst = DefaultBurst
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	if cfg.Providers.Text.Name == "" {
		errs = append(errs, errors.New("providers.text.name is required"))
	}
	validateProviderName("text", cfg.Providers.Text.Name)
	validateProviderName("text", cfg.Providers.Fallback.Name)
	validateProviderName("image", cfg.Providers.Image.Name)
	validateProviderName("tts", cfg.Providers.Speech.Name)
	validateProviderName("live", cfg.Providers.Live.Name)
	if f := cfg.Providers.Fallback; f.Name != "" && f.Name == cfg.Providers.Text.Name && f.Model == cfg.Providers.Text.Model {
		slog.Warn("providers.fallback is identical to providers.text; failover will not help", "name", f.Name)
	}

	// Retry
	if n := cfg.Retry.MaxRetries; n != nil && *n < 0 {
		errs = append(errs, fmt.Errorf("retry.max_retries %d must not be negative", *n))
	}
	if cfg.Retry.Delay < 0 {
		errs = append(errs, fmt.Errorf("retry.delay %s must not be negative", cfg.Retry.Delay))
	}

	// Live
	if cfg.Live.CaptureSampleRate < 0 {
		errs = append(errs, fmt.Errorf("live.capture_sample_rate %d must be positive", cfg.Live.CaptureSampleRate))
	}
	if cfg.Live.PlaybackSampleRate < 0 {
		errs = append(errs, fmt.Errorf("live.playback_sample_rate %d must be positive", cfg.Live.PlaybackSampleRate))
	}
	if cfg.Live.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("live.frame_size %d must be positive", cfg.Live.FrameSize))
	}

	// Rate limit
	if cfg.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.requests_per_second %g must not be negative", cfg.RateLimit.RequestsPerSecond))
	}
	if cfg.RateLimit.Burst < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.burst %d must not be negative", cfg.RateLimit.Burst))
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst == 0 {
		errs = append(errs, errors.New("rate_limit.burst must be at least 1 when requests_per_second is set"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

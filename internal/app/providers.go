package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/fortuna/internal/config"
	"github.com/MrWong99/fortuna/internal/observe"
	"github.com/MrWong99/fortuna/internal/resilience"
	"github.com/MrWong99/fortuna/pkg/provider/googleai"
	"github.com/MrWong99/fortuna/pkg/provider/image"
	imagegemini "github.com/MrWong99/fortuna/pkg/provider/image/gemini"
	"github.com/MrWong99/fortuna/pkg/provider/live"
	livegemini "github.com/MrWong99/fortuna/pkg/provider/live/gemini"
	"github.com/MrWong99/fortuna/pkg/provider/llm"
	llmgemini "github.com/MrWong99/fortuna/pkg/provider/llm/gemini"
	llmopenai "github.com/MrWong99/fortuna/pkg/provider/llm/openai"
	"github.com/MrWong99/fortuna/pkg/provider/tts"
	ttsgemini "github.com/MrWong99/fortuna/pkg/provider/tts/gemini"
)

// DefaultProbeModel answers the readiness ping when the text entry sets no
// "probe_model" option.
const DefaultProbeModel = "gemini-3-flash-preview"

// Providers holds one value per provider slot. Nil means not configured.
type Providers struct {
	// Text generates readings. When a fallback is configured it is an
	// [resilience.LLMFallback].
	Text llm.Provider

	// Probe answers the readiness ping.
	Probe llm.Provider

	Image  image.Provider
	Speech tts.Provider
	Live   live.Provider
}

// RegisterBuiltinProviders wires the provider implementations that ship with
// fortuna into reg.
func RegisterBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("gemini", func(e config.ProviderEntry) (llm.Provider, error) {
		if e.APIKey == "" {
			return keyless{"gemini"}, nil
		}
		return llmgemini.New(context.Background(), e.APIKey, e.Model, clientOptions(e)...)
	})
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if e.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(e.BaseURL))
		}
		if org := e.Option("organization", ""); org != "" {
			opts = append(opts, llmopenai.WithOrganization(org))
		}
		return llmopenai.New(e.APIKey, e.Model, opts...)
	})
	reg.RegisterImage("gemini", func(e config.ProviderEntry) (image.Provider, error) {
		if e.APIKey == "" {
			return keyless{"gemini image"}, nil
		}
		return imagegemini.New(context.Background(), e.APIKey, e.Model, clientOptions(e)...)
	})
	reg.RegisterTTS("gemini", func(e config.ProviderEntry) (tts.Provider, error) {
		if e.APIKey == "" {
			return keyless{"gemini tts"}, nil
		}
		return ttsgemini.New(context.Background(), e.APIKey, e.Model, clientOptions(e)...)
	})
	reg.RegisterLive("gemini-live", func(e config.ProviderEntry) (live.Provider, error) {
		return livegemini.New(e.APIKey,
			livegemini.WithModel(e.Model),
			livegemini.WithBaseURL(e.BaseURL),
		), nil
	})
}

func clientOptions(e config.ProviderEntry) []googleai.ClientOption {
	if e.BaseURL == "" {
		return nil
	}
	return []googleai.ClientOption{googleai.WithBaseURL(e.BaseURL)}
}

// BuildProviders instantiates every provider named in cfg. Unregistered
// optional providers are skipped with a log line; the text provider is
// mandatory. One-shot providers are wrapped to record request metrics on m.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	ps := &Providers{}
	pc := cfg.Providers

	text, err := reg.CreateLLM(pc.Text)
	if err != nil {
		return nil, fmt.Errorf("create text provider %q: %w", pc.Text.Name, err)
	}
	ps.Text = instrumentLLM(text, pc.Text.Name, m)
	slog.Info("provider created", "kind", "text", "name", pc.Text.Name, "model", pc.Text.Model)

	ps.Probe = ps.Text
	if pc.Text.Name == "gemini" {
		probeEntry := pc.Text
		probeEntry.Model = pc.Text.Option("probe_model", DefaultProbeModel)
		probe, err := reg.CreateLLM(probeEntry)
		if err != nil {
			return nil, fmt.Errorf("create probe provider: %w", err)
		}
		ps.Probe = instrumentLLM(probe, pc.Text.Name, m)
	}

	if name := pc.Fallback.Name; name == "openai" && pc.Fallback.APIKey == "" {
		slog.Warn("fallback provider has no API key, running without failover", "name", name)
	} else if name != "" {
		fb, err := reg.CreateLLM(pc.Fallback)
		if err != nil {
			return nil, fmt.Errorf("create fallback provider %q: %w", name, err)
		}
		group := resilience.NewLLMFallback(ps.Text, pc.Text.Name, resilience.FallbackConfig{
			CircuitBreaker: resilience.CircuitBreakerConfig{
				OnStateChange: func(name string, from, to resilience.State) {
					slog.Warn("text provider circuit changed", "provider", name, "from", from, "to", to)
				},
			},
		})
		group.AddFallback(name, instrumentLLM(fb, name, m))
		ps.Text = group
		slog.Info("provider created", "kind", "fallback", "name", name, "order", group.Providers())
	}

	if ps.Image, err = optional(pc.Image, reg.CreateImage, "image"); err != nil {
		return nil, err
	}
	if ps.Image != nil {
		ps.Image = instrumentImage(ps.Image, pc.Image.Name, m)
	}
	if ps.Speech, err = optional(pc.Speech, reg.CreateTTS, "speech"); err != nil {
		return nil, err
	}
	if ps.Speech != nil {
		ps.Speech = instrumentTTS(ps.Speech, pc.Speech.Name, m)
	}
	if ps.Live, err = optional(pc.Live, reg.CreateLive, "live"); err != nil {
		return nil, err
	}
	return ps, nil
}

func optional[T any](entry config.ProviderEntry, create func(config.ProviderEntry) (T, error), kind string) (T, error) {
	var zero T
	if entry.Name == "" {
		slog.Debug("provider not configured", "kind", kind)
		return zero, nil
	}
	p, err := create(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("provider not registered, skipping", "kind", kind, "name", entry.Name)
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name, "model", entry.Model)
	return p, nil
}

// keyless stands in for a Gemini provider while no API key is configured.
// Every call fails as not ready, so the service can start and report that a
// credential is needed.
type keyless struct{ name string }

func (k keyless) err() error {
	return fmt.Errorf("%s: %w: no API key", k.name, resilience.ErrNotReady)
}

func (k keyless) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, k.err()
}

func (k keyless) Generate(context.Context, image.Request) (*image.Image, error) {
	return nil, k.err()
}

func (k keyless) Synthesize(context.Context, string, string) (*tts.Speech, error) {
	return nil, k.err()
}

func (k keyless) Voices() []string { return nil }

package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/fortuna/internal/config"
	"github.com/MrWong99/fortuna/internal/oracle"
	"github.com/MrWong99/fortuna/internal/resilience"
	"github.com/MrWong99/fortuna/pkg/provider"
	"github.com/MrWong99/fortuna/pkg/provider/image"
	imagemock "github.com/MrWong99/fortuna/pkg/provider/image/mock"
	"github.com/MrWong99/fortuna/pkg/provider/live"
	livemock "github.com/MrWong99/fortuna/pkg/provider/live/mock"
	"github.com/MrWong99/fortuna/pkg/provider/llm"
	llmmock "github.com/MrWong99/fortuna/pkg/provider/llm/mock"
	"github.com/MrWong99/fortuna/pkg/provider/tts"
	ttsmock "github.com/MrWong99/fortuna/pkg/provider/tts/mock"
)

const testKey = "test-key-0123456789"

// mockRegistry returns a registry whose factories hand out the given mocks
// and records the entries they were called with.
func mockRegistry(text, fallback *llmmock.Provider, seen map[string]config.ProviderEntry) *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterLLM("gemini", func(e config.ProviderEntry) (llm.Provider, error) {
		if e.Model == DefaultProbeModel || e.Model == "cheap" {
			seen["probe"] = e
		} else {
			seen["text"] = e
		}
		return text, nil
	})
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		seen["fallback"] = e
		return fallback, nil
	})
	reg.RegisterImage("gemini", func(config.ProviderEntry) (image.Provider, error) { return &imagemock.Provider{}, nil })
	reg.RegisterTTS("gemini", func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil })
	reg.RegisterLive("gemini-live", func(config.ProviderEntry) (live.Provider, error) { return &livemock.Provider{}, nil })
	return reg
}

// ─── BuildProviders ──────────────────────────────────────────────────────────

func TestBuildProviders_Defaults(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	seen := map[string]config.ProviderEntry{}

	ps, err := BuildProviders(cfg, mockRegistry(&llmmock.Provider{}, nil, seen), nil)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if ps.Text == nil || ps.Probe == nil || ps.Image == nil || ps.Speech == nil || ps.Live == nil {
		t.Fatalf("providers = %+v, want all set", ps)
	}
	if seen["probe"].Model != DefaultProbeModel {
		t.Errorf("probe model = %q, want %q", seen["probe"].Model, DefaultProbeModel)
	}
	if _, ok := ps.Text.(*resilience.LLMFallback); ok {
		t.Error("text wrapped in fallback without a fallback entry")
	}
}

func TestBuildProviders_ProbeModelOption(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Providers.Text.Options = map[string]any{"probe_model": "cheap"}
	seen := map[string]config.ProviderEntry{}

	if _, err := BuildProviders(cfg, mockRegistry(&llmmock.Provider{}, nil, seen), nil); err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if seen["probe"].Model != "cheap" {
		t.Errorf("probe model = %q, want cheap", seen["probe"].Model)
	}
}

func TestBuildProviders_FallbackFailsOver(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Providers.Fallback = config.ProviderEntry{Name: "openai", APIKey: "sk-test", Model: "gpt-4o-mini"}

	primary := &llmmock.Provider{CompleteErr: &provider.StatusError{Provider: "gemini", Code: 503, Message: "overloaded"}}
	backup := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "pong"}}
	seen := map[string]config.ProviderEntry{}

	ps, err := BuildProviders(cfg, mockRegistry(primary, backup, seen), nil)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	fb, ok := ps.Text.(*resilience.LLMFallback)
	if !ok {
		t.Fatalf("Text = %T, want *resilience.LLMFallback", ps.Text)
	}
	if got := fb.Providers(); len(got) != 2 || got[0] != "gemini" || got[1] != "openai" {
		t.Errorf("order = %v", got)
	}

	resp, err := ps.Text.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "ping"}}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "pong" {
		t.Errorf("content = %q, want pong", resp.Content)
	}
}

func TestBuildProviders_FallbackWithoutKeySkipped(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Providers.Fallback = config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"}
	seen := map[string]config.ProviderEntry{}

	ps, err := BuildProviders(cfg, mockRegistry(&llmmock.Provider{}, &llmmock.Provider{}, seen), nil)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if _, ok := ps.Text.(*resilience.LLMFallback); ok {
		t.Error("fallback wired without an API key")
	}
	if _, ok := seen["fallback"]; ok {
		t.Error("fallback factory called without an API key")
	}
}

func TestBuildProviders_OptionalSkipped(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Providers.Image.Name = ""
	cfg.Providers.Speech.Name = "elevenlabs"
	seen := map[string]config.ProviderEntry{}

	ps, err := BuildProviders(cfg, mockRegistry(&llmmock.Provider{}, nil, seen), nil)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if ps.Image != nil || ps.Speech != nil {
		t.Errorf("image=%v speech=%v, want both nil", ps.Image, ps.Speech)
	}
}

func TestBuildProviders_TextRequired(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Providers.Text.Name = "unknown"
	_, err := BuildProviders(cfg, config.NewRegistry(), nil)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestBuiltinProviders_WithoutKeyReportNotReady(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	RegisterBuiltinProviders(reg)

	ps, err := BuildProviders(config.Default(), reg, nil)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	_, err = ps.Text.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, resilience.ErrNotReady) {
		t.Errorf("Complete err = %v, want ErrNotReady", err)
	}
	if _, err := ps.Image.Generate(context.Background(), image.Request{Prompt: "x"}); !errors.Is(err, resilience.ErrNotReady) {
		t.Errorf("Generate err = %v, want ErrNotReady", err)
	}
	if _, err := ps.Speech.Synthesize(context.Background(), "x", ""); !errors.Is(err, resilience.ErrNotReady) {
		t.Errorf("Synthesize err = %v, want ErrNotReady", err)
	}
}

// ─── App ─────────────────────────────────────────────────────────────────────

func newApp(t *testing.T, mutate func(*config.Config), opts ...Option) (*App, *Providers) {
	t.Helper()
	cfg := config.Default()
	cfg.Providers.Text.APIKey = testKey
	n := 0
	cfg.Retry.MaxRetries = &n
	if mutate != nil {
		mutate(cfg)
	}
	ps := &Providers{
		Text: &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "pong"}},
		Live: &livemock.Provider{},
	}
	a, err := New(cfg, ps, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, ps
}

func TestNew_RequiresText(t *testing.T) {
	t.Parallel()
	if _, err := New(config.Default(), &Providers{}); err == nil {
		t.Fatal("expected error without text provider")
	}
}

func TestApp_StatusOverHTTP(t *testing.T) {
	t.Parallel()
	a, _ := newApp(t, nil)

	rec := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Errorf("status = %d body %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readyz = %d body %s", rec.Code, rec.Body)
	}
}

func TestApp_SpeechNotConfigured(t *testing.T) {
	t.Parallel()
	a, _ := newApp(t, nil)

	_, err := a.Oracle().Speak(context.Background(), "Ahoy")
	if !errors.Is(err, oracle.ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestApp_ApplyConfig(t *testing.T) {
	t.Parallel()
	var lv slog.LevelVar
	a, _ := newApp(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	}, WithLogLevel(&lv))

	old := *a.cfg
	updated := *a.cfg
	updated.Server.LogLevel = config.LogDebug
	updated.RateLimit = config.RateLimitConfig{Disabled: true}
	a.ApplyConfig(&old, &updated)

	if lv.Level() != slog.LevelDebug {
		t.Errorf("level = %s, want DEBUG", lv.Level())
	}
	for i := range 3 {
		rec := httptest.NewRecorder()
		a.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d after disabling rate limit", i, rec.Code)
		}
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()
	a, _ := newApp(t, func(c *config.Config) { c.Server.ListenAddr = "127.0.0.1:0" })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown = %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown = %v", err)
	}
}

func TestPolicy(t *testing.T) {
	t.Parallel()
	n := 0
	p := Policy(config.RetryConfig{MaxRetries: &n, Delay: 5 * time.Millisecond}, nil)
	if p.MaxRetries != 0 || p.Delay != 5*time.Millisecond {
		t.Errorf("policy = %+v", p)
	}
	d := Policy(config.RetryConfig{}, nil)
	if d.MaxRetries != resilience.DefaultMaxRetries || d.Delay != resilience.DefaultDelay {
		t.Errorf("default policy = %+v", d)
	}
}

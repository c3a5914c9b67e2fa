// Package oracle implements the one-shot readings: the daily fortune, the
// compatibility reading, spoken prophecy and the wanted poster, plus the
// readiness probe that gates them.
//
// Every remote call goes through [resilience.Retry]. Model output is decoded
// as JSON and checked for its required fields before it is returned; a
// reading with a missing or mistyped field is reported as
// [resilience.ErrMalformedResponse] and retried like any transient failure.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/fortuna/internal/observe"
	"github.com/MrWong99/fortuna/internal/resilience"
	"github.com/MrWong99/fortuna/pkg/provider/image"
	"github.com/MrWong99/fortuna/pkg/provider/llm"
	"github.com/MrWong99/fortuna/pkg/provider/tts"
)

// MinKeyLength is the shortest API key considered present.
const MinKeyLength = 10

// DefaultReadyTTL is how long a successful readiness probe is trusted.
const DefaultReadyTTL = 5 * time.Minute

// dateLayout is the format of reading dates.
const dateLayout = "2006-01-02"

// errNoCredential marks a readiness failure caused by a missing API key.
var errNoCredential = errors.New("no API key configured")

// ErrNotConfigured is returned by [Oracle.Speak] and [Oracle.WantedPoster]
// when the matching provider was not set up.
var ErrNotConfigured = errors.New("oracle: provider not configured")

// Config holds the dependencies of an [Oracle].
//
// Text is required. Probe defaults to Text. A nil Image disables poster
// generation and a nil Speech disables [Oracle.Speak].
type Config struct {
	// APIKey is the credential checked by the readiness probe. Only its
	// length is inspected.
	APIKey string

	// Text generates the structured readings.
	Text llm.Provider

	// Probe answers the readiness ping. It should be a cheap model.
	Probe llm.Provider

	// Image draws wanted posters.
	Image image.Provider

	// Speech narrates readings.
	Speech tts.Provider

	// Voice is the prebuilt voice used by Speak. Empty selects the provider
	// default.
	Voice string

	// Policy is the retry policy for every remote call.
	Policy resilience.Policy

	// ReadyTTL caps how long a successful probe is cached. Zero selects
	// [DefaultReadyTTL]; negative disables caching.
	ReadyTTL time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Oracle casts readings. It is safe for concurrent use.
type Oracle struct {
	cfg Config

	mu      sync.Mutex
	readyAt time.Time
}

// New creates an [Oracle] from cfg.
func New(cfg Config) (*Oracle, error) {
	if cfg.Text == nil {
		return nil, errors.New("oracle: Text provider must not be nil")
	}
	if cfg.Probe == nil {
		cfg.Probe = cfg.Text
	}
	if cfg.ReadyTTL == 0 {
		cfg.ReadyTTL = DefaultReadyTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Oracle{cfg: cfg}, nil
}

// Ready checks the credential precondition: an API key of at least
// [MinKeyLength] characters and a successful ten-token ping. It returns nil
// when the oracle can serve readings, an error wrapping
// [resilience.ErrReconnectRequired] when the remote side rejects the key, and
// an error wrapping [resilience.ErrNotReady] otherwise.
func (o *Oracle) Ready(ctx context.Context) error {
	if len(strings.TrimSpace(o.cfg.APIKey)) < MinKeyLength {
		return fmt.Errorf("oracle: %w: %w", resilience.ErrNotReady, errNoCredential)
	}

	o.mu.Lock()
	cached := !o.readyAt.IsZero() && o.cfg.ReadyTTL > 0 && o.cfg.Now().Sub(o.readyAt) < o.cfg.ReadyTTL
	o.mu.Unlock()
	if cached {
		return nil
	}

	ctx, span := observe.StartSpan(ctx, "oracle.Ready")
	err := o.ping(ctx)
	observe.EndSpan(span, err)

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.readyAt = time.Time{}
		return err
	}
	o.readyAt = o.cfg.Now()
	return nil
}

func (o *Oracle) ping(ctx context.Context) error {
	resp, err := o.cfg.Probe.Complete(ctx, llm.CompletionRequest{
		Messages:        []llm.Message{{Role: "user", Content: "ping"}},
		MaxTokens:       10,
		DisableThinking: true,
	})
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = errors.New("empty answer to ping")
	}
	if err == nil {
		return nil
	}
	switch resilience.Classify(err) {
	case resilience.KindCredentialInvalid:
		return fmt.Errorf("oracle: %w: %w", resilience.ErrReconnectRequired, err)
	case resilience.KindCanceled:
		return err
	default:
		return fmt.Errorf("oracle: %w: %w", resilience.ErrNotReady, err)
	}
}

// Invalidate forgets a cached successful probe, forcing the next [Oracle.Ready]
// to ping again.
func (o *Oracle) Invalidate() {
	o.mu.Lock()
	o.readyAt = time.Time{}
	o.mu.Unlock()
}

// forgetOnReject drops the cached probe when err shows the key was rejected.
func (o *Oracle) forgetOnReject(err error) error {
	if resilience.Classify(err) == resilience.KindCredentialInvalid {
		o.Invalidate()
	}
	return err
}

// Status runs the readiness probe and describes the outcome.
func (o *Oracle) Status(ctx context.Context) Status {
	err := o.Ready(ctx)
	if err == nil {
		return Status{OK: true, Message: "The oracle is connected."}
	}
	return Status{
		OK:              false,
		Message:         resilience.UserMessage(err),
		NeedsCredential: errors.Is(err, errNoCredential) || errors.Is(err, resilience.ErrReconnectRequired),
	}
}

// DailyFortune reads the fortune of u for date (YYYY-MM-DD). An empty date
// means today. When an image provider is configured the result carries a
// wanted poster; a failed poster leaves ImageURL empty.
func (o *Oracle) DailyFortune(ctx context.Context, u UserInfo, date string) (*FortuneResult, error) {
	if !u.complete() {
		return nil, fmt.Errorf("oracle: %w: name, birth date and birth place are required", resilience.ErrInvalidInput)
	}
	if date == "" {
		date = o.cfg.Now().Format(dateLayout)
	} else if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("oracle: %w: date %q is not YYYY-MM-DD", resilience.ErrInvalidInput, date)
	}

	ctx, span := observe.StartSpan(ctx, "oracle.DailyFortune")
	span.SetAttributes(observe.Attr("oracle.date", date))
	res, err := o.dailyFortune(ctx, u, date)
	observe.EndSpan(span, err)
	return res, err
}

func (o *Oracle) dailyFortune(ctx context.Context, u UserInfo, date string) (*FortuneResult, error) {
	if err := o.Ready(ctx); err != nil {
		return nil, err
	}
	req := llm.CompletionRequest{
		SystemPrompt:   fortuneInstructions,
		Messages:       []llm.Message{{Role: "user", Content: fortunePrompt(u, date)}},
		ResponseSchema: fortuneSchema,
		SchemaName:     "fortune",
	}
	res, err := resilience.Retry(ctx, o.cfg.Policy, "fortune", func(ctx context.Context) (*FortuneResult, error) {
		var r FortuneResult
		if err := o.generate(ctx, req, &r); err != nil {
			return nil, err
		}
		return &r, nil
	})
	if err != nil {
		return nil, o.forgetOnReject(err)
	}
	res.ImageURL = o.attachPoster(ctx, res.ImagePrompt, fortunePoster)
	return res, nil
}

// Compatibility reads the bond between a and b.
func (o *Oracle) Compatibility(ctx context.Context, a, b UserInfo) (*CompatibilityResult, error) {
	if !a.complete() || !b.complete() {
		return nil, fmt.Errorf("oracle: %w: name, birth date and birth place are required for both people", resilience.ErrInvalidInput)
	}

	ctx, span := observe.StartSpan(ctx, "oracle.Compatibility")
	res, err := o.compatibility(ctx, a, b)
	observe.EndSpan(span, err)
	return res, err
}

func (o *Oracle) compatibility(ctx context.Context, a, b UserInfo) (*CompatibilityResult, error) {
	if err := o.Ready(ctx); err != nil {
		return nil, err
	}
	req := llm.CompletionRequest{
		SystemPrompt:   compatibilityInstructions,
		Messages:       []llm.Message{{Role: "user", Content: compatibilityPrompt(a, b)}},
		ResponseSchema: compatibilitySchema,
		SchemaName:     "compatibility",
	}
	res, err := resilience.Retry(ctx, o.cfg.Policy, "compatibility", func(ctx context.Context) (*CompatibilityResult, error) {
		var r CompatibilityResult
		if err := o.generate(ctx, req, &r); err != nil {
			return nil, err
		}
		return &r, nil
	})
	if err != nil {
		return nil, o.forgetOnReject(err)
	}
	res.ImageURL = o.attachPoster(ctx, res.ImagePrompt, alliancePoster)
	return res, nil
}

func (o *Oracle) generate(ctx context.Context, req llm.CompletionRequest, dst any) error {
	resp, err := o.cfg.Text.Complete(ctx, req)
	if err != nil {
		return err
	}
	return decodeReading(resp.Content, req.ResponseSchema, dst)
}

// Speak narrates text in the oracle's voice. The returned speech is 24 kHz
// mono 16-bit PCM unless the provider reports otherwise.
func (o *Oracle) Speak(ctx context.Context, text string) (*tts.Speech, error) {
	if o.cfg.Speech == nil {
		return nil, fmt.Errorf("%w: speech synthesis", ErrNotConfigured)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("oracle: %w: text is empty", resilience.ErrInvalidInput)
	}

	ctx, span := observe.StartSpan(ctx, "oracle.Speak")
	sp, err := resilience.Retry(ctx, o.cfg.Policy, "speech", func(ctx context.Context) (*tts.Speech, error) {
		return o.cfg.Speech.Synthesize(ctx, speechPrefix+text, o.cfg.Voice)
	})
	observe.EndSpan(span, err)
	return sp, err
}

// WantedPoster draws a wanted poster for prompt and returns it as a data URL.
func (o *Oracle) WantedPoster(ctx context.Context, prompt string) (string, error) {
	if o.cfg.Image == nil {
		return "", fmt.Errorf("%w: image generation", ErrNotConfigured)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("oracle: %w: prompt is empty", resilience.ErrInvalidInput)
	}
	return o.poster(ctx, posterPrompt(prompt, fortunePoster))
}

func (o *Oracle) poster(ctx context.Context, prompt string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "oracle.WantedPoster")
	img, err := resilience.Retry(ctx, o.cfg.Policy, "poster", func(ctx context.Context) (*image.Image, error) {
		return o.cfg.Image.Generate(ctx, image.Request{Prompt: prompt})
	})
	observe.EndSpan(span, err)
	if err != nil {
		return "", err
	}
	return img.DataURL(), nil
}

// attachPoster returns a poster data URL for subject, or "" when no image
// provider is configured or generation fails.
func (o *Oracle) attachPoster(ctx context.Context, subject, fallback string) string {
	if o.cfg.Image == nil {
		return ""
	}
	url, err := o.poster(ctx, posterPrompt(subject, fallback))
	if err != nil {
		observe.Logger(ctx).Warn("wanted poster failed, returning reading without image", "err", err)
		return ""
	}
	return url
}

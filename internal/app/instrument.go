package app

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/fortuna/internal/observe"
	"github.com/MrWong99/fortuna/internal/resilience"
	"github.com/MrWong99/fortuna/pkg/provider/image"
	"github.com/MrWong99/fortuna/pkg/provider/llm"
	"github.com/MrWong99/fortuna/pkg/provider/tts"
)

// record counts one provider call and its latency.
func record(ctx context.Context, m *observe.Metrics, provider, kind string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = resilience.Classify(err).String()
	}
	m.RecordProviderRequest(ctx, provider, kind, status)
	m.ProviderDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", provider), observe.Attr("kind", kind)),
	)
}

type meteredLLM struct {
	llm.Provider
	name string
	m    *observe.Metrics
}

func instrumentLLM(p llm.Provider, name string, m *observe.Metrics) llm.Provider {
	return &meteredLLM{Provider: p, name: name, m: m}
}

func (p *meteredLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := p.Provider.Complete(ctx, req)
	record(ctx, p.m, p.name, "llm", start, err)
	return resp, err
}

type meteredImage struct {
	image.Provider
	name string
	m    *observe.Metrics
}

func instrumentImage(p image.Provider, name string, m *observe.Metrics) image.Provider {
	return &meteredImage{Provider: p, name: name, m: m}
}

func (p *meteredImage) Generate(ctx context.Context, req image.Request) (*image.Image, error) {
	start := time.Now()
	img, err := p.Provider.Generate(ctx, req)
	record(ctx, p.m, p.name, "image", start, err)
	return img, err
}

type meteredTTS struct {
	tts.Provider
	name string
	m    *observe.Metrics
}

func instrumentTTS(p tts.Provider, name string, m *observe.Metrics) tts.Provider {
	return &meteredTTS{Provider: p, name: name, m: m}
}

func (p *meteredTTS) Synthesize(ctx context.Context, text, voice string) (*tts.Speech, error) {
	start := time.Now()
	sp, err := p.Provider.Synthesize(ctx, text, voice)
	record(ctx, p.m, p.name, "tts", start, err)
	return sp, err
}

package resilience

import (
	"context"

	"github.com/MrWong99/fortuna/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across text
// backends. Each backend has its own circuit breaker.
//
// Only provider-health failures fail over: content blocks, invalid input and
// cancellation are returned from the first provider that produced them.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred
// backend. cfg.Failover defaults to [ShouldFailover].
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	if cfg.Failover == nil {
		cfg.Failover = ShouldFailover
	}
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional text provider.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Providers returns the provider names in failover order.
func (f *LLMFallback) Providers() []string { return f.group.Names() }

// Complete sends req to the first healthy provider.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// ShouldFailover reports whether err reflects the health of the provider that
// returned it, so that another provider might do better.
func ShouldFailover(err error) bool {
	switch Classify(err) {
	case KindContentBlocked, KindInvalidInput, KindCanceled:
		return false
	default:
		return true
	}
}

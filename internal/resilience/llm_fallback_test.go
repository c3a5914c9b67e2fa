package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MrWong99/fortuna/pkg/provider"
	"github.com/MrWong99/fortuna/pkg/provider/llm"
	llmmock "github.com/MrWong99/fortuna/pkg/provider/llm/mock"
)

func newLLMFallback(primary, secondary *llmmock.Provider) *LLMFallback {
	fb := NewLLMFallback(primary, "gemini", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("openai", secondary)
	return fb
}

func TestLLMFallback_PrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from gemini"}}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from openai"}}

	resp, err := newLLMFallback(primary, secondary).Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from gemini" {
		t.Fatalf("content = %q", resp.Content)
	}
	if secondary.Calls() != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.Calls())
	}
}

func TestLLMFallback_FailoverOnOutage(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: &provider.StatusError{Provider: "gemini", Code: 503}}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from openai"}}

	resp, err := newLLMFallback(primary, secondary).Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from openai" {
		t.Fatalf("content = %q", resp.Content)
	}
}

func TestLLMFallback_ContentBlockedDoesNotFailover(t *testing.T) {
	t.Parallel()

	blocked := fmt.Errorf("gemini: %w", provider.ErrContentBlocked)
	primary := &llmmock.Provider{CompleteErr: blocked}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from openai"}}

	_, err := newLLMFallback(primary, secondary).Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, provider.ErrContentBlocked) {
		t.Fatalf("err = %v, want ErrContentBlocked", err)
	}
	if secondary.Calls() != 0 {
		t.Error("content block must not fail over")
	}
}

func TestLLMFallback_AllFailKeepsClassification(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errors.New("primary down")}
	secondary := &llmmock.Provider{CompleteErr: &provider.StatusError{Provider: "openai", Code: 429}}

	_, err := newLLMFallback(primary, secondary).Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if Classify(err) != KindRateLimited {
		t.Errorf("Classify = %v, want rate_limited from the last provider", Classify(err))
	}
}

func TestLLMFallback_Providers(t *testing.T) {
	t.Parallel()

	fb := newLLMFallback(&llmmock.Provider{}, &llmmock.Provider{})
	if got := fb.Providers(); len(got) != 2 || got[0] != "gemini" {
		t.Fatalf("Providers() = %v", got)
	}
}

package resilience

import (
	"errors"
	"testing"
	"time"
)

func newGroup(cfg FallbackConfig) *FallbackGroup[string] {
	if cfg.CircuitBreaker.MaxFailures == 0 {
		cfg.CircuitBreaker.MaxFailures = 3
	}
	fg := NewFallbackGroup("gemini", "gemini", cfg)
	fg.AddFallback("openai", "openai")
	return fg
}

func TestFallbackGroup_PrimarySuccess(t *testing.T) {
	t.Parallel()

	fg := newGroup(FallbackConfig{})
	var called []string
	err := fg.Execute(func(v string) error {
		called = append(called, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(called) != 1 || called[0] != "gemini" {
		t.Fatalf("called = %v, want [gemini]", called)
	}
}

func TestFallbackGroup_Failover(t *testing.T) {
	t.Parallel()

	fg := newGroup(FallbackConfig{})
	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		if v == "gemini" {
			return "", errTest
		}
		return "reading from " + v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "reading from openai" {
		t.Fatalf("got %q", got)
	}
}

func TestFallbackGroup_AllFailWrapsLastError(t *testing.T) {
	t.Parallel()

	last := errors.New("openai down")
	fg := newGroup(FallbackConfig{})
	err := fg.Execute(func(v string) error {
		if v == "openai" {
			return last
		}
		return errTest
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, last) {
		t.Fatalf("err = %v, want it to wrap the last error", err)
	}
}

func TestFallbackGroup_NoFailoverOnExcludedError(t *testing.T) {
	t.Parallel()

	blocked := errors.New("blocked")
	fg := newGroup(FallbackConfig{
		Failover: func(err error) bool { return !errors.Is(err, blocked) },
	})
	var called []string
	err := fg.Execute(func(v string) error {
		called = append(called, v)
		return blocked
	})
	if err != blocked {
		t.Fatalf("err = %v, want blocked unchanged", err)
	}
	if len(called) != 1 {
		t.Fatalf("called = %v, want primary only", called)
	}
	if fg.States()["gemini"] != StateClosed {
		t.Error("excluded error should not count against the breaker")
	}
}

func TestFallbackGroup_SkipsOpenPrimary(t *testing.T) {
	t.Parallel()

	fg := newGroup(FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	for range 2 {
		_ = fg.Execute(func(v string) error {
			if v == "gemini" {
				return errTest
			}
			return nil
		})
	}
	if fg.States()["gemini"] != StateOpen {
		t.Fatalf("primary state = %v, want open", fg.States()["gemini"])
	}

	var called []string
	if err := fg.Execute(func(v string) error {
		called = append(called, v)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(called) != 1 || called[0] != "openai" {
		t.Fatalf("called = %v, want [openai]", called)
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	t.Parallel()

	names := newGroup(FallbackConfig{}).Names()
	if len(names) != 2 || names[0] != "gemini" || names[1] != "openai" {
		t.Fatalf("Names() = %v", names)
	}
}

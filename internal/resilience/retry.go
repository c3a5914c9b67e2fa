package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/fortuna/internal/observe"
)

// Default retry policy values.
const (
	DefaultMaxRetries = 2
	DefaultDelay      = 2 * time.Second
)

// Policy bounds the attempts made by [Retry].
type Policy struct {
	// MaxRetries is the number of additional attempts after the first one.
	// Negative values are treated as zero.
	MaxRetries int

	// Delay is the fixed wait between attempts.
	Delay time.Duration

	// Metrics, when non-nil, receives retry and outcome recordings.
	Metrics *observe.Metrics
}

// DefaultPolicy returns two retries with a fixed two-second delay.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, Delay: DefaultDelay}
}

// Retry runs op until it succeeds, fails with a non-retryable error, or the
// retry budget is exhausted.
//
//   - A rate-limit failure is returned at once as [ErrQuotaExceeded] wrapping
//     the cause; op is attempted exactly once.
//   - Non-retryable kinds (content blocked, not ready, credential invalid,
//     invalid input, cancellation) are returned unchanged without retry.
//   - Anything else is retried up to p.MaxRetries times with p.Delay between
//     attempts. After the last attempt its error is returned unchanged.
//
// A successful result is returned as is. Cancelling ctx aborts a pending
// delay and returns ctx.Err().
func Retry[T any](ctx context.Context, p Policy, operation string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()
	log := observe.Logger(ctx).With("operation", operation)
	retries := max(p.MaxRetries, 0)

	for attempt := 0; ; attempt++ {
		res, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				log.Info("operation succeeded after retry", "attempt", attempt+1)
			}
			p.record(ctx, operation, "ok", start)
			return res, nil
		}

		kind := Classify(err)
		if p.Metrics != nil {
			p.Metrics.RecordProviderError(ctx, operation, kind.String())
		}

		if kind == KindRateLimited {
			log.Warn("rate limited, not retrying", "err", err)
			p.record(ctx, operation, kind.String(), start)
			return zero, fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
		}
		if !kind.Retryable() || attempt >= retries {
			if kind.Retryable() {
				log.Warn("retries exhausted", "attempts", attempt+1, "err", err)
			}
			p.record(ctx, operation, kind.String(), start)
			return zero, err
		}

		log.Warn("attempt failed, retrying",
			"attempt", attempt+1,
			"max_attempts", retries+1,
			"kind", kind.String(),
			"delay", p.Delay,
			"err", err,
		)
		if p.Metrics != nil {
			p.Metrics.RecordRetry(ctx, operation, kind.String())
		}

		if err := sleep(ctx, p.Delay); err != nil {
			p.record(ctx, operation, KindCanceled.String(), start)
			return zero, err
		}
	}
}

func (p Policy) record(ctx context.Context, operation, status string, start time.Time) {
	if p.Metrics != nil {
		p.Metrics.RecordOperation(ctx, operation, status, time.Since(start).Seconds())
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

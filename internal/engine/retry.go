package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/openmined/s3ops/internal/gateway"
)

// RetryPolicy bounds the retries of transport failures.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
	}
}

// backoff returns the wait before the given retry (attempt starts at 1).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// withRetry runs fn until it succeeds, fails with a non-transport error or the
// attempts are exhausted. Backoff waits end early when ctx is done.
func (e *Engine) withRetry(ctx context.Context, call string, fn func() error) error {
	attempts := max(e.cfg.retry.MaxAttempts, 1)
	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := fn()
		e.cfg.metrics.GatewayCall(call, time.Since(start), err)
		if err == nil || !gateway.Retryable(err) || attempt >= attempts {
			return err
		}

		wait := e.cfg.retry.backoff(attempt)
		slog.Warn("engine retry", "call", call, "attempt", attempt, "backoff", wait, "error", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
	}
}

package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy re-executes failed operations with exponential backoff and
// optional jitter. The zero value is unusable; construct via
// DefaultRetryPolicy or fill every field.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	Jitter       bool
}

// DefaultRetryPolicy matches the tuning used for Confluence cloud calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Factor:       2,
		Jitter:       true,
	}
}

// Execute runs op with the policy's budget, retrying transient failures.
func (p RetryPolicy) Execute(ctx context.Context, op func(context.Context) error) error {
	return p.ExecuteRetryable(ctx, op, IsTransient)
}

// ExecuteRetryable runs op up to MaxRetries+1 times. A nil isRetryable
// treats every failure as retryable. A failure the predicate rejects
// propagates immediately; on exhaustion the last error propagates
// unchanged.
func (p RetryPolicy) ExecuteRetryable(ctx context.Context, op func(context.Context) error, isRetryable func(error) bool) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, p.delay(attempt-1)); err != nil {
				return err
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// delay computes the backoff before retry n (0-indexed):
// min(InitialDelay × Factorⁿ, MaxDelay), perturbed ±25% when jitter is on.
func (p RetryPolicy) delay(n int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.Factor, float64(n))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		d *= 0.75 + rand.Float64()*0.5
	}
	return time.Duration(d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

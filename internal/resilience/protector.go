package resilience

import (
	"context"
	"log/slog"
)

// CallKind routes a protected call through the read or write pool.
type CallKind int

const (
	CallRead CallKind = iota
	CallWrite
)

// Protector composes the shared limiter and breaker with the retry policy
// around every remote call: limiter outermost, then breaker, then retry,
// then the raw call.
type Protector struct {
	limiter *RateLimiter
	breaker *CircuitBreaker
	retry   RetryPolicy
	logger  *slog.Logger
}

func NewProtector(limiter *RateLimiter, breaker *CircuitBreaker, retry RetryPolicy, logger *slog.Logger) *Protector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Protector{limiter: limiter, breaker: breaker, retry: retry, logger: logger}
}

// Do executes op through the full protective pipeline. Transient failures
// are retried inside the breaker, so the breaker counts one failure per
// exhausted call rather than one per attempt.
func (p *Protector) Do(ctx context.Context, kind CallKind, op func(context.Context) error) error {
	wrapped := func(ctx context.Context) error {
		return p.breaker.Execute(ctx, func(ctx context.Context) error {
			return p.retry.ExecuteRetryable(ctx, op, IsTransient)
		})
	}

	if kind == CallWrite {
		return p.limiter.ExecuteWrite(ctx, wrapped)
	}
	return p.limiter.ExecuteRead(ctx, wrapped)
}

// Breaker exposes the shared breaker for status reporting and manual reset.
func (p *Protector) Breaker() *CircuitBreaker {
	return p.breaker
}

// Limiter exposes the shared limiter so response headers can feed quota
// updates.
func (p *Protector) Limiter() *RateLimiter {
	return p.limiter
}

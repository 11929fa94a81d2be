package resilience

import (
	"context"
	"sync"
	"time"
)

// TokenBucket is a continuous fixed-rate throttle. Each call takes one
// token; tokens accrue fractionally with elapsed wall clock up to the
// capacity.
type TokenBucket struct {
	mu            sync.Mutex
	capacity      float64
	tokens        float64
	refillPerHour float64
	lastRefill    time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewTokenBucket(capacity, refillPerHour int) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	if refillPerHour < 1 {
		refillPerHour = 1
	}
	b := &TokenBucket{
		capacity:      float64(capacity),
		tokens:        float64(capacity),
		refillPerHour: float64(refillPerHour),
		now:           time.Now,
		sleep:         sleepCtx,
	}
	b.lastRefill = b.now()
	return b
}

// Take consumes one token, blocking until one accrues or ctx is done.
func (b *TokenBucket) Take(ctx context.Context) error {
	for {
		b.mu.Lock()
		b.refillLocked()
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		deficit := 1 - b.tokens
		wait := time.Duration(deficit / b.refillPerHour * float64(time.Hour))
		b.mu.Unlock()

		if err := b.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// TryTake consumes a token without blocking.
func (b *TokenBucket) TryTake() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Available reports the token count after refill.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

func (b *TokenBucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.lastRefill = now
	b.tokens += b.refillPerHour * elapsed.Hours()
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
}

package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/phoorichet/confluence-sync-sub002/internal/apierr"
)

// BreakerState is the circuit breaker's health classification.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerConfig tunes a circuit breaker. Zero fields take defaults.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 60 * time.Second
	}
	return c
}

// CircuitBreaker sheds calls to an unhealthy resource until it recovers.
// One instance guards one remote resource and is safe for concurrent use.
// Transitions happen lazily on call attempts; there is no timer goroutine.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time

	now func() time.Time
}

func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg.withDefaults(), now: time.Now}
}

// Execute runs op unless the breaker is shedding calls. While open and
// inside the reset timeout it rejects with a circuit-open error carrying
// the remaining wait; past the timeout the next call probes half-open.
func (b *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := op(ctx)
	b.record(err == nil)
	return err
}

// State returns the current state without mutating it.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker closed with zero counters.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}

func (b *CircuitBreaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}

	elapsed := b.now().Sub(b.lastFailure)
	if elapsed < b.cfg.ResetTimeout {
		return apierr.NewCircuitOpen(b.cfg.ResetTimeout - elapsed)
	}

	b.state = StateHalfOpen
	b.successes = 0
	return nil
}

func (b *CircuitBreaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		b.lastFailure = b.now()
		if b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		if success {
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.state = StateClosed
				b.failures = 0
				b.successes = 0
			}
			return
		}
		b.state = StateOpen
		b.failures = 0
		b.successes = 0
		b.lastFailure = b.now()
	}
}

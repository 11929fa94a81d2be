package resilience

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/phoorichet/confluence-sync-sub002/internal/apierr"
)

const windowLength = time.Hour

// headerCarrier is satisfied by errors exposing response headers, used to
// read Retry-After hints from throttled calls.
type headerCarrier interface {
	HTTPHeader() http.Header
}

var (
	remainingHeaders = []string{"X-RateLimit-Remaining", "X-Rate-Limit-Remaining", "RateLimit-Remaining"}
	resetHeaders     = []string{"X-RateLimit-Reset", "X-Rate-Limit-Reset", "RateLimit-Reset"}
)

// RateLimitConfig tunes the shared limiter. Zero fields take defaults.
type RateLimitConfig struct {
	RequestsPerHour   int
	ReadSlots         int
	WriteSlots        int
	RetryAfterDefault time.Duration
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.RequestsPerHour <= 0 {
		c.RequestsPerHour = 1000
	}
	if c.ReadSlots <= 0 {
		c.ReadSlots = 8
	}
	if c.WriteSlots <= 0 {
		c.WriteSlots = 4
	}
	if c.RetryAfterDefault <= 0 {
		c.RetryAfterDefault = 60 * time.Second
	}
	return c
}

// RateLimiter bounds call rate and concurrency for one remote resource.
// A single instance is shared by all callers; all methods are safe for
// concurrent use. Reads and writes pass through separate slot pools.
type RateLimiter struct {
	cfg    RateLimitConfig
	logger *slog.Logger

	readPool  *Pool
	writePool *Pool

	mu              sync.Mutex
	requestCount    int
	windowStart     time.Time
	serverRemaining int
	serverReset     time.Time
	haveServerQuota bool
	warned80        bool
	warned95        bool

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewRateLimiter(cfg RateLimitConfig, logger *slog.Logger) *RateLimiter {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	r := &RateLimiter{
		cfg:       cfg,
		logger:    logger,
		readPool:  NewPool(cfg.ReadSlots),
		writePool: NewPool(cfg.WriteSlots),
		now:       time.Now,
		sleep:     sleepCtx,
	}
	r.windowStart = r.now()
	return r
}

// Execute routes op through the read pool.
func (r *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	return r.ExecuteRead(ctx, op)
}

func (r *RateLimiter) ExecuteRead(ctx context.Context, op func(context.Context) error) error {
	return r.readPool.Run(ctx, func(ctx context.Context) error {
		return r.do(ctx, op)
	})
}

func (r *RateLimiter) ExecuteWrite(ctx context.Context, op func(context.Context) error) error {
	return r.writePool.Run(ctx, func(ctx context.Context) error {
		return r.do(ctx, op)
	})
}

func (r *RateLimiter) do(ctx context.Context, op func(context.Context) error) error {
	if err := r.waitQuota(ctx); err != nil {
		return err
	}

	err := op(ctx)
	r.recordCall(err)
	if err == nil || !isRateLimitStatus(err) {
		return err
	}

	// One extra attempt after honoring the server's Retry-After hint.
	wait := r.retryAfterHint(err)
	r.logger.Warn("rate limited by server, retrying once",
		slog.Duration("wait", wait))
	if serr := r.sleep(ctx, wait); serr != nil {
		return serr
	}

	err = op(ctx)
	r.recordCall(err)
	return err
}

// UpdateFromHeaders records the server-reported quota. Call it after every
// successful response so blocking decisions use fresh numbers.
func (r *RateLimiter) UpdateFromHeaders(h http.Header) {
	remaining, ok := firstIntHeader(h, remainingHeaders)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.serverRemaining = remaining
	r.haveServerQuota = true
	if reset, ok := firstTimeHeader(h, resetHeaders, r.now()); ok {
		r.serverReset = reset
	}
}

// Usage returns requests consumed in the current window and the quota.
func (r *RateLimiter) Usage() (used, quota int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollWindowLocked()
	return r.requestCount, r.cfg.RequestsPerHour
}

func (r *RateLimiter) waitQuota(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.rollWindowLocked()

		now := r.now()
		var wait time.Duration
		switch {
		case r.haveServerQuota && r.serverRemaining <= 0 && !r.serverReset.IsZero() && now.Before(r.serverReset):
			wait = r.serverReset.Sub(now)
			r.logger.Warn("server quota exhausted, waiting for reset",
				slog.Time("reset_at", r.serverReset))
		case r.requestCount >= r.cfg.RequestsPerHour:
			wait = r.windowStart.Add(windowLength).Sub(now)
			r.logger.Warn("hourly quota exhausted, waiting for window reset",
				slog.Duration("wait", wait))
		}
		r.mu.Unlock()

		if wait <= 0 {
			return nil
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// recordCall counts a completed call against the window. Calls shed by the
// breaker never reached the resource and are not counted.
func (r *RateLimiter) recordCall(err error) {
	if apierr.KindOf(err) == apierr.KindCircuitOpen {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollWindowLocked()
	r.requestCount++
	r.warnLocked()
}

func (r *RateLimiter) rollWindowLocked() {
	now := r.now()
	if now.Sub(r.windowStart) >= windowLength {
		r.requestCount = 0
		r.windowStart = now
		r.warned80 = false
		r.warned95 = false
	}
	if r.haveServerQuota && !r.serverReset.IsZero() && !now.Before(r.serverReset) {
		r.haveServerQuota = false
	}
}

func (r *RateLimiter) warnLocked() {
	quota := r.cfg.RequestsPerHour
	used := float64(r.requestCount) / float64(quota)
	switch {
	case used >= 0.95 && !r.warned95:
		r.warned95 = true
		r.warned80 = true
		r.logger.Warn("rate limit usage above 95%",
			slog.Int("used", r.requestCount), slog.Int("quota", quota))
	case used >= 0.80 && !r.warned80:
		r.warned80 = true
		r.logger.Warn("rate limit usage above 80%",
			slog.Int("used", r.requestCount), slog.Int("quota", quota))
	}
}

// retryAfterHint reads a Retry-After value (seconds or HTTP date) from the
// failed call's response headers, falling back to the configured default.
func (r *RateLimiter) retryAfterHint(err error) time.Duration {
	var hc headerCarrier
	if !errors.As(err, &hc) {
		return r.cfg.RetryAfterDefault
	}

	v := strings.TrimSpace(hc.HTTPHeader().Get("Retry-After"))
	if v == "" {
		return r.cfg.RetryAfterDefault
	}
	if n, convErr := strconv.Atoi(v); convErr == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	if t, parseErr := http.ParseTime(v); parseErr == nil {
		if d := t.Sub(r.now()); d > 0 {
			return d
		}
	}
	return r.cfg.RetryAfterDefault
}

func isRateLimitStatus(err error) bool {
	if apierr.KindOf(err) == apierr.KindRateLimited {
		return true
	}
	var sc statusCarrier
	if errors.As(err, &sc) {
		return sc.HTTPStatus() == http.StatusTooManyRequests
	}
	return false
}

func firstIntHeader(h http.Header, names []string) (int, bool) {
	for _, name := range names {
		v := strings.TrimSpace(h.Get(name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}

// firstTimeHeader parses a reset header. Integers above ~1e9 read as epoch
// seconds, smaller ones as a delta from now; HTTP dates are accepted too.
func firstTimeHeader(h http.Header, names []string, now time.Time) (time.Time, bool) {
	for _, name := range names {
		v := strings.TrimSpace(h.Get(name))
		if v == "" {
			continue
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			if n > 1_000_000_000 {
				return time.Unix(n, 0), true
			}
			return now.Add(time.Duration(n) * time.Second), true
		}
		if t, err := http.ParseTime(v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

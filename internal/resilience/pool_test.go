package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	p := NewPool(2)

	var mu sync.Mutex
	inFlight, peak := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Run(context.Background(), func(context.Context) error {
				mu.Lock()
				inFlight++
				if inFlight > peak {
					peak = inFlight
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Fatalf("peak concurrency %d exceeded pool size 2", peak)
	}
	if p.InFlight() != 0 {
		t.Fatalf("slots leaked: %d still held", p.InFlight())
	}
}

func TestPoolReleasesSlotOnError(t *testing.T) {
	t.Parallel()

	p := NewPool(1)
	sentinel := errors.New("boom")

	if err := p.Run(context.Background(), func(context.Context) error { return sentinel }); err != sentinel {
		t.Fatalf("want op error back, got %v", err)
	}
	if p.InFlight() != 0 {
		t.Fatalf("slot not released after error")
	}

	if err := p.Run(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("pool unusable after error: %v", err)
	}
}

func TestPoolCancelledAcquire(t *testing.T) {
	t.Parallel()

	p := NewPool(1)
	block := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = p.Run(context.Background(), func(context.Context) error {
			close(started)
			<-block
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := p.Run(ctx, func(context.Context) error {
		calls++
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("op must not run when acquire is cancelled")
	}

	close(block)
}

func TestPoolMinimumSize(t *testing.T) {
	t.Parallel()

	if got := NewPool(0).Size(); got != 1 {
		t.Fatalf("size = %d, want clamp to 1", got)
	}
}

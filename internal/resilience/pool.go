package resilience

import "context"

// Pool bounds the number of simultaneously in-flight operations. Read and
// write traffic use two independently sized instances.
type Pool struct {
	slots chan struct{}
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{slots: make(chan struct{}, size)}
}

// Run acquires a slot, executes op, and releases the slot. It blocks while
// the pool is saturated unless ctx is done first.
func (p *Pool) Run(ctx context.Context, op func(context.Context) error) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()
	return op(ctx)
}

// Size returns the slot count.
func (p *Pool) Size() int {
	return cap(p.slots)
}

// InFlight returns the number of currently held slots.
func (p *Pool) InFlight() int {
	return len(p.slots)
}

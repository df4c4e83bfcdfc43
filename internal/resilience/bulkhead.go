package resilience

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Bulkhead caps the number of concurrent calls into one dependency so a
// slow provider cannot pin every request goroutine.
type Bulkhead struct {
	sem *semaphore.Weighted
}

// NewBulkhead returns a bulkhead admitting at most limit calls at once.
// A limit below 1 returns nil, which admits everything.
func NewBulkhead(limit int) *Bulkhead {
	if limit < 1 {
		return nil
	}
	return &Bulkhead{sem: semaphore.NewWeighted(int64(limit))}
}

// Do waits for a slot, runs fn, and releases the slot. It returns
// ctx.Err() if ctx ends while waiting.
func (b *Bulkhead) Do(ctx context.Context, fn func(context.Context) error) error {
	if b == nil {
		return fn(ctx)
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer b.sem.Release(1)
	return fn(ctx)
}

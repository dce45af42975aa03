package feedback

import (
	"context"
	"sync"
	"time"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type augmenterFunc func(ctx context.Context, req AugmentRequest) (*Augmentation, error)

func (f augmenterFunc) Augment(ctx context.Context, req AugmentRequest) (*Augmentation, error) {
	return f(ctx, req)
}

package memory

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count    int64
	expireAt time.Time
}

// Counter is a fixed-window counter store for a single process. Expired
// windows are dropped lazily on access and by a periodic sweep.
type Counter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewCounter() *Counter {
	return &Counter{windows: make(map[string]*window), now: time.Now}
}

// NewCounterWithClock is NewCounter with an injectable time source.
func NewCounterWithClock(now func() time.Time) *Counter {
	return &Counter{windows: make(map[string]*window), now: now}
}

func (c *Counter) live(key string, now time.Time) *window {
	w, ok := c.windows[key]
	if !ok {
		return nil
	}
	if !now.Before(w.expireAt) {
		delete(c.windows, key)
		return nil
	}
	return w
}

// Incr adds one hit to key, opening a new window of length ttl when none is live.
// It returns the count inside the window and the time left before it closes.
func (c *Counter) Incr(_ context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	w := c.live(key, now)
	if w == nil {
		w = &window{expireAt: now.Add(ttl)}
		c.windows[key] = w
	}
	w.count++
	return w.count, w.expireAt.Sub(now), nil
}

func (c *Counter) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.windows, key)
	return nil
}

// Cleanup removes closed windows every interval until ctx is done.
func (c *Counter) Cleanup(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.mu.Lock()
			now := c.now()
			for k, w := range c.windows {
				if !now.Before(w.expireAt) {
					delete(c.windows, k)
				}
			}
			c.mu.Unlock()
		}
	}
}

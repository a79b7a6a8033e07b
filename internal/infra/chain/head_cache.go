package chain

import (
	"context"
	"sync"
	"time"
)

// HeightSource reports the latest block height.
type HeightSource interface {
	Height(ctx context.Context) (int64, error)
}

// HeadCache caches the chain head so health probes and status queries do not
// add node calls on top of the run loop.
type HeadCache struct {
	source HeightSource
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	cached   int64
	cachedAt time.Time
}

// NewHeadCache creates a new head cache with the given TTL.
func NewHeadCache(source HeightSource, ttl time.Duration) *HeadCache {
	return &HeadCache{
		source: source,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Height returns the cached head if within TTL, otherwise fetches fresh.
func (c *HeadCache) Height(ctx context.Context) (int64, error) {
	c.mu.RLock()
	if c.cached > 0 && c.now().Sub(c.cachedAt) < c.ttl {
		cached := c.cached
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	head, err := c.source.Height(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.cached = head
	c.cachedAt = c.now()
	c.mu.Unlock()

	return head, nil
}

// Invalidate clears the cache, forcing the next call to fetch fresh data.
func (c *HeadCache) Invalidate() {
	c.mu.Lock()
	c.cachedAt = time.Time{}
	c.mu.Unlock()
}

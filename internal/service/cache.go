package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	value   any
	expires time.Time
}

// loadTimeout bounds a shared load, which no longer follows any one caller's
// cancellation.
const loadTimeout = 10 * time.Second

// ttlCache memoizes loads for a fixed TTL. Concurrent misses on one key are
// collapsed into a single load.
type ttlCache struct {
	ttl   time.Duration
	clock func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newTTLCache(ttl time.Duration, clock func() time.Time) *ttlCache {
	return &ttlCache{ttl: ttl, clock: clock, entries: make(map[string]cacheEntry)}
}

// get returns the cached value for key or runs load. The load runs on a
// context detached from ctx so one caller giving up does not fail the others
// waiting on the same key.
func (c *ttlCache) get(ctx context.Context, key string, load func(ctx context.Context) (any, error)) (any, error) {
	shared := func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return load(loadCtx)
	}

	if c.ttl <= 0 {
		v, err, _ := c.group.Do(key, shared)
		return v, err
	}

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && c.clock().Before(entry.expires) {
		return entry.value, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		v, err := shared()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{value: v, expires: c.clock().Add(c.ttl)}
		c.mu.Unlock()
		return v, nil
	})
	return v, err
}

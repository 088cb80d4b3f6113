package cache

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultMaxEntries caps the in-process suggestions cache.
	DefaultMaxEntries = 1024

	defaultSweepEvery = 5 * time.Minute
	defaultEntryTTL   = time.Hour
)

type memEntry struct {
	payload []byte
	stored  time.Time
	expires time.Time
}

func (e memEntry) expired(now time.Time) bool { return !now.Before(e.expires) }

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithMaxEntries bounds the number of live entries. When full, Set drops the
// oldest entry. n <= 0 disables the bound.
func WithMaxEntries(n int) MemoryOption {
	return func(c *MemoryCache) { c.maxEntries = n }
}

// WithSweepInterval sets how often expired entries are purged.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(c *MemoryCache) {
		if d > 0 {
			c.sweepEvery = d
		}
	}
}

// MemoryCache keeps suggestion payloads in process for a single replica.
// A sweeper goroutine purges expired entries until ctx ends or Close runs.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memEntry
	maxEntries int
	sweepEvery time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

func NewMemoryCache(ctx context.Context, opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		entries:    make(map[string]memEntry),
		maxEntries: DefaultMaxEntries,
		sweepEvery: defaultSweepEvery,
		stop:       make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	go c.sweepLoop(ctx)
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(now) {
		delete(c.entries, key)
		return nil, false
	}
	return e.payload, true
}

// Set stores value for ttl; ttl <= 0 falls back to one hour.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultEntryTTL
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.purgeLocked(now)
		if len(c.entries) >= c.maxEntries {
			c.dropOldestLocked()
		}
	}
	c.entries[key] = memEntry{payload: value, stored: now, expires: now.Add(ttl)}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len reports stored entries, counting expired ones the sweeper has not
// reached yet.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Ping lets /health probe both cache backends the same way.
func (c *MemoryCache) Ping(context.Context) error { return nil }

func (c *MemoryCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *MemoryCache) sweepLoop(ctx context.Context) {
	t := time.NewTicker(c.sweepEvery)
	defer t.Stop()

	for {
		select {
		case now := <-t.C:
			c.mu.Lock()
			c.purgeLocked(now)
			c.mu.Unlock()
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryCache) purgeLocked(now time.Time) {
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
		}
	}
}

func (c *MemoryCache) dropOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.stored.Before(oldestAt) {
			oldestKey, oldestAt, found = k, e.stored, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}

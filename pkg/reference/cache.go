package reference

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/go-gesture/pkg/landmark"
	"github.com/teslashibe/go-gesture/pkg/metrics"
)

// CacheConfig bounds the reference cache. Zero values mean unbounded.
type CacheConfig struct {
	MaxEntries int           // Resolved entries kept; least recently used go first
	TTL        time.Duration // Resolved entries older than this are re-extracted
	Clock      func() time.Time
}

// CacheOption is a functional option for configuring the cache.
type CacheOption func(*CacheConfig)

// WithMaxEntries bounds the number of resolved entries.
func WithMaxEntries(n int) CacheOption {
	return func(c *CacheConfig) { c.MaxEntries = n }
}

// WithTTL expires resolved entries after d.
func WithTTL(d time.Duration) CacheOption {
	return func(c *CacheConfig) { c.TTL = d }
}

// WithCacheClock overrides the clock used for TTL and recency.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *CacheConfig) { c.Clock = now }
}

// entry is an in-flight or resolved extraction. clip, err and resolvedAt
// are written once under the cache lock, before done is closed.
type entry struct {
	done       chan struct{}
	clip       landmark.Clip
	err        error
	resolvedAt time.Time
	lastUsed   time.Time
}

// settled reports whether the entry holds a result. Requires the cache lock.
func (e *entry) settled() bool {
	return !e.resolvedAt.IsZero()
}

// Cache memoizes reference clips by key. It stores the pending result, not
// just the final value, so concurrent callers for one key share a single
// extraction. Failed extractions are evicted.
type Cache struct {
	cfg CacheConfig

	mu      sync.Mutex
	entries map[string]*entry
}

// NewCache creates an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	cfg := CacheConfig{Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Cache{
		cfg:     cfg,
		entries: make(map[string]*entry),
	}
}

// Do returns the clip for key, calling fn only when no entry exists.
//
// fn runs on its own goroutine with a context that is not cancelled with
// ctx: a caller that stops waiting does not abort the extraction other
// callers may be sharing.
func (c *Cache) Do(ctx context.Context, key string, fn func(ctx context.Context) (landmark.Clip, error)) (landmark.Clip, error) {
	now := c.cfg.Clock()

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.expiredLocked(e, now) {
		delete(c.entries, key)
		metrics.RecordCache(metrics.CacheEvict)
		ok = false
	}
	if ok {
		e.lastUsed = now
		c.mu.Unlock()
		metrics.RecordCache(metrics.CacheHit)
	} else {
		e = &entry{done: make(chan struct{}), lastUsed: now}
		c.entries[key] = e
		c.mu.Unlock()
		metrics.RecordCache(metrics.CacheMiss)
		go c.run(context.WithoutCancel(ctx), key, e, fn)
	}

	select {
	case <-e.done:
		if e.err != nil {
			return landmark.Clip{}, e.err
		}
		return e.clip.Clone(), nil
	case <-ctx.Done():
		return landmark.Clip{}, ctx.Err()
	}
}

func (c *Cache) run(ctx context.Context, key string, e *entry, fn func(ctx context.Context) (landmark.Clip, error)) {
	var (
		clip landmark.Clip
		err  error
	)
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("reference: extraction panicked: %v", p)
			}
		}()
		clip, err = fn(ctx)
	}()

	c.mu.Lock()
	e.clip, e.err = clip, err
	e.resolvedAt = c.cfg.Clock()
	if err != nil {
		if c.entries[key] == e {
			delete(c.entries, key)
		}
	} else {
		// A slow extraction counts as used when it lands, not when it was
		// requested, so it cannot evict itself on arrival.
		e.lastUsed = e.resolvedAt
		c.evictLocked()
	}
	c.mu.Unlock()

	close(e.done)
}

func (c *Cache) expiredLocked(e *entry, now time.Time) bool {
	return c.cfg.TTL > 0 && e.settled() && now.Sub(e.resolvedAt) > c.cfg.TTL
}

// evictLocked drops least recently used resolved entries above MaxEntries.
// In-flight entries are never evicted.
func (c *Cache) evictLocked() {
	if c.cfg.MaxEntries <= 0 {
		return
	}
	for c.settledCountLocked() > c.cfg.MaxEntries {
		var oldestKey string
		var oldest *entry
		for k, e := range c.entries {
			if !e.settled() {
				continue
			}
			if oldest == nil || e.lastUsed.Before(oldest.lastUsed) {
				oldestKey, oldest = k, e
			}
		}
		if oldest == nil {
			return
		}
		delete(c.entries, oldestKey)
		metrics.RecordCache(metrics.CacheEvict)
	}
}

func (c *Cache) settledCountLocked() int {
	n := 0
	for _, e := range c.entries {
		if e.settled() {
			n++
		}
	}
	return n
}

// Forget drops the entry for key. Callers already waiting still receive it.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Reset drops every entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Len returns the number of in-flight and resolved entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Remote is an optional shared tier (e.g. Redis) consulted before the loader.
type Remote interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Codec converts values for the remote tier
type Codec[V any] struct {
	Encode func(V) (string, error)
	Decode func(string) (V, error)
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a per-key TTL cache. Concurrent misses on one key share a single load.
type Cache[V any] struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]entry[V]
	group   singleflight.Group
	remote  Remote
	codec   Codec[V]
}

// Option configures a Cache
type Option[V any] func(*Cache[V])

// WithRemote adds a shared tier
func WithRemote[V any](remote Remote, codec Codec[V]) Option[V] {
	return func(c *Cache[V]) {
		c.remote = remote
		c.codec = codec
	}
}

// WithClock overrides time.Now
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) {
		c.now = now
	}
}

// New creates a cache whose entries live for ttl
func New[V any](ttl time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry[V]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key, calling load at most once per key at a time on a miss.
func (c *Cache[V]) Get(ctx context.Context, key string, load func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	// the shared load must not die with whichever caller happened to start it
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		if v, ok := c.fromRemote(loadCtx, key); ok {
			c.store(key, v)
			return v, nil
		}

		v, err := load(loadCtx)
		if err != nil {
			return v, err
		}
		c.store(key, v)
		c.toRemote(loadCtx, key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// Invalidate drops the local entry for key
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *Cache[V]) lookup(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) store(key string, v V) {
	c.mu.Lock()
	c.entries[key] = entry[V]{value: v, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache[V]) fromRemote(ctx context.Context, key string) (V, bool) {
	var zero V
	if c.remote == nil || c.codec.Decode == nil {
		return zero, false
	}
	raw, found, err := c.remote.Get(ctx, key)
	if err != nil || !found {
		return zero, false
	}
	v, err := c.codec.Decode(raw)
	if err != nil {
		return zero, false
	}
	return v, true
}

func (c *Cache[V]) toRemote(ctx context.Context, key string, v V) {
	if c.remote == nil || c.codec.Encode == nil {
		return
	}
	raw, err := c.codec.Encode(v)
	if err != nil {
		return
	}
	_ = c.remote.Set(ctx, key, raw, c.ttl)
}

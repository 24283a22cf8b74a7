package redis

import (
	"context"
	"time"
)

// CacheStore exposes the shared client as a string cache tier
type CacheStore struct {
	prefix string
}

// NewCacheStore creates a cache store namespaced by prefix
func NewCacheStore(prefix string) *CacheStore {
	return &CacheStore{prefix: prefix}
}

// Get returns the cached value; found is false on a miss
func (s *CacheStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := Get(ctx, s.prefix+":"+key)
	if IsNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set stores the value with the given ttl
func (s *CacheStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return Set(ctx, s.prefix+":"+key, value, ttl)
}

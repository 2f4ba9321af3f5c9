package memory

import (
	"context"
	"sync"
	"time"
)

// BlacklistCache mirrors the Redis cache for tests. Err, when set, is
// returned from every call to exercise the fail-open paths.
type BlacklistCache struct {
	mu      sync.RWMutex
	entries map[string]time.Time

	Err error
}

func NewBlacklistCache() *BlacklistCache {
	return &BlacklistCache{entries: make(map[string]time.Time)}
}

func (c *BlacklistCache) Put(_ context.Context, jti string, _ string, ttl time.Duration) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[jti] = time.Now().Add(ttl)
	return nil
}

func (c *BlacklistCache) Contains(_ context.Context, jti string) (bool, error) {
	if c.Err != nil {
		return false, c.Err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	deadline, ok := c.entries[jti]
	if !ok || time.Now().After(deadline) {
		return false, nil
	}
	return true, nil
}

// CounterStore is a fixed-window counter over a map. Err, when set, is
// returned from Increment to exercise the limiter's fail-open path.
type CounterStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	Err error
}

type bucket struct {
	count   int64
	resetAt time.Time
}

func NewCounterStore() *CounterStore {
	return &CounterStore{buckets: make(map[string]*bucket)}
}

func (s *CounterStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	b, ok := s.buckets[key]
	if !ok || now.After(b.resetAt) {
		b = &bucket{resetAt: now.Add(window)}
		s.buckets[key] = b
	}
	b.count++
	return b.count, nil
}

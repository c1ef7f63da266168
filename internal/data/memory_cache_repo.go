package data

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCacheRepo implements the CacheRepository interface in process memory.
// It is the default backend when no Redis is configured.
type MemoryCacheRepo struct {
	c *gocache.Cache
}

// NewMemoryCacheRepo creates a MemoryCacheRepo that evicts expired entries
// every cleanupInterval.
func NewMemoryCacheRepo(cleanupInterval time.Duration) *MemoryCacheRepo {
	return &MemoryCacheRepo{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func memoryTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

// Set stores value under key. A zero TTL never expires.
func (r *MemoryCacheRepo) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	r.c.Set(key, cloneBytes(value), memoryTTL(ttl))
	return nil
}

// Get returns the value for key, or nil when absent or expired.
func (r *MemoryCacheRepo) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	v, ok := r.c.Get(key)
	if !ok {
		return nil, nil
	}
	b, _ := v.([]byte)
	return cloneBytes(b), nil
}

// Delete removes key and reports whether it was present.
func (r *MemoryCacheRepo) Delete(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	_, ok := r.c.Get(key)
	r.c.Delete(key)
	return ok, nil
}

// Exists reports whether key is present and unexpired.
func (r *MemoryCacheRepo) Exists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	_, ok := r.c.Get(key)
	return ok, nil
}

// SetTTL resets the expiry of an existing key.
func (r *MemoryCacheRepo) SetTTL(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	v, ok := r.c.Get(key)
	if !ok {
		return false, nil
	}
	if err := r.c.Replace(key, v, memoryTTL(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

// SetIfNotExists stores value only when key is absent.
func (r *MemoryCacheRepo) SetIfNotExists(
	_ context.Context,
	key string,
	value []byte,
	ttl time.Duration,
) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := r.c.Add(key, cloneBytes(value), ttl); err != nil {
		return false, nil
	}
	return true, nil
}

// Health always succeeds for the in-process cache.
func (r *MemoryCacheRepo) Health(context.Context) error {
	return nil
}

// Len returns the number of stored items, including expired ones not yet
// cleaned up.
func (r *MemoryCacheRepo) Len() int {
	return r.c.ItemCount()
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

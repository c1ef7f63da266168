// Package core holds the repository ports and small shared helpers used by
// the service layer.
package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

// CacheRepository defines the interface for caching operations.
// The core defines the interface and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// SetTTL updates the TTL for an existing key.
	// Returns true if the key exists and TTL was updated.
	SetTTL(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// SetIfNotExists atomically sets a key only if it doesn't already exist.
	// Returns true if the key was set, false if it already existed.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// JSONCacheOptions bundles dependencies for NewJSONCache.
type JSONCacheOptions struct {
	Repo      CacheRepository // Optional: nil disables caching
	Namespace string          // Required: key namespace, e.g. "books"
	TTL       time.Duration   // Optional: zero never expires
	Logger    *slog.Logger    // Optional
}

// JSONCache stores JSON-encoded values in a CacheRepository. Cache failures
// are logged and treated as misses; they never fail the caller.
type JSONCache struct {
	repo      CacheRepository
	namespace string
	ttl       time.Duration
	logger    *slog.Logger
}

// NewJSONCache creates a JSONCache.
func NewJSONCache(opts JSONCacheOptions) *JSONCache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONCache{
		repo:      opts.Repo,
		namespace: opts.Namespace,
		ttl:       opts.TTL,
		logger:    logger.With("component", "json_cache", "namespace", opts.Namespace),
	}
}

// Key builds a namespaced key from parts. Parts are hashed so arbitrary user
// text is safe to use.
func (c *JSONCache) Key(kind string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return c.namespace + ":" + kind + ":" + hex.EncodeToString(sum[:12])
}

// Load decodes the value under key into dst and reports whether it was found.
func (c *JSONCache) Load(ctx context.Context, key string, dst any) bool {
	if c == nil || c.repo == nil {
		return false
	}
	b, err := c.repo.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "cache get failed", "key", key, "error", err)
		return false
	}
	if len(b) == 0 {
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		c.logger.WarnContext(ctx, "cache entry undecodable, dropping", "key", key, "error", err)
		if _, derr := c.repo.Delete(ctx, key); derr != nil {
			c.logger.WarnContext(ctx, "cache delete failed", "key", key, "error", derr)
		}
		return false
	}
	return true
}

// Store encodes v under key.
func (c *JSONCache) Store(ctx context.Context, key string, v any) {
	if c == nil || c.repo == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		c.logger.WarnContext(ctx, "cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.repo.Set(ctx, key, b, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "cache set failed", "key", key, "error", err)
	}
}

// Health reports the backing repository health; a disabled cache is healthy.
func (c *JSONCache) Health(ctx context.Context) error {
	if c == nil || c.repo == nil {
		return nil
	}
	return c.repo.Health(ctx)
}

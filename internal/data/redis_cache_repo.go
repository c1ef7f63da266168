package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCacheRepo implements the CacheRepository interface on Redis so several
// API replicas can share cached upstream responses.
type RedisCacheRepo struct {
	client redis.UniversalClient
	prefix string
}

// RedisCacheRepoOptions configures NewRedisCacheRepo.
type RedisCacheRepoOptions struct {
	Client redis.UniversalClient // Required
	Prefix string                // Optional: namespace prepended to every key
}

// NewRedisCacheRepo creates a RedisCacheRepo.
func NewRedisCacheRepo(opts RedisCacheRepoOptions) *RedisCacheRepo {
	return &RedisCacheRepo{client: opts.Client, prefix: opts.Prefix}
}

func (r *RedisCacheRepo) key(k string) (string, error) {
	if k == "" {
		return "", ErrEmptyKey
	}
	return r.prefix + k, nil
}

// Set stores value under key. A zero TTL never expires.
func (r *RedisCacheRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	k, err := r.key(key)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, k, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get returns the value for key, or nil when absent.
func (r *RedisCacheRepo) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := r.key(key)
	if err != nil {
		return nil, err
	}
	b, err := r.client.Get(ctx, k).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return b, nil
}

// Delete removes key and reports whether it existed.
func (r *RedisCacheRepo) Delete(ctx context.Context, key string) (bool, error) {
	k, err := r.key(key)
	if err != nil {
		return false, err
	}
	n, err := r.client.Del(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

// Exists reports whether key is present.
func (r *RedisCacheRepo) Exists(ctx context.Context, key string) (bool, error) {
	k, err := r.key(key)
	if err != nil {
		return false, err
	}
	n, err := r.client.Exists(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// SetTTL resets the expiry of an existing key.
func (r *RedisCacheRepo) SetTTL(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	k, err := r.key(key)
	if err != nil {
		return false, err
	}
	var ok bool
	if ttl <= 0 {
		ok, err = r.client.Persist(ctx, k).Result()
	} else {
		ok, err = r.client.Expire(ctx, k, ttl).Result()
	}
	if err != nil {
		return false, fmt.Errorf("redis expire: %w", err)
	}
	return ok, nil
}

// SetIfNotExists stores value only when key is absent, using a single
// SET NX PX round trip.
func (r *RedisCacheRepo) SetIfNotExists(
	ctx context.Context,
	key string,
	value []byte,
	ttl time.Duration,
) (bool, error) {
	k, err := r.key(key)
	if err != nil {
		return false, err
	}
	if ttl <= 0 {
		ttl = time.Second
	}

	status, err := r.client.SetArgs(ctx, k, value, redis.SetArgs{Mode: "NX", TTL: ttl}).Result()
	if err != nil {
		// NX miss comes back as a nil reply.
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis set nx: %w", err)
	}
	return status == "OK", nil
}

// Health pings the server.
func (r *RedisCacheRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

package data

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuedu-lab/yuedu/internal/testutil"
)

func TestRedisCacheRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client, prefix := testutil.SetupTestRedis(t)
	repo := NewRedisCacheRepo(RedisCacheRepoOptions{Client: client, Prefix: prefix})
	ctx := context.Background()

	t.Run("set and get under prefix", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "k1", []byte("v1"), 5*time.Minute))

		got, err := repo.Get(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)

		raw, err := client.Get(ctx, prefix+"k1").Bytes()
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), raw)

		ttl := client.TTL(ctx, prefix+"k1").Val()
		assert.True(t, ttl > 0 && ttl <= 5*time.Minute)
	})

	t.Run("missing key", func(t *testing.T) {
		got, err := repo.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("delete and exists", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "k2", []byte("v"), time.Minute))
		exists, err := repo.Exists(ctx, "k2")
		require.NoError(t, err)
		assert.True(t, exists)

		deleted, err := repo.Delete(ctx, "k2")
		require.NoError(t, err)
		assert.True(t, deleted)

		exists, err = repo.Exists(ctx, "k2")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("set ttl", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "k3", []byte("v"), time.Minute))
		ok, err := repo.SetTTL(ctx, "k3", 2*time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		ttl := client.TTL(ctx, prefix+"k3").Val()
		assert.True(t, ttl > time.Minute && ttl <= 2*time.Minute)

		ok, err = repo.SetTTL(ctx, "absent", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set if not exists", func(t *testing.T) {
		ok, err := repo.SetIfNotExists(ctx, "lock", []byte("a"), time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.SetIfNotExists(ctx, "lock", []byte("b"), time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.Get(ctx, "lock")
		require.NoError(t, err)
		assert.Equal(t, []byte("a"), got)
	})

	assert.NoError(t, repo.Health(ctx))
}

func TestRedisCacheRepo_EmptyKey(t *testing.T) {
	// Key validation happens before any round trip, so no server is needed.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	repo := NewRedisCacheRepo(RedisCacheRepoOptions{Client: client})
	ctx := context.Background()

	assert.ErrorIs(t, repo.Set(ctx, "", []byte("v"), time.Minute), ErrEmptyKey)
	_, err := repo.Get(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, err = repo.Delete(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, err = repo.Exists(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, err = repo.SetTTL(ctx, "", time.Minute)
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, err = repo.SetIfNotExists(ctx, "", []byte("v"), time.Minute)
	assert.ErrorIs(t, err, ErrEmptyKey)
}

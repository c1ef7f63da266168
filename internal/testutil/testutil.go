// Package testutil provides shared helpers for yuedu tests.
package testutil

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TestTime is the fixed instant test clocks start from.
func TestTime() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

// redisCandidates are tried in order when REDIS_ADDR is unset.
var redisCandidates = []string{"localhost:6379", "redis:6379"}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

// testRedisDB is TEST_REDIS_DB, or 15 so tests stay clear of DB 0.
func testRedisDB() int {
	if i, err := strconv.Atoi(os.Getenv("TEST_REDIS_DB")); err == nil && i >= 0 {
		return i
	}
	return 15
}

func pingRedis(addr string) error {
	c := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: time.Second})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Ping(ctx).Err()
}

// RedisAddr returns the first address with a live Redis. ok is false when
// none answered.
func RedisAddr(t testing.TB) (addr string, ok bool) {
	t.Helper()

	candidates := redisCandidates
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		candidates = []string{v}
	}
	for _, a := range candidates {
		err := pingRedis(a)
		if err == nil {
			return a, true
		}
		t.Logf("redis not reachable at %s: %v", a, err)
	}
	return "", false
}

// SetupTestRedis connects to the test Redis and returns the client plus a
// key prefix unique to this test. Keys under the prefix are deleted and the
// client closed on cleanup. The test is skipped when Redis is unreachable,
// unless TEST_REQUIRE_REDIS is set.
func SetupTestRedis(t testing.TB) (*redis.Client, string) {
	t.Helper()

	addr, ok := RedisAddr(t)
	if !ok {
		if envBool("TEST_REQUIRE_REDIS") {
			t.Fatal("redis required but not reachable")
		}
		t.Skip("redis not reachable")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: testRedisDB()})
	prefix := "yuedu:test:" + uuid.NewString()[:8] + ":"
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := deletePrefix(ctx, client, prefix); err != nil {
			t.Logf("cleanup redis keys %s*: %v", prefix, err)
		}
		_ = client.Close()
	})
	return client, prefix
}

func deletePrefix(ctx context.Context, client *redis.Client, prefix string) error {
	iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return client.Del(ctx, keys...).Err()
}

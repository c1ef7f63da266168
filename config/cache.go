package config

import (
	"strings"
	"time"
)

// CacheBackend selects the CacheRepository implementation.
type CacheBackend string

const (
	// CacheBackendMemory keeps entries in process memory.
	CacheBackendMemory CacheBackend = "memory"
	// CacheBackendRedis stores entries in Redis.
	CacheBackendRedis CacheBackend = "redis"
)

// CacheConfig contains response cache configuration.
type CacheConfig struct {
	Backend CacheBackend `env:"BACKEND" envDefault:"memory"`

	// CleanupInterval is how often the in-memory backend purges expired entries.
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"10m"`
}

// Sanitize applies guardrails to cache configuration values.
func (c *CacheConfig) Sanitize() {
	c.Backend = CacheBackend(strings.ToLower(strings.TrimSpace(string(c.Backend))))
	if c.Backend != CacheBackendRedis {
		c.Backend = CacheBackendMemory
	}
	if c.CleanupInterval < time.Second {
		c.CleanupInterval = time.Second
	}
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

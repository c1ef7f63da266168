package config

import (
	"strings"
	"time"
)

// OllamaConfig points the model invocation client at an Ollama-compatible backend.
type OllamaConfig struct {
	// APIBase is the backend root, without a trailing slash.
	APIBase string `env:"API_BASE" envDefault:"http://localhost:10000"`

	// Model is the model tag sent with every generate request.
	Model string `env:"MODEL" envDefault:"qwen3:latest"`

	// Timeout bounds a single generate call end to end.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"600s"`

	// Streaming selects NDJSON streaming responses from /api/generate.
	Streaming bool `env:"STREAMING" envDefault:"true"`

	// ConnectTimeout bounds the reachability probe against /api/tags.
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"5s"`

	// ConnectCacheTTL is how long a successful reachability probe is trusted.
	ConnectCacheTTL time.Duration `env:"CONNECT_CACHE_TTL" envDefault:"30s"`
}

// Sanitize applies guardrails to model backend configuration values.
func (c *OllamaConfig) Sanitize() {
	c.APIBase = strings.TrimRight(strings.TrimSpace(c.APIBase), "/")
	if c.APIBase == "" {
		c.APIBase = "http://localhost:10000"
	}
	c.Model = strings.TrimSpace(c.Model)
	if c.Model == "" {
		c.Model = "qwen3:latest"
	}
	if c.Timeout <= 0 {
		c.Timeout = 600 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.ConnectCacheTTL < 0 {
		c.ConnectCacheTTL = 0
	}
}

// PromptsConfig controls the prompt template catalog.
type PromptsConfig struct {
	// File optionally replaces the embedded catalog with a YAML file on disk.
	File string `env:"FILE"`
}

// Sanitize trims the override path.
func (c *PromptsConfig) Sanitize() {
	c.File = strings.TrimSpace(c.File)
}

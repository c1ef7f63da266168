package config

import "time"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8000"`

	// ReadTimeout bounds reading a full request including the body.
	ReadTimeout time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`

	// WriteTimeout bounds a whole response. Synchronous model endpoints block for
	// the duration of inference, so the default sits above the model timeout.
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"11m"`

	// MaxBodyBytes limits request bodies accepted by JSON handlers.
	MaxBodyBytes int64 `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`

	// BatchLimit caps the number of texts accepted by the batch endpoints.
	BatchLimit int `env:"HTTP_BATCH_LIMIT" envDefault:"100"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.ReadTimeout <= 0 {
		h.ReadTimeout = 15 * time.Second
	}
	if h.WriteTimeout < time.Second {
		h.WriteTimeout = time.Second
	}
	if h.MaxBodyBytes <= 0 {
		h.MaxBodyBytes = 1 << 20
	}
	if h.BatchLimit < 1 {
		h.BatchLimit = 1
	}
}

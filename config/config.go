package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - http.go: HTTP server configuration
//   - model.go: Ollama model backend and prompt catalog
//   - jobs.go: Service modes, job queue and sweeper configuration
//   - books.go: Dictionary and OpenLibrary configuration
//   - cache.go: Cache backend and Redis configuration
//   - observability.go: Metrics and failure notifications
type AppConfig struct {
	// IsDev controls development mode behavior (text logs, verbose errors).
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Model backend configuration
	Ollama  OllamaConfig  `envPrefix:"OLLAMA_"`
	Prompts PromptsConfig `envPrefix:"PROMPTS_"`

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http,worker,sweeper"`

	// Job queue and retention configuration
	Jobs    JobsConfig    `envPrefix:"JOBS_"`
	Sweeper SweeperConfig `envPrefix:"SWEEPER_"`

	// Reference data and book search
	Dictionary  DictionaryConfig  `envPrefix:"DICTIONARY_"`
	OpenLibrary OpenLibraryConfig `envPrefix:"OPENLIBRARY_"`

	// Cache configuration
	Cache CacheConfig `envPrefix:"CACHE_"`
	Redis RedisConfig `envPrefix:"REDIS_"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Ollama.Sanitize()
	c.Prompts.Sanitize()
	c.Jobs.Sanitize()
	c.Sweeper.Sanitize()
	c.Dictionary.Sanitize()
	c.OpenLibrary.Sanitize()
	c.Cache.Sanitize()
	c.Observability.Sanitize()

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.detectDevMode()
}

// detectDevMode checks both DEV and GO_ENV environment variables.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		goEnv := strings.ToLower(os.Getenv("GO_ENV"))
		c.IsDev = goEnv == "development" || goEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.serviceEnabled(ServiceModeHTTP)
}

// IsWorkerEnabled returns true if the job worker loop is enabled.
func (c *AppConfig) IsWorkerEnabled() bool {
	return c.serviceEnabled(ServiceModeWorker)
}

// IsSweeperEnabled returns true if the retention sweeper is enabled.
func (c *AppConfig) IsSweeperEnabled() bool {
	return c.serviceEnabled(ServiceModeSweeper)
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

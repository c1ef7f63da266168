package config

import (
	"strings"
	"time"
)

// DictionaryConfig locates the English word list used for translation hints.
type DictionaryConfig struct {
	// BDICPath is a Hunspell BDIC file; English tokens are scraped from it.
	BDICPath string `env:"BDIC_PATH" envDefault:"./knowledge/en-US-10-1.bdic"`

	// MaxWords caps the loaded vocabulary after sorting.
	MaxWords int `env:"MAX_WORDS" envDefault:"120000"`

	// MaxEntries caps the dictionary hints attached to one prompt.
	MaxEntries int `env:"MAX_ENTRIES" envDefault:"5"`
}

// Sanitize applies guardrails to dictionary configuration values.
func (d *DictionaryConfig) Sanitize() {
	d.BDICPath = strings.TrimSpace(d.BDICPath)
	if d.MaxWords < 0 {
		d.MaxWords = 0
	}
	if d.MaxEntries < 1 {
		d.MaxEntries = 1
	}
}

// OpenLibraryConfig configures the public book metadata client.
type OpenLibraryConfig struct {
	BaseURL   string        `env:"BASE_URL"   envDefault:"https://openlibrary.org"`
	Timeout   time.Duration `env:"TIMEOUT"    envDefault:"30s"`
	UserAgent string        `env:"USER_AGENT" envDefault:"yuedu/1.0 (+https://github.com/yuedu-lab/yuedu)"`

	// CacheTTL is how long search and detail responses are cached. Zero disables caching.
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"15m"`
}

// Sanitize applies guardrails to OpenLibrary configuration values.
func (o *OpenLibraryConfig) Sanitize() {
	o.BaseURL = strings.TrimRight(strings.TrimSpace(o.BaseURL), "/")
	if o.BaseURL == "" {
		o.BaseURL = "https://openlibrary.org"
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.CacheTTL < 0 {
		o.CacheTTL = 0
	}
}

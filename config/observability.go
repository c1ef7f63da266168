package config

import (
	"strings"
	"time"
)

const defaultObservabilityName = "yuedu"

// ObservabilityConfig groups metrics and job failure notifications.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig       `envPrefix:"OBSERVABILITY_METRICS_"`
	Notifications ObservabilityNotificationsConfig `envPrefix:"OBSERVABILITY_NOTIFICATIONS_"`
}

// Sanitize applies guardrails to both halves.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// ObservabilityMetricsConfig selects the metric backends. StatsD and Prometheus
// are independent; both receive every metric when both are on.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`

	PrometheusEnabled bool `env:"PROMETHEUS_ENABLED" envDefault:"true"`
	// RuntimeMetrics adds the Go runtime and process collectors to /metrics.
	RuntimeMetrics bool   `env:"PROMETHEUS_RUNTIME" envDefault:"true"`
	Namespace      string `env:"NAMESPACE"          envDefault:"yuedu"`
}

// Sanitize trims values. StatsD without an address is switched off.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Enabled = c.Enabled && c.StatsdAddress != ""
	if c.Namespace = strings.TrimSpace(c.Namespace); c.Namespace == "" {
		c.Namespace = defaultObservabilityName
	}
}

// IsEnabled reports whether StatsD emission is on.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityNotificationsConfig controls outbound job failure notifications.
type ObservabilityNotificationsConfig struct {
	Enabled    bool                    `env:"ENABLED"     envDefault:"false"`
	Timeout    time.Duration           `env:"TIMEOUT"     envDefault:"5s"`
	RetryLimit int                     `env:"RETRY_LIMIT" envDefault:"3"`
	Slack      SlackNotificationConfig `envPrefix:"SLACK_"`
}

// Sanitize clamps delivery settings. A sink stays on only when notifications
// are enabled and the sink has somewhere to deliver.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	c.RetryLimit = max(c.RetryLimit, 0)
	c.Slack.sanitize()
	c.Slack.Enabled = c.Enabled && c.Slack.Enabled && c.Slack.WebhookURL != ""
}

// SlackNotificationConfig configures the Slack incoming webhook sink.
type SlackNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME"    envDefault:"yuedu"`
	// SiteURLPrefix turns job ids into links, e.g. https://yuedu.example.com.
	SiteURLPrefix string `env:"SITE_URL_PREFIX"`
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	c.SiteURLPrefix = strings.TrimRight(strings.TrimSpace(c.SiteURLPrefix), "/")
	if c.Username = strings.TrimSpace(c.Username); c.Username == "" {
		c.Username = defaultObservabilityName
	}
}

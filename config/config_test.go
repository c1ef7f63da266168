package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - http",
			input:    "http",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:  "all services",
			input: "http,worker,sweeper",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:    true,
				ServiceModeWorker:  true,
				ServiceModeSweeper: true,
			},
		},
		{
			name:  "services with spaces",
			input: " http , worker ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeWorker: true,
			},
		},
		{
			name:  "duplicate services",
			input: "worker,worker,http",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeWorker: true,
			},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only commas",
			input:       ",,",
			expectError: true,
		},
		{
			name:        "invalid service",
			input:       "http,scheduler",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	cfg := AppConfig{Services: "http,sweeper"}
	if !cfg.IsHTTPServerEnabled() {
		t.Error("expected http to be enabled")
	}
	if cfg.IsWorkerEnabled() {
		t.Error("expected worker to be disabled")
	}
	if !cfg.IsSweeperEnabled() {
		t.Error("expected sweeper to be enabled")
	}

	cfg = AppConfig{Services: "bogus"}
	if cfg.IsHTTPServerEnabled() || cfg.IsWorkerEnabled() || cfg.IsSweeperEnabled() {
		t.Error("expected no services enabled for invalid configuration")
	}
}

func TestValidServiceModes(t *testing.T) {
	expected := []ServiceMode{ServiceModeHTTP, ServiceModeWorker, ServiceModeSweeper}
	if got := ValidServiceModes(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}

func TestAppConfig_ParseEnvDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	cfg.Sanitize()

	if cfg.Ollama.APIBase != "http://localhost:10000" {
		t.Errorf("unexpected ollama base %q", cfg.Ollama.APIBase)
	}
	if cfg.Ollama.Model != "qwen3:latest" {
		t.Errorf("unexpected ollama model %q", cfg.Ollama.Model)
	}
	if cfg.Ollama.Timeout != 600*time.Second {
		t.Errorf("unexpected ollama timeout %v", cfg.Ollama.Timeout)
	}
	if !cfg.Ollama.Streaming {
		t.Error("expected streaming to default to true")
	}
	if cfg.Jobs.IdleTimeout != 60*time.Second {
		t.Errorf("unexpected idle timeout %v", cfg.Jobs.IdleTimeout)
	}
	if cfg.Sweeper.MaxAge != time.Hour {
		t.Errorf("unexpected sweeper max age %v", cfg.Sweeper.MaxAge)
	}
	if cfg.Cache.Backend != CacheBackendMemory {
		t.Errorf("unexpected cache backend %q", cfg.Cache.Backend)
	}
}

func TestAppConfig_ParseEnvOverrides(t *testing.T) {
	t.Setenv("OLLAMA_API_BASE", "http://ollama:11434/ ")
	t.Setenv("OLLAMA_STREAMING", "false")
	t.Setenv("JOBS_QUEUE_DEPTH", "0")
	t.Setenv("SWEEPER_INTERVAL", "1s")
	t.Setenv("CACHE_BACKEND", "Redis")
	t.Setenv("REDIS_CLUSTER_NODES", "a:1,b:2")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	cfg.Sanitize()

	if cfg.Ollama.APIBase != "http://ollama:11434" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.Ollama.APIBase)
	}
	if cfg.Ollama.Streaming {
		t.Error("expected streaming disabled")
	}
	if cfg.Jobs.QueueDepth != 1 {
		t.Errorf("expected queue depth clamped to 1, got %d", cfg.Jobs.QueueDepth)
	}
	if cfg.Sweeper.Interval != 10*time.Second {
		t.Errorf("expected sweeper interval clamped, got %v", cfg.Sweeper.Interval)
	}
	if cfg.Cache.Backend != CacheBackendRedis {
		t.Errorf("expected redis backend, got %q", cfg.Cache.Backend)
	}
	if !reflect.DeepEqual(cfg.Redis.ClusterNodes, []string{"a:1", "b:2"}) {
		t.Errorf("unexpected cluster nodes %v", cfg.Redis.ClusterNodes)
	}
}

func TestObservabilityConfig_ParseNestedEnv(t *testing.T) {
	t.Setenv("OBSERVABILITY_METRICS_ENABLED", "true")
	t.Setenv("OBSERVABILITY_METRICS_STATSD_ADDRESS", "statsd:8125")
	t.Setenv("OBSERVABILITY_METRICS_PROMETHEUS_RUNTIME", "false")
	t.Setenv("OBSERVABILITY_NOTIFICATIONS_ENABLED", "true")
	t.Setenv("OBSERVABILITY_NOTIFICATIONS_SLACK_ENABLED", "true")
	t.Setenv("OBSERVABILITY_NOTIFICATIONS_SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/x")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	cfg.Sanitize()

	m := cfg.Observability.Metrics
	if !m.IsEnabled() || m.StatsdAddress != "statsd:8125" {
		t.Errorf("unexpected metrics config %+v", m)
	}
	if !m.PrometheusEnabled || m.RuntimeMetrics {
		t.Errorf("expected prometheus on without runtime collectors, got %+v", m)
	}
	n := cfg.Observability.Notifications
	if !n.Slack.Enabled || n.Slack.Username != "yuedu" || n.RetryLimit != 3 {
		t.Errorf("unexpected notifications config %+v", n)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}
	if cfg.Namespace != "yuedu" {
		t.Fatalf("expected namespace default, got %q", cfg.Namespace)
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		Timeout:    0,
		RetryLimit: -1,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: " ",
		},
	}

	cfg.Sanitize()

	if cfg.Timeout <= 0 {
		t.Fatalf("expected timeout to fall back to default, got %v", cfg.Timeout)
	}
	if cfg.RetryLimit < 0 {
		t.Fatalf("expected retry limit to be clamped to >= 0, got %d", cfg.RetryLimit)
	}
	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled without a webhook url")
	}
	if cfg.Slack.Username != "yuedu" {
		t.Fatalf("expected slack username default, got %q", cfg.Slack.Username)
	}

	// Disabled top-level should disable child sinks.
	cfg = ObservabilityNotificationsConfig{
		Enabled: false,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: "https://hooks.slack.com/services/test",
		},
	}

	cfg.Sanitize()

	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled when notifications are disabled")
	}
}

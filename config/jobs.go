package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the single job worker loop.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeSweeper runs the periodic retention sweeper.
	ServiceModeSweeper ServiceMode = "sweeper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeWorker,
		ServiceModeSweeper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// Job state lives in process memory, so every mode shares a single process.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if strings.TrimSpace(servicesStr) == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeSweeper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, worker, sweeper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// JobsConfig contains async job queue configuration.
type JobsConfig struct {
	// QueueDepth bounds the number of queued job references. Submissions beyond
	// it are rejected rather than buffered.
	QueueDepth int `env:"QUEUE_DEPTH" envDefault:"1000"`

	// IdleTimeout is how long the worker waits on an empty queue before it logs a
	// heartbeat and checks for shutdown.
	IdleTimeout time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
}

// Sanitize applies guardrails to job queue configuration values.
func (j *JobsConfig) Sanitize() {
	if j.QueueDepth < 1 {
		j.QueueDepth = 1
	}
	if j.QueueDepth > 100000 {
		j.QueueDepth = 100000
	}
	if j.IdleTimeout < time.Second {
		j.IdleTimeout = time.Second
	}
}

// SweeperConfig contains retention sweeper configuration.
type SweeperConfig struct {
	// Interval is the sweeper tick interval.
	Interval time.Duration `env:"INTERVAL" envDefault:"5m"`

	// MaxAge is how long a finished job stays queryable after completion.
	MaxAge time.Duration `env:"MAX_AGE" envDefault:"1h"`
}

// Sanitize applies guardrails to sweeper configuration values.
func (s *SweeperConfig) Sanitize() {
	if s.Interval < 10*time.Second {
		s.Interval = 10 * time.Second
	}
	if s.MaxAge < 0 {
		s.MaxAge = 0
	}
}

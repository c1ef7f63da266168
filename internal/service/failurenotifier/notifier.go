// Package failurenotifier fans job failure events out to the configured sinks.
package failurenotifier

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/yuedu-lab/yuedu/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// CriticalClasses lists error classes reported as critical; everything else is a warning.
	CriticalClasses []string
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger   *slog.Logger
	sinks    []SinkRegistration
	critical map[string]struct{}
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sinks := make([]SinkRegistration, 0, len(opts.Sinks))
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	critical := make(map[string]struct{}, len(opts.CriticalClasses))
	for _, c := range opts.CriticalClasses {
		critical[c] = struct{}{}
	}

	return &Service{
		logger:   logger.With("component", "failure_notifier"),
		sinks:    sinks,
		critical: critical,
	}
}

// NotifyJobFailure delivers payload to every sink concurrently and waits for all
// of them. Delivery errors are logged, never returned.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if s == nil || len(s.sinks) == 0 {
		return
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityWarning
		if _, ok := s.critical[payload.ErrorClass]; ok {
			payload.Severity = notify.SeverityCritical
		}
	}

	var g errgroup.Group
	for _, entry := range s.sinks {
		g.Go(func() error {
			if err := entry.Sink.SendJobFailure(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"job_id", payload.JobID,
					"kind", payload.Kind,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}

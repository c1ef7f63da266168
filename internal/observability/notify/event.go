// Package notify defines the job failure event and the sinks that consume it.
package notify

import (
	"context"
	"time"
)

const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// JobFailurePayload describes one failed async job. Text fields are already
// truncated by the producer.
type JobFailurePayload struct {
	JobID      string
	Kind       string
	Error      string
	ErrorClass string
	// Severity is empty until the failure notifier assigns one.
	Severity     string
	InputExcerpt string
	// ModelOutput holds the start of an unusable model response, if any.
	ModelOutput string
	Duration    time.Duration
	OccurredAt  time.Time
	Metadata    map[string]string
}

// SeverityOrDefault returns Severity, or SeverityWarning when unset.
func (p JobFailurePayload) SeverityOrDefault() string {
	if p.Severity == "" {
		return SeverityWarning
	}
	return p.Severity
}

// Sink delivers job failure payloads somewhere a human will see them.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// SinkFunc lets a plain function act as a Sink. A nil SinkFunc drops payloads.
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}

// Package metrics emits the standard job queue metrics through a statsd.Sink.
package metrics

import (
	"time"

	obserrors "github.com/yuedu-lab/yuedu/internal/observability/errors"
	"github.com/yuedu-lab/yuedu/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Transition names for job lifecycle metrics.
const (
	TransitionSubmitted = "submitted"
	TransitionStarted   = "started"
	TransitionCompleted = "completed"
	TransitionRejected  = "rejected"
)

// Metric names. The Prometheus sink declares its collectors from these.
const (
	NameJobTransition = "job.transition"
	NameJobDuration   = "job.duration"
	NameQueueDepth    = "jobs.queue_depth"
	NameJobsStored    = "jobs.stored"
	NameSweepDeleted  = "sweeper.deleted"
	NameSweepDuration = "sweeper.duration"
	NameModelCall     = "model.call"
	NameModelLatency  = "model.latency"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Kind       string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"kind":       in.Kind,
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		tags["error_class"] = obserrors.Classify(in.Err)
	}

	sink.Count(NameJobTransition, 1, tags)

	if in.Duration > 0 {
		sink.Timing(NameJobDuration, in.Duration, CloneTags(tags))
	}
}

// EmitQueueState reports the current queue depth and stored record count.
func EmitQueueState(sink statsd.Sink, depth, stored int) {
	if sink == nil {
		return
	}
	sink.Gauge(NameQueueDepth, float64(depth), nil)
	sink.Gauge(NameJobsStored, float64(stored), nil)
}

// EmitSweep reports one retention sweep.
func EmitSweep(sink statsd.Sink, deleted int, duration time.Duration, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": ResultSuccess}
	switch {
	case err != nil:
		tags["result"] = ResultError
		tags["error_class"] = obserrors.Classify(err)
	case deleted == 0:
		tags["result"] = ResultNoop
	}
	sink.Count(NameSweepDeleted, int64(deleted), tags)
	sink.Timing(NameSweepDuration, duration, CloneTags(tags))
}

// ModelCallMetric describes one call to the model backend.
type ModelCallMetric struct {
	Stage    string
	OK       bool
	Duration time.Duration
}

// EmitModelCall reports a model backend call.
func EmitModelCall(sink statsd.Sink, in ModelCallMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"stage": in.Stage, "result": ResultSuccess}
	if !in.OK {
		tags["result"] = ResultError
	}
	sink.Count(NameModelCall, 1, tags)
	if in.Duration > 0 {
		sink.Timing(NameModelLatency, in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Package promsink exposes the metrics emitted through statsd.Sink as
// Prometheus collectors.
package promsink

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuedu-lab/yuedu/internal/observability/metrics"
	"github.com/yuedu-lab/yuedu/internal/observability/statsd"
)

type metricKind int

const (
	kindCounter metricKind = iota
	kindGauge
	kindHistogram
)

// Definition declares one metric and the fixed label set it accepts. Tags
// outside the set are dropped and missing labels are reported as "".
type Definition struct {
	Name   string
	Help   string
	Labels []string
	kind   metricKind
}

// Counter declares a counter fed by Sink.Count.
func Counter(name, help string, labels ...string) Definition {
	return Definition{Name: name, Help: help, Labels: labels, kind: kindCounter}
}

// Gauge declares a gauge fed by Sink.Gauge.
func Gauge(name, help string, labels ...string) Definition {
	return Definition{Name: name, Help: help, Labels: labels, kind: kindGauge}
}

// Histogram declares a histogram in seconds fed by Sink.Timing.
func Histogram(name, help string, labels ...string) Definition {
	return Definition{Name: name, Help: help, Labels: labels, kind: kindHistogram}
}

// DefaultDefinitions covers every metric emitted by the metrics package.
func DefaultDefinitions() []Definition {
	return []Definition{
		Counter(metrics.NameJobTransition, "Job lifecycle transitions.", "kind", "transition", "result", "error_class"),
		Histogram(metrics.NameJobDuration, "Job execution time in seconds.", "kind", "transition", "result", "error_class"),
		Gauge(metrics.NameQueueDepth, "Job references waiting for the worker."),
		Gauge(metrics.NameJobsStored, "Job records held in memory."),
		Counter(metrics.NameSweepDeleted, "Job records removed by the retention sweeper.", "result", "error_class"),
		Histogram(metrics.NameSweepDuration, "Retention sweep time in seconds.", "result", "error_class"),
		Counter(metrics.NameModelCall, "Calls to the model backend.", "stage", "result"),
		Histogram(metrics.NameModelLatency, "Model backend latency in seconds.", "stage", "result"),
	}
}

type entry struct {
	def       Definition
	counter   *prometheus.CounterVec
	gauge     *prometheus.GaugeVec
	histogram *prometheus.HistogramVec
}

// Sink implements statsd.Sink on top of a dedicated Prometheus registry.
type Sink struct {
	registry *prometheus.Registry
	mu       sync.RWMutex
	entries  map[string]*entry
	ns       string
}

var _ statsd.Sink = (*Sink)(nil)

// Options configures NewSink.
type Options struct {
	Namespace   string
	Definitions []Definition
	// WithRuntime registers the Go runtime and process collectors.
	WithRuntime bool
}

// NewSink registers every definition on a fresh registry.
func NewSink(opts Options) (*Sink, error) {
	s := &Sink{
		registry: prometheus.NewRegistry(),
		entries:  make(map[string]*entry),
		ns:       promName(opts.Namespace),
	}
	defs := opts.Definitions
	if defs == nil {
		defs = DefaultDefinitions()
	}
	for _, d := range defs {
		if err := s.declare(d); err != nil {
			return nil, err
		}
	}
	if opts.WithRuntime {
		if err := s.registry.Register(collectors.NewGoCollector()); err != nil {
			return nil, err
		}
		if err := s.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Sink) declare(d Definition) error {
	name := promName(d.Name)
	e := &entry{def: d}
	var c prometheus.Collector
	switch d.kind {
	case kindCounter:
		e.counter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: s.ns, Name: name + "_total", Help: d.Help,
		}, d.Labels)
		c = e.counter
	case kindGauge:
		e.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: s.ns, Name: name, Help: d.Help,
		}, d.Labels)
		c = e.gauge
	case kindHistogram:
		e.histogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: s.ns, Name: name + "_seconds", Help: d.Help,
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, d.Labels)
		c = e.histogram
	}
	if err := s.registry.Register(c); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[d.Name] = e
	s.mu.Unlock()
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}

// Count implements statsd.Sink.
func (s *Sink) Count(name string, value int64, tags map[string]string) {
	if e := s.lookup(name, kindCounter); e != nil && value >= 0 {
		e.counter.With(e.labels(tags)).Add(float64(value))
	}
}

// Gauge implements statsd.Sink.
func (s *Sink) Gauge(name string, value float64, tags map[string]string) {
	if e := s.lookup(name, kindGauge); e != nil {
		e.gauge.With(e.labels(tags)).Set(value)
	}
}

// Timing implements statsd.Sink.
func (s *Sink) Timing(name string, value time.Duration, tags map[string]string) {
	if e := s.lookup(name, kindHistogram); e != nil {
		e.histogram.With(e.labels(tags)).Observe(value.Seconds())
	}
}

func (s *Sink) lookup(name string, kind metricKind) *entry {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok || e.def.kind != kind {
		return nil
	}
	return e
}

func (e *entry) labels(tags map[string]string) prometheus.Labels {
	out := make(prometheus.Labels, len(e.def.Labels))
	for _, l := range e.def.Labels {
		out[l] = tags[l]
	}
	return out
}

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(strings.TrimSpace(name))
}

package promsink

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuedu-lab/yuedu/internal/observability/metrics"
)

func TestSink_JobLifecycle(t *testing.T) {
	sink, err := NewSink(Options{Namespace: "yuedu"})
	require.NoError(t, err)

	metrics.EmitJobLifecycle(sink, metrics.JobMetric{
		Kind:       "translation",
		Transition: metrics.TransitionCompleted,
		Result:     metrics.ResultSuccess,
		Duration:   2 * time.Second,
	})
	metrics.EmitJobLifecycle(sink, metrics.JobMetric{
		Kind:       "translation",
		Transition: metrics.TransitionCompleted,
		Result:     metrics.ResultSuccess,
	})

	e := sink.lookup(metrics.NameJobTransition, kindCounter)
	require.NotNil(t, e)
	got := testutil.ToFloat64(e.counter.WithLabelValues("translation", "completed", "success", ""))
	assert.InDelta(t, 2, got, 0.0001)
}

func TestSink_IgnoresUnknownAndMismatchedMetrics(t *testing.T) {
	sink, err := NewSink(Options{})
	require.NoError(t, err)

	sink.Count("not.declared", 1, nil)
	sink.Gauge(metrics.NameJobTransition, 1, nil)
	sink.Count(metrics.NameJobTransition, -1, nil)

	e := sink.lookup(metrics.NameJobTransition, kindCounter)
	require.NotNil(t, e)
	assert.Equal(t, 0, testutil.CollectAndCount(e.counter))

	var nilSink *Sink
	nilSink.Count(metrics.NameJobTransition, 1, nil)
}

func TestSink_Handler(t *testing.T) {
	sink, err := NewSink(Options{Namespace: "yuedu"})
	require.NoError(t, err)
	metrics.EmitQueueState(sink, 3, 7)

	rec := httptest.NewRecorder()
	sink.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "yuedu_jobs_queue_depth 3"), string(body))
	assert.True(t, strings.Contains(string(body), "yuedu_jobs_stored 7"), string(body))
}

func TestNewSink_DuplicateDefinition(t *testing.T) {
	_, err := NewSink(Options{Definitions: []Definition{
		Counter("a.b", "one"),
		Counter("a.b", "two"),
	}})
	assert.Error(t, err)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/yuedu-lab/yuedu/internal/core"
	"github.com/yuedu-lab/yuedu/internal/data"
	"github.com/yuedu-lab/yuedu/internal/domain/model"
	apperrors "github.com/yuedu-lab/yuedu/internal/errors"
	obserrors "github.com/yuedu-lab/yuedu/internal/observability/errors"
	"github.com/yuedu-lab/yuedu/internal/observability/metrics"
	"github.com/yuedu-lab/yuedu/internal/observability/notify"
	"github.com/yuedu-lab/yuedu/internal/observability/statsd"
	"github.com/yuedu-lab/yuedu/internal/service/failurenotifier"
)

// ErrQueueFull is returned by Submit when the queue holds QueueDepth jobs.
var ErrQueueFull = apperrors.Unavailable("job queue is full")

const (
	defaultQueueDepth = 1000
	excerptRunes      = 120
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Store           core.JobStore            // Required: job record store
	QueueDepth      int                      // Optional: defaults to 1000
	Clock           data.TimeProvider        // Optional: defaults to the system clock
	NewID           func() string            // Optional: defaults to random UUIDs
	Logger          *slog.Logger             // Optional: structured logger
	Metrics         statsd.Sink              // Optional: metrics sink
	FailureNotifier *failurenotifier.Service // Optional: failure notification fan-out
}

// JobService owns the job records and the FIFO queue of job ids between
// submitters and the worker.
//
// Every id on the queue has a record; a record leaves the queue when the
// worker takes its id and never returns to it.
type JobService struct {
	store           core.JobStore
	queue           chan string
	submitMu        sync.Mutex
	clock           data.TimeProvider
	newID           func() string
	logger          *slog.Logger
	metrics         statsd.Sink
	failureNotifier *failurenotifier.Service
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}

	depth := opts.QueueDepth
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	clock := opts.Clock
	if clock == nil {
		clock = data.RealTimeProvider{}
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "job_service")
	logger.Debug("JobService initialized", "queue_depth", depth)

	return &JobService{
		store:           opts.Store,
		queue:           make(chan string, depth),
		clock:           clock,
		newID:           newID,
		logger:          logger,
		metrics:         opts.Metrics,
		failureNotifier: opts.FailureNotifier,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Submit validates payload, stores a queued record under a fresh id, and
// enqueues the id. It returns the stored snapshot without waiting for the
// worker. When the queue is full no record is created and ErrQueueFull is
// returned.
func (s *JobService) Submit(ctx context.Context, payload model.JobPayload) (*model.Job, error) {
	if payload == nil {
		return nil, apperrors.Validation("payload is required")
	}
	if err := payload.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job payload")
	}
	kind := string(payload.Kind())

	// Only submitters send on the queue and they do so under submitMu, so a
	// free slot observed here is still free at the send below.
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	if len(s.queue) >= cap(s.queue) {
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Kind:       kind,
			Transition: metrics.TransitionRejected,
			Result:     metrics.ResultError,
			Err:        ErrQueueFull,
		})
		s.logger.WarnContext(ctx, "job rejected, queue full", "kind", kind, "queue_depth", cap(s.queue))
		return nil, ErrQueueFull
	}

	job := model.NewJob(s.newID(), payload, s.clock.Now())
	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.queue <- job.ID

	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Kind:       kind,
		Transition: metrics.TransitionSubmitted,
		Result:     metrics.ResultSuccess,
	})
	s.logger.DebugContext(ctx, "job submitted", "id", job.ID, "kind", kind, "queued", len(s.queue))

	return job.Clone(), nil
}

// Queue returns the receive side of the job queue for the worker.
func (s *JobService) Queue() <-chan string {
	return s.queue
}

// QueueDepth returns the number of ids waiting for the worker.
func (s *JobService) QueueDepth() int {
	return len(s.queue)
}

// Get returns a snapshot of the job. Unknown ids yield a not-found error
// wrapping data.ErrJobNotFound.
func (s *JobService) Get(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeNotFound, "job %s", id)
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// GetOfKind is Get restricted to one kind; a job of another kind is reported
// as not found.
func (s *JobService) GetOfKind(ctx context.Context, id string, kind model.JobKind) (*model.Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Kind != kind {
		return nil, apperrors.Wrapf(data.ErrJobNotFound, apperrors.ErrCodeNotFound, "%s job %s", kind, id)
	}
	return job, nil
}

// Start moves a queued job to running.
func (s *JobService) Start(ctx context.Context, id string) (*model.Job, error) {
	now := s.clock.Now()
	job, err := s.store.Update(ctx, id, func(j *model.Job) error {
		return j.Start(now)
	})
	if err != nil {
		return nil, fmt.Errorf("start job %s: %w", id, err)
	}

	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Kind:       string(job.Kind),
		Transition: metrics.TransitionStarted,
		Result:     metrics.ResultSuccess,
		Duration:   now.Sub(job.CreatedAt),
	})
	s.logger.DebugContext(ctx, "job started", "id", id, "kind", job.Kind)
	return job, nil
}

// Complete records result on a running job.
func (s *JobService) Complete(ctx context.Context, id string, result model.JobResult) (*model.Job, error) {
	now := s.clock.Now()
	job, err := s.store.Update(ctx, id, func(j *model.Job) error {
		return j.Succeed(result, now)
	})
	if err != nil {
		return nil, fmt.Errorf("complete job %s: %w", id, err)
	}

	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Kind:       string(job.Kind),
		Transition: metrics.TransitionCompleted,
		Result:     metrics.ResultSuccess,
		Duration:   runDuration(job, now),
	})
	s.logger.DebugContext(ctx, "job completed", "id", id, "kind", job.Kind)
	return job, nil
}

// JobFailureDetails captures optional context for failure notifications.
type JobFailureDetails struct {
	// Cause is the error that failed the job; it drives the error class.
	Cause error
	// RawResponse is the unusable model output, kept on the record.
	RawResponse string
	Metadata    map[string]string
}

// Fail marks a running job as failed with the given message.
func (s *JobService) Fail(ctx context.Context, id, errMsg string) (*model.Job, error) {
	return s.FailWithDetails(ctx, id, errMsg, JobFailureDetails{})
}

// FailWithDetails marks a running job as failed, keeping the raw model
// response when one is given, and notifies the failure sinks.
func (s *JobService) FailWithDetails(
	ctx context.Context,
	id, errMsg string,
	details JobFailureDetails,
) (*model.Job, error) {
	if errMsg == "" {
		return nil, errors.New("error message required")
	}

	now := s.clock.Now()
	job, err := s.store.Update(ctx, id, func(j *model.Job) error {
		return j.Fail(errMsg, details.RawResponse, now)
	})
	if err != nil {
		return nil, fmt.Errorf("fail job %s: %w", id, err)
	}

	cause := details.Cause
	if cause == nil {
		cause = errors.New(errMsg)
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Kind:       string(job.Kind),
		Transition: metrics.TransitionCompleted,
		Result:     metrics.ResultError,
		Duration:   runDuration(job, now),
		Err:        cause,
	})
	s.logger.DebugContext(ctx, "job failed", "id", id, "kind", job.Kind, "error", errMsg)

	if s.failureNotifier.Enabled() {
		s.failureNotifier.NotifyJobFailure(ctx, buildJobFailurePayload(job, cause, details, now))
	}
	return job, nil
}

func buildJobFailurePayload(job *model.Job, cause error, details JobFailureDetails, now time.Time) notify.JobFailurePayload {
	payload := notify.JobFailurePayload{
		JobID:        job.ID,
		Kind:         string(job.Kind),
		ErrorClass:   obserrors.Classify(cause),
		InputExcerpt: excerpt(payloadText(job.Payload), excerptRunes),
		Duration:     runDuration(job, now),
		OccurredAt:   now,
		Metadata:     copyMetadata(details.Metadata),
	}
	if job.Error != nil {
		payload.Error = *job.Error
	}
	if details.RawResponse != "" {
		payload.ModelOutput = excerpt(details.RawResponse, excerptRunes)
	}
	return payload
}

func payloadText(p model.JobPayload) string {
	switch v := p.(type) {
	case model.TranslationPayload:
		return v.Text
	case model.QuestionsPayload:
		return v.Text
	case model.LinguisticPayload:
		return v.SelectedText
	default:
		return ""
	}
}

func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}

func runDuration(job *model.Job, now time.Time) time.Duration {
	if job.StartedAt == nil {
		return 0
	}
	return now.Sub(*job.StartedAt)
}

func copyMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Sweep deletes terminal jobs that completed at least maxAge ago and returns
// how many were removed. Queued and running jobs are never removed. A maxAge
// of zero removes every terminal job.
func (s *JobService) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	start := time.Now()
	if maxAge < 0 {
		maxAge = 0
	}

	n, err := s.store.DeleteTerminalBefore(ctx, s.clock.Now().Add(-maxAge))
	metrics.EmitSweep(s.metrics, n, time.Since(start), err)
	if err != nil {
		return n, fmt.Errorf("sweep jobs: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "swept finished jobs", "deleted", n, "max_age", maxAge)
	}
	return n, nil
}

// QueueStats describes the queue and the stored records.
type QueueStats struct {
	QueueDepth    int            `json:"queue_depth"`
	QueueCapacity int            `json:"queue_capacity"`
	Jobs          model.JobStats `json:"jobs"`
}

// Stats returns the current queue and record counts and reports them as gauges.
func (s *JobService) Stats(ctx context.Context) (*QueueStats, error) {
	js, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	st := &QueueStats{
		QueueDepth:    len(s.queue),
		QueueCapacity: cap(s.queue),
		Jobs:          js,
	}
	metrics.EmitQueueState(s.metrics, st.QueueDepth, js.Total())
	return st, nil
}

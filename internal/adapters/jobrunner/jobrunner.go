// Package jobrunner runs the single worker that executes queued jobs in
// submission order.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/atomic"

	"github.com/yuedu-lab/yuedu/internal/domain/model"
	"github.com/yuedu-lab/yuedu/internal/service"
)

const defaultIdleTimeout = 60 * time.Second

var errEmptyResult = errors.New("executor returned no result")

// Executor performs the model-backed work of each job kind.
// *service.LanguageService implements it.
type Executor interface {
	Translate(ctx context.Context, text, schemaName string) (*model.TranslationResult, error)
	GenerateQuestions(ctx context.Context, text string, count int) (*model.QuestionResult, error)
	AnalyzeLinguistic(ctx context.Context, fullText, selectedText string) (*model.LinguisticResult, error)
}

// RunnerOptions configures the job runner adapter.
type RunnerOptions struct {
	Jobs        *service.JobService // Required: queue and record lifecycle
	Executor    Executor            // Required: model-backed work
	Logger      *slog.Logger
	IdleTimeout time.Duration // heartbeat interval on an empty queue; defaults to 60s
}

// Runner pulls job ids off the queue and executes them one at a time.
type Runner struct {
	jobs   *service.JobService
	exec   Executor
	logger *slog.Logger
	idle   time.Duration

	started   atomic.Bool
	busy      atomic.Bool
	processed atomic.Int64
	done      chan struct{}
}

// NewRunner constructs a job runner. The worker does not run until Start.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("Executor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	return &Runner{
		jobs:   opts.Jobs,
		exec:   opts.Executor,
		logger: logger.With("component", "job_runner"),
		idle:   idle,
		done:   make(chan struct{}),
	}, nil
}

// Start launches the worker goroutine bound to ctx. Only the first call has an
// effect; it reports whether this call started the worker.
func (r *Runner) Start(ctx context.Context) bool {
	if !r.started.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer close(r.done)
		r.workerLoop(ctx)
	}()
	return true
}

// Run starts the worker if needed and blocks until it stops or ctx ends.
// When Run started the worker it also waits for the loop to exit.
// Returns nil on graceful shutdown (context.Canceled).
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner", "idle_timeout", r.idle)
	started := r.Start(ctx)

	select {
	case <-r.done:
	case <-ctx.Done():
		if started {
			// the loop owns ctx; let it record the in-flight job first
			<-r.done
		}
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Done is closed once the worker has stopped.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Status reports whether the worker runs, whether it is executing a job, and
// how many jobs it has finished.
type Status struct {
	Started   bool  `json:"started"`
	Busy      bool  `json:"busy"`
	Processed int64 `json:"processed"`
}

// Status returns a snapshot of the worker state.
func (r *Runner) Status() Status {
	return Status{
		Started:   r.started.Load(),
		Busy:      r.busy.Load(),
		Processed: r.processed.Load(),
	}
}

func (r *Runner) workerLoop(ctx context.Context) {
	idle := time.NewTimer(r.idle)
	defer idle.Stop()

	queue := r.jobs.Queue()
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "job runner stopping", "reason", ctx.Err())
			return
		case id := <-queue:
			r.processJob(ctx, id)
		case <-idle.C:
			r.logger.DebugContext(ctx, "job runner idle", "processed", r.processed.Load())
		}
		idle.Reset(r.idle)
	}
}

func (r *Runner) processJob(ctx context.Context, id string) {
	r.busy.Store(true)
	defer r.busy.Store(false)

	job, err := r.jobs.Start(ctx, id)
	if err != nil {
		r.logger.ErrorContext(ctx, "start job error", "job_id", id, "error", err)
		return
	}

	result, runErr := r.execute(ctx, job)

	// Commit even when shutdown interrupted the job so it does not stay running.
	commitCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		r.fail(commitCtx, job, runErr)
	} else if _, err := r.jobs.Complete(commitCtx, id, result); err != nil {
		r.logger.ErrorContext(ctx, "complete job error", "job_id", id, "error", err)
	}
	r.processed.Inc()
}

func (r *Runner) fail(ctx context.Context, job *model.Job, runErr error) {
	msg := runErr.Error()
	if errors.Is(runErr, context.Canceled) {
		msg = "worker stopped before the job finished"
	}
	_, err := r.jobs.FailWithDetails(ctx, job.ID, msg, service.JobFailureDetails{
		Cause:       runErr,
		RawResponse: service.RawResponse(runErr),
		Metadata:    map[string]string{"component": "job_runner"},
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "fail job error", "job_id", job.ID, "error", err, "original_error", runErr)
		return
	}
	r.logger.InfoContext(ctx, "job failed", "job_id", job.ID, "kind", job.Kind, "error", msg)
}

type outcome struct {
	result model.JobResult
	err    error
}

// execute runs the job on its own goroutine and waits for it or for ctx.
// A panic in the executor becomes the job's error.
func (r *Runner) execute(ctx context.Context, job *model.Job) (model.JobResult, error) {
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- outcome{err: fmt.Errorf("internal error: %v", p)}
			}
		}()
		res, err := r.dispatch(ctx, job.Payload)
		ch <- outcome{result: res, err: err}
	}()

	select {
	case o := <-ch:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Runner) dispatch(ctx context.Context, payload model.JobPayload) (model.JobResult, error) {
	switch p := payload.(type) {
	case model.TranslationPayload:
		res, err := r.exec.Translate(ctx, p.Text, p.SchemaName)
		if err != nil || res == nil {
			return nil, orEmpty(err)
		}
		return res, nil
	case model.QuestionsPayload:
		res, err := r.exec.GenerateQuestions(ctx, p.Text, p.QuestionCount)
		if err != nil || res == nil {
			return nil, orEmpty(err)
		}
		return res, nil
	case model.LinguisticPayload:
		res, err := r.exec.AnalyzeLinguistic(ctx, p.FullText, p.SelectedText)
		if err != nil || res == nil {
			return nil, orEmpty(err)
		}
		return res, nil
	default:
		return nil, fmt.Errorf("no executor for job payload %T", payload)
	}
}

func orEmpty(err error) error {
	if err != nil {
		return err
	}
	return errEmptyResult
}

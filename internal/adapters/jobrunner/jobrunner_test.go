package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/yuedu-lab/yuedu/internal/data"
	"github.com/yuedu-lab/yuedu/internal/domain/model"
	"github.com/yuedu-lab/yuedu/internal/domain/prompt"
	apperrors "github.com/yuedu-lab/yuedu/internal/errors"
	"github.com/yuedu-lab/yuedu/internal/mocks"
	"github.com/yuedu-lab/yuedu/internal/ports"
	"github.com/yuedu-lab/yuedu/internal/service"
)

// fakeExecutor delegates to per-kind functions; unset kinds succeed.
type fakeExecutor struct {
	translate func(ctx context.Context, text string) (*model.TranslationResult, error)
}

func (f *fakeExecutor) Translate(ctx context.Context, text, _ string) (*model.TranslationResult, error) {
	if f.translate != nil {
		return f.translate(ctx, text)
	}
	return &model.TranslationResult{InputText: text, TranslatedText: "ok"}, nil
}

func (f *fakeExecutor) GenerateQuestions(_ context.Context, text string, count int) (*model.QuestionResult, error) {
	return &model.QuestionResult{InputText: text, QuestionCount: count}, nil
}

func (f *fakeExecutor) AnalyzeLinguistic(context.Context, string, string) (*model.LinguisticResult, error) {
	return &model.LinguisticResult{EnglishTranslation: "ok"}, nil
}

func startRunner(t *testing.T, exec Executor) (*service.JobService, *Runner, context.CancelFunc) {
	t.Helper()
	jobs := service.MustNewJobService(service.JobServiceOptions{Store: data.NewMemoryJobStore(), QueueDepth: 100})
	r, err := NewRunner(RunnerOptions{Jobs: jobs, Executor: exec, IdleTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		<-r.Done()
	})
	require.True(t, r.Start(ctx))
	return jobs, r, cancel
}

func waitTerminal(t *testing.T, jobs *service.JobService, id string) *model.Job {
	t.Helper()
	var job *model.Job
	require.Eventually(t, func() bool {
		got, err := jobs.Get(context.Background(), id)
		if err != nil {
			return false
		}
		job = got
		return job.State.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond, "job %s never finished", id)
	return job
}

func submit(t *testing.T, jobs *service.JobService, p model.JobPayload) string {
	t.Helper()
	job, err := jobs.Submit(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, model.JobStateQueued, job.State)
	return job.ID
}

func TestNewRunner(t *testing.T) {
	jobs := service.MustNewJobService(service.JobServiceOptions{Store: data.NewMemoryJobStore()})

	_, err := NewRunner(RunnerOptions{Executor: &fakeExecutor{}})
	require.Error(t, err)
	_, err = NewRunner(RunnerOptions{Jobs: jobs})
	require.Error(t, err)

	r, err := NewRunner(RunnerOptions{Jobs: jobs, Executor: &fakeExecutor{}})
	require.NoError(t, err)
	assert.Equal(t, defaultIdleTimeout, r.idle)
	assert.False(t, r.Status().Started)
}

func TestRunner_StartIsIdempotent(t *testing.T) {
	jobs, r, _ := startRunner(t, &fakeExecutor{})

	assert.False(t, r.Start(context.Background()), "second start is a no-op")
	assert.True(t, r.Status().Started)

	id := submit(t, jobs, model.TranslationPayload{Text: "你好"})
	job := waitTerminal(t, jobs, id)
	assert.Equal(t, model.JobStateSucceeded, job.State)
	assert.Eventually(t, func() bool { return r.Status().Processed == 1 }, time.Second, time.Millisecond)
}

func TestRunner_Run_ReturnsOnCancel(t *testing.T) {
	jobs := service.MustNewJobService(service.JobServiceOptions{Store: data.NewMemoryJobStore()})
	r, err := NewRunner(RunnerOptions{Jobs: jobs, Executor: &fakeExecutor{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return r.Status().Started }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
	<-r.Done()
}

func TestRunner_StateSequence(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	jobs, r, _ := startRunner(t, &fakeExecutor{
		translate: func(_ context.Context, text string) (*model.TranslationResult, error) {
			close(entered)
			<-release
			return &model.TranslationResult{InputText: text, TranslatedText: "Hello"}, nil
		},
	})
	ctx := context.Background()

	id := submit(t, jobs, model.TranslationPayload{Text: "你好"})
	<-entered

	running, err := jobs.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateRunning, running.State)
	assert.Equal(t, model.ProgressRunning, running.Progress)
	assert.NotNil(t, running.StartedAt)
	assert.Nil(t, running.CompletedAt)
	assert.Nil(t, running.Result)
	assert.Nil(t, running.Error)
	assert.True(t, r.Status().Busy)

	n, err := jobs.Sweep(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n, "running jobs are never swept")

	close(release)
	done := waitTerminal(t, jobs, id)
	assert.Equal(t, model.JobStateSucceeded, done.State)
	assert.Equal(t, model.ProgressSucceeded, done.Progress)
	assert.NotNil(t, done.Result)
	assert.Nil(t, done.Error)
	require.NotNil(t, done.CompletedAt)
	assert.False(t, done.CompletedAt.Before(*done.StartedAt))

	n, err = jobs.Sweep(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = jobs.Get(ctx, id)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRunner_FIFO(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
		ids   []string
	)
	gate := make(chan struct{})
	var jobs *service.JobService
	exec := &fakeExecutor{
		translate: func(_ context.Context, text string) (*model.TranslationResult, error) {
			if text == "0" {
				<-gate
			}
			mu.Lock()
			defer mu.Unlock()
			idx, _ := strconv.Atoi(text)
			for _, prev := range ids[:idx] {
				job, err := jobs.Get(context.Background(), prev)
				if err != nil || !job.State.IsTerminal() {
					return nil, fmt.Errorf("job %s started before %s finished", text, prev)
				}
			}
			order = append(order, text)
			return &model.TranslationResult{InputText: text, TranslatedText: text}, nil
		},
	}
	jobs, _, _ = startRunner(t, exec)

	const n = 8
	mu.Lock()
	for i := range n {
		ids = append(ids, submit(t, jobs, model.TranslationPayload{Text: strconv.Itoa(i)}))
	}
	mu.Unlock()
	close(gate)

	for _, id := range ids {
		job := waitTerminal(t, jobs, id)
		assert.Equal(t, model.JobStateSucceeded, job.State, "job %s", id)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7"}, order)
}

func TestRunner_PanicDoesNotStopWorker(t *testing.T) {
	jobs, _, _ := startRunner(t, &fakeExecutor{
		translate: func(_ context.Context, text string) (*model.TranslationResult, error) {
			if text == "boom" {
				panic("exploded")
			}
			return &model.TranslationResult{TranslatedText: "fine"}, nil
		},
	})

	bad := submit(t, jobs, model.TranslationPayload{Text: "boom"})
	good := submit(t, jobs, model.TranslationPayload{Text: "你好"})

	failed := waitTerminal(t, jobs, bad)
	assert.Equal(t, model.JobStateFailed, failed.State)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "internal error: exploded", *failed.Error)
	assert.Nil(t, failed.Result)
	assert.True(t, strings.HasPrefix(failed.Progress, "Processing failed: "))

	ok := waitTerminal(t, jobs, good)
	assert.Equal(t, model.JobStateSucceeded, ok.State)
}

func TestRunner_NilResultFails(t *testing.T) {
	jobs, _, _ := startRunner(t, &fakeExecutor{
		translate: func(context.Context, string) (*model.TranslationResult, error) {
			return nil, nil
		},
	})

	job := waitTerminal(t, jobs, submit(t, jobs, model.TranslationPayload{Text: "你好"}))
	assert.Equal(t, model.JobStateFailed, job.State)
	assert.Equal(t, errEmptyResult.Error(), *job.Error)
}

func TestRunner_ShutdownFailsInFlightJob(t *testing.T) {
	entered := make(chan struct{})
	jobs, r, cancel := startRunner(t, &fakeExecutor{
		translate: func(ctx context.Context, _ string) (*model.TranslationResult, error) {
			close(entered)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	id := submit(t, jobs, model.TranslationPayload{Text: "你好"})
	<-entered
	cancel()
	<-r.Done()

	job, err := jobs.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateFailed, job.State)
	assert.Equal(t, "worker stopped before the job finished", *job.Error)
}

// newModelBackedRunner wires the real language service to a mocked model backend.
func newModelBackedRunner(t *testing.T, generate func(ctx context.Context, p string, opts ports.GenerateOptions) (string, bool)) *service.JobService {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := mocks.NewMockModelClient(ctrl)
	client.EXPECT().CheckConnection(gomock.Any()).Return(true).AnyTimes()
	client.EXPECT().ModelName().Return("qwen3:latest").AnyTimes()
	client.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(generate).AnyTimes()

	catalog, err := prompt.Default()
	require.NoError(t, err)
	lang, err := service.NewLanguageService(service.LanguageServiceOptions{Model: client, Prompts: catalog})
	require.NoError(t, err)

	jobs, _, _ := startRunner(t, lang)
	return jobs
}

func TestRunner_ModelBackedJobs(t *testing.T) {
	t.Run("translation succeeds", func(t *testing.T) {
		jobs := newModelBackedRunner(t, func(context.Context, string, ports.GenerateOptions) (string, bool) {
			return `{"translated_text": "Hello"}`, true
		})

		job := waitTerminal(t, jobs, submit(t, jobs, model.TranslationPayload{Text: "你好", SchemaName: "translate"}))
		require.Equal(t, model.JobStateSucceeded, job.State)
		res, ok := job.Result.(*model.TranslationResult)
		require.True(t, ok)
		assert.Equal(t, "Hello", res.TranslatedText)
		assert.Nil(t, job.Error)
	})

	t.Run("backend returns nothing", func(t *testing.T) {
		jobs := newModelBackedRunner(t, func(context.Context, string, ports.GenerateOptions) (string, bool) {
			return "", false
		})

		job := waitTerminal(t, jobs, submit(t, jobs, model.TranslationPayload{Text: "你好"}))
		require.Equal(t, model.JobStateFailed, job.State)
		assert.Equal(t, service.ErrBackendUnavailable.Error(), *job.Error)
		assert.Nil(t, job.Result)
		assert.Nil(t, job.RawResponse)
	})

	t.Run("unrepairable reply keeps raw text", func(t *testing.T) {
		jobs := newModelBackedRunner(t, func(context.Context, string, ports.GenerateOptions) (string, bool) {
			return "Sorry, I only speak prose.", true
		})

		job := waitTerminal(t, jobs, submit(t, jobs, model.TranslationPayload{Text: "你好"}))
		require.Equal(t, model.JobStateFailed, job.State)
		assert.Equal(t, service.ErrParseFailed.Error(), *job.Error)
		require.NotNil(t, job.RawResponse)
		assert.Equal(t, "Sorry, I only speak prose.", *job.RawResponse)
	})

	t.Run("question count clamped", func(t *testing.T) {
		var mu sync.Mutex
		var seen string
		jobs := newModelBackedRunner(t, func(_ context.Context, p string, _ ports.GenerateOptions) (string, bool) {
			mu.Lock()
			seen = p
			mu.Unlock()
			return `{"questions": [{"question": "他是谁?", "options": ["学生", "老师"], "answer": "学生"}]}`, true
		})

		job := waitTerminal(t, jobs, submit(t, jobs, model.QuestionsPayload{Text: "他是学生。", QuestionCount: 999}))
		require.Equal(t, model.JobStateSucceeded, job.State)
		res, ok := job.Result.(*model.QuestionResult)
		require.True(t, ok)
		assert.Equal(t, 20, res.QuestionCount)
		mu.Lock()
		assert.Contains(t, seen, `"question_count":20`)
		mu.Unlock()
	})

	t.Run("semantic failure", func(t *testing.T) {
		jobs := newModelBackedRunner(t, func(context.Context, string, ports.GenerateOptions) (string, bool) {
			return `{"success": false, "error": "selection not in text"}`, true
		})

		job := waitTerminal(t, jobs, submit(t, jobs, model.LinguisticPayload{FullText: "我很好", SelectedText: "猫"}))
		require.Equal(t, model.JobStateFailed, job.State)
		assert.Equal(t, "selection not in text", *job.Error)
	})
}

func TestRunner_UnknownJobNotFound(t *testing.T) {
	jobs, _, _ := startRunner(t, &fakeExecutor{})

	_, err := jobs.Get(context.Background(), uuid.NewString())
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, errors.Is(err, data.ErrJobNotFound))
}

package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuedu-lab/yuedu/config"
	"github.com/yuedu-lab/yuedu/internal/adapters/jobrunner"
	"github.com/yuedu-lab/yuedu/internal/data"
	"github.com/yuedu-lab/yuedu/internal/domain/model"
	"github.com/yuedu-lab/yuedu/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{
		Services: "http,worker,sweeper",
		Ollama:   config.OllamaConfig{APIBase: "http://127.0.0.1:1", Model: "qwen3:latest"},
	}
	cfg.Sanitize()
	return cfg
}

func enabledSet(modes ...config.ServiceMode) map[config.ServiceMode]bool {
	out := make(map[config.ServiceMode]bool, len(modes))
	for _, m := range modes {
		out[m] = true
	}
	return out
}

func TestErrorChannelSizing(t *testing.T) {
	tests := []struct {
		name      string
		modes     []config.ServiceMode
		capacity  int
		bufferLen int
	}{
		{name: "no services enabled", capacity: 0, bufferLen: 1},
		{name: "http only", modes: []config.ServiceMode{config.ServiceModeHTTP}, capacity: 1, bufferLen: 2},
		{
			name:      "worker and sweeper",
			modes:     []config.ServiceMode{config.ServiceModeWorker, config.ServiceModeSweeper},
			capacity:  2,
			bufferLen: 3,
		},
		{name: "all services enabled", modes: config.ValidServiceModes(), capacity: 3, bufferLen: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := enabledSet(tt.modes...)
			assert.Equal(t, tt.capacity, errorChannelCapacity(enabled))
			assert.Equal(t, tt.bufferLen, errorChannelBufferSize(enabled))
		})
	}
}

func TestGetEnabledServices(t *testing.T) {
	assert.Equal(t, []string{"http", "worker", "sweeper"},
		GetEnabledServices(&config.AppConfig{Services: "sweeper, http,worker"}))
	assert.Equal(t, []string{"worker"}, GetEnabledServices(&config.AppConfig{Services: "worker"}))
	assert.Empty(t, GetEnabledServices(&config.AppConfig{Services: "scheduler"}))
	assert.Empty(t, GetEnabledServices(nil))
}

func TestValidateServiceConfig(t *testing.T) {
	require.NoError(t, ValidateServiceConfig(&config.AppConfig{Services: "http"}))
	require.Error(t, ValidateServiceConfig(&config.AppConfig{Services: ""}))
	require.Error(t, ValidateServiceConfig(&config.AppConfig{Services: "http,reaper"}))
	require.Error(t, ValidateServiceConfig(nil))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.AppConfig{LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	logger = newLogger(&buf, &config.AppConfig{IsDev: true, LogLevel: "debug"})
	logger.Debug("dev line")
	assert.Contains(t, buf.String(), "msg=\"dev line\"")

	assert.Equal(t, slog.LevelInfo, parseLogLevel("loud"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
}

func TestBuildCache(t *testing.T) {
	cfg := testConfig(t)

	repo, err := buildCache(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &data.MemoryCacheRepo{}, repo)
	require.NoError(t, repo.Health(context.Background()))

	cfg.Cache.Backend = config.CacheBackendRedis
	_, err = buildCache(cfg, nil)
	require.Error(t, err)
}

func TestBuildObservability(t *testing.T) {
	t.Run("everything disabled", func(t *testing.T) {
		obs := buildObservability(discardLogger(), config.ObservabilityConfig{})
		assert.Nil(t, obs.Metrics)
		assert.Nil(t, obs.Prometheus)
		require.NotNil(t, obs.FailureNotifier)
		assert.False(t, obs.FailureNotifier.Enabled())
	})

	t.Run("prometheus exposes job metrics", func(t *testing.T) {
		cfg := config.ObservabilityConfig{
			Metrics: config.ObservabilityMetricsConfig{PrometheusEnabled: true, RuntimeMetrics: true, Namespace: "yuedu"},
		}
		obs := buildObservability(discardLogger(), cfg)
		require.NotNil(t, obs.Prometheus)
		require.NotNil(t, obs.Metrics)

		rec := httptest.NewRecorder()
		obs.Prometheus.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})

	t.Run("statsd sends over udp and closes", func(t *testing.T) {
		pc, err := net.ListenPacket("udp", "127.0.0.1:0")
		require.NoError(t, err)
		defer pc.Close()

		cfg := config.ObservabilityConfig{Metrics: config.ObservabilityMetricsConfig{
			Enabled:       true,
			StatsdAddress: pc.LocalAddr().String(),
			Namespace:     "yuedu",
		}}
		obs := buildObservability(discardLogger(), cfg)
		require.NotNil(t, obs.Metrics)
		assert.Nil(t, obs.Prometheus)

		obs.Metrics.Count("jobs.submitted", 1, nil)
		buf := make([]byte, 256)
		require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, err := pc.ReadFrom(buf)
		require.NoError(t, err)
		assert.Equal(t, "yuedu.jobs.submitted:1|c", string(buf[:n]))

		obs.Close(discardLogger())
		obs.Close(discardLogger())
	})

	t.Run("slack sink registered when enabled", func(t *testing.T) {
		cfg := config.ObservabilityConfig{Notifications: config.ObservabilityNotificationsConfig{
			Enabled: true,
			Timeout: time.Second,
			Slack: config.SlackNotificationConfig{
				Enabled:    true,
				WebhookURL: "https://hooks.slack.invalid/services/T/B/X",
				Username:   "yuedu",
			},
		}}
		obs := buildObservability(discardLogger(), cfg)
		assert.True(t, obs.FailureNotifier.Enabled())
	})
}

func TestLoadPrompts(t *testing.T) {
	catalog, err := loadPrompts(config.PromptsConfig{}, discardLogger())
	require.NoError(t, err)
	require.NotNil(t, catalog)

	_, err = loadPrompts(config.PromptsConfig{File: "/nonexistent/prompts.yaml"}, discardLogger())
	require.Error(t, err)
}

func TestLoadDictionary_MissingFileIsNotFatal(t *testing.T) {
	dict := loadDictionary(config.DictionaryConfig{BDICPath: "/nonexistent/en.bdic", MaxEntries: 5}, discardLogger())
	require.NotNil(t, dict)
	assert.Zero(t, dict.Len())
}

func TestNewServices(t *testing.T) {
	cfg := testConfig(t)
	cfg.Observability.Metrics.PrometheusEnabled = true

	svc, err := NewServices(&ServiceDeps{Config: cfg, Logger: discardLogger()})
	require.NoError(t, err)

	assert.NotNil(t, svc.Jobs)
	assert.NotNil(t, svc.Language)
	assert.NotNil(t, svc.Books)
	assert.NotNil(t, svc.Runner)
	assert.NotNil(t, svc.Observability.Prometheus)
	assert.Equal(t, "qwen3:latest", svc.Model.ModelName())
	assert.Equal(t, cfg.Jobs.QueueDepth, svc.Jobs.QueueDepth())

	rs := routerServices(svc, cfg.HTTP, discardLogger())
	assert.NotNil(t, rs.Cache)
	assert.NotNil(t, rs.Worker)
	assert.NotNil(t, rs.Metrics)
	assert.Equal(t, cfg.HTTP.BatchLimit, rs.BatchLimit)

	_, err = NewServices(nil)
	require.Error(t, err)
}

func TestLaunchBackground(t *testing.T) {
	errCh := make(chan error, 2)
	deps := &serviceStartupDeps{
		ctx:             context.Background(),
		logger:          discardLogger(),
		enabledServices: enabledSet(config.ServiceModeWorker),
		errCh:           errCh,
	}

	done := launchBackground(deps.ctx, deps, backgroundService{
		mode:  config.ServiceModeWorker,
		name:  "job worker",
		start: func(context.Context) error { return errors.New("boom") },
	})
	require.NotNil(t, done)
	<-done

	select {
	case err := <-errCh:
		assert.EqualError(t, err, "job worker failed: boom")
	default:
		t.Fatal("expected background error")
	}

	skipped := launchBackground(deps.ctx, deps, backgroundService{
		mode:  config.ServiceModeSweeper,
		name:  "sweeper",
		start: func(context.Context) error { return nil },
	})
	assert.Nil(t, skipped)
}

func TestWaitForShutdown(t *testing.T) {
	t.Run("signal stops services", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		quit := make(chan os.Signal, 1)
		quit <- syscall.SIGTERM

		done := make(chan struct{})
		go func() {
			<-ctx.Done()
			close(done)
		}()

		err := waitForShutdown(shutdownConfig{
			ctx:         ctx,
			cancel:      cancel,
			quit:        quit,
			errCh:       make(chan error),
			httpServer:  &http.Server{},
			logger:      discardLogger(),
			backgrounds: []backgroundServiceHandle{{mode: config.ServiceModeWorker, name: "job worker", done: done}},
		})
		require.NoError(t, err)
		assert.Error(t, ctx.Err())
	})

	t.Run("service error is returned", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		errCh <- errors.New("sweeper failed")

		err := waitForShutdown(shutdownConfig{
			ctx:    ctx,
			cancel: cancel,
			quit:   make(chan os.Signal),
			errCh:  errCh,
			logger: discardLogger(),
		})
		require.EqualError(t, err, "sweeper failed")
		assert.Error(t, ctx.Err())
	})
}

type stubExecutor struct{}

func (stubExecutor) Translate(context.Context, string, string) (*model.TranslationResult, error) {
	return &model.TranslationResult{TranslatedText: "ok"}, nil
}

func (stubExecutor) GenerateQuestions(context.Context, string, int) (*model.QuestionResult, error) {
	return &model.QuestionResult{}, nil
}

func (stubExecutor) AnalyzeLinguistic(context.Context, string, string) (*model.LinguisticResult, error) {
	return &model.LinguisticResult{}, nil
}

func TestRunWorker(t *testing.T) {
	require.Error(t, RunWorker(context.Background(), nil))

	jobs := service.MustNewJobService(service.JobServiceOptions{Store: data.NewMemoryJobStore()})
	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{Jobs: jobs, Executor: stubExecutor{}, Logger: discardLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	job, err := jobs.Submit(ctx, model.TranslationPayload{Text: "你好", SchemaName: model.DefaultSchemaName})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- RunWorker(ctx, runner) }()

	require.Eventually(t, func() bool {
		got, getErr := jobs.Get(context.Background(), job.ID)
		return getErr == nil && got.State == model.JobStateSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)
}

func TestRunSweeper_InvalidConfig(t *testing.T) {
	jobs := service.MustNewJobService(service.JobServiceOptions{Store: data.NewMemoryJobStore()})
	err := RunSweeper(context.Background(), SweeperConfig{Jobs: jobs, Logger: discardLogger()})
	require.Error(t, err)
}

func TestShutdownHTTPServer(t *testing.T) {
	require.NoError(t, ShutdownHTTPServer(ShutdownConfig{}))

	srv := httptest.NewUnstartedServer(http.NotFoundHandler())
	srv.Start()
	require.NoError(t, ShutdownHTTPServer(ShutdownConfig{
		Context: context.Background(),
		Server:  srv.Config,
		Logger:  discardLogger(),
	}))
}

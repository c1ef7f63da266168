package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yuedu-lab/yuedu/config"
	"github.com/yuedu-lab/yuedu/internal/adapters/jobrunner"
	"github.com/yuedu-lab/yuedu/internal/adapters/ollama"
	"github.com/yuedu-lab/yuedu/internal/adapters/openlibrary"
	"github.com/yuedu-lab/yuedu/internal/core"
	"github.com/yuedu-lab/yuedu/internal/data"
	"github.com/yuedu-lab/yuedu/internal/domain/dictionary"
	"github.com/yuedu-lab/yuedu/internal/domain/prompt"
	"github.com/yuedu-lab/yuedu/internal/observability/notify/slack"
	"github.com/yuedu-lab/yuedu/internal/observability/promsink"
	"github.com/yuedu-lab/yuedu/internal/observability/statsd"
	"github.com/yuedu-lab/yuedu/internal/service"
	"github.com/yuedu-lab/yuedu/internal/service/failurenotifier"
)

// redisCachePrefix namespaces every cache key written to a shared Redis.
const redisCachePrefix = "yuedu:"

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	Language      *service.LanguageService
	Books         *service.BookService
	Model         *ollama.Client
	Cache         core.CacheRepository
	Runner        *jobrunner.Runner
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// Metrics fans out to StatsD and Prometheus; nil when both are disabled.
	Metrics         statsd.Sink
	Prometheus      *promsink.Sink
	FailureNotifier *failurenotifier.Service

	statsdClient *statsd.Client
}

// Close flushes and releases the StatsD connection, if any.
func (o ObservabilityContainer) Close(logger *slog.Logger) {
	if err := o.statsdClient.Close(); err != nil {
		logger.Warn("failed to close statsd client", "error", err)
	}
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	RedisClient redis.UniversalClient // Required when the cache backend is redis
	Logger      *slog.Logger
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	var (
		sinks  []statsd.Sink
		prom   *promsink.Sink
		client *statsd.Client
	)

	if cfg.Metrics.IsEnabled() {
		c, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Namespace,
			Logger:  logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			client = c
			sinks = append(sinks, c)
		}
	}

	if cfg.Metrics.PrometheusEnabled {
		sink, err := promsink.NewSink(promsink.Options{
			Namespace:   cfg.Metrics.Namespace,
			WithRuntime: cfg.Metrics.RuntimeMetrics,
		})
		if err != nil {
			logger.Error("failed to initialise prometheus sink", "error", err)
		} else {
			prom = sink
			sinks = append(sinks, sink)
		}
	}

	return ObservabilityContainer{
		Metrics:         statsd.NewMulti(sinks...),
		Prometheus:      prom,
		FailureNotifier: buildFailureNotifier(logger, cfg.Notifications),
		statsdClient:    client,
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	notifierLogger := logger.With("component", "failure_notifier")
	opts := failurenotifier.Options{
		Logger:          notifierLogger,
		CriticalClasses: []string{"unavailable", "internal"},
	}
	if !cfg.Enabled || !cfg.Slack.Enabled {
		return failurenotifier.NewService(opts)
	}

	client, err := slack.NewClient(slack.Config{
		WebhookURL:   cfg.Slack.WebhookURL,
		Channel:      cfg.Slack.Channel,
		Username:     cfg.Slack.Username,
		Timeout:      cfg.Timeout,
		RetryLimit:   cfg.RetryLimit,
		JobURLPrefix: cfg.Slack.SiteURLPrefix,
	})
	if err != nil {
		logger.Error("failed to initialise slack notifier", "error", err)
	} else {
		opts.Sinks = append(opts.Sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
	}
	return failurenotifier.NewService(opts)
}

//nolint:ireturn // the backend is chosen at runtime.
func buildCache(cfg *config.AppConfig, client redis.UniversalClient) (core.CacheRepository, error) {
	if cfg.Cache.Backend == config.CacheBackendRedis {
		if client == nil {
			return nil, errors.New("redis cache backend selected but no redis client is connected")
		}
		return data.NewRedisCacheRepo(data.RedisCacheRepoOptions{Client: client, Prefix: redisCachePrefix}), nil
	}
	return data.NewMemoryCacheRepo(cfg.Cache.CleanupInterval), nil
}

func loadPrompts(cfg config.PromptsConfig, logger *slog.Logger) (*prompt.Catalog, error) {
	if cfg.File == "" {
		return prompt.Default()
	}
	catalog, err := prompt.LoadFile(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("load prompt catalog %s: %w", cfg.File, err)
	}
	logger.Info("prompt catalog loaded", "path", cfg.File)
	return catalog, nil
}

// loadDictionary never fails startup; a missing word list only disables hints.
func loadDictionary(cfg config.DictionaryConfig, logger *slog.Logger) *dictionary.Dictionary {
	if cfg.BDICPath == "" {
		return dictionary.New(nil, cfg.MaxEntries)
	}
	dict, err := dictionary.LoadFile(cfg.BDICPath, cfg.MaxWords, cfg.MaxEntries)
	if err != nil {
		logger.Warn("dictionary unavailable, translation hints disabled", "path", cfg.BDICPath, "error", err)
		return dict
	}
	logger.Info("dictionary loaded", "path", cfg.BDICPath, "words", dict.Len())
	return dict
}

func newBookService(cfg *config.AppConfig, deps bookDeps) (*service.BookService, error) {
	catalog := openlibrary.NewClient(openlibrary.Options{
		BaseURL:   cfg.OpenLibrary.BaseURL,
		UserAgent: cfg.OpenLibrary.UserAgent,
		Timeout:   cfg.OpenLibrary.Timeout,
		Logger:    deps.logger,
	})

	repo := deps.cache
	if cfg.OpenLibrary.CacheTTL == 0 {
		repo = nil
	}
	return service.NewBookService(service.BookServiceOptions{
		Catalog: catalog,
		Cache: core.NewJSONCache(core.JSONCacheOptions{
			Repo:      repo,
			Namespace: "books",
			TTL:       cfg.OpenLibrary.CacheTTL,
			Logger:    deps.logger,
		}),
		Translator: deps.translator,
		Logger:     deps.logger,
	})
}

type bookDeps struct {
	cache      core.CacheRepository
	translator service.Translator
	logger     *slog.Logger
}

// NewServices wires the model client, the language and book services, the job
// queue and its worker.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service config is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	obs := buildObservability(logger, cfg.Observability)

	cache, err := buildCache(cfg, deps.RedisClient)
	if err != nil {
		return ServiceContainer{}, err
	}

	prompts, err := loadPrompts(cfg.Prompts, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	model, err := ollama.NewClient(ollama.Options{
		BaseURL:         cfg.Ollama.APIBase,
		Model:           cfg.Ollama.Model,
		Timeout:         cfg.Ollama.Timeout,
		ConnectTimeout:  cfg.Ollama.ConnectTimeout,
		ConnectCacheTTL: cfg.Ollama.ConnectCacheTTL,
		Streaming:       cfg.Ollama.Streaming,
		Logger:          logger,
		Metrics:         obs.Metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create model client: %w", err)
	}

	language, err := service.NewLanguageService(service.LanguageServiceOptions{
		Model:      model,
		Prompts:    prompts,
		Dictionary: loadDictionary(cfg.Dictionary, logger),
		Logger:     logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create language service: %w", err)
	}

	books, err := newBookService(cfg, bookDeps{cache: cache, translator: language, logger: logger})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create book service: %w", err)
	}

	jobs := service.MustNewJobService(service.JobServiceOptions{
		Store:           data.NewMemoryJobStore(),
		QueueDepth:      cfg.Jobs.QueueDepth,
		Logger:          logger,
		Metrics:         obs.Metrics,
		FailureNotifier: obs.FailureNotifier,
	})

	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Jobs:        jobs,
		Executor:    language,
		Logger:      logger,
		IdleTimeout: cfg.Jobs.IdleTimeout,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create job runner: %w", err)
	}

	return ServiceContainer{
		Jobs:          jobs,
		Language:      language,
		Books:         books,
		Model:         model,
		Cache:         cache,
		Runner:        runner,
		Observability: obs,
	}, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg,
				)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}
		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "job worker",
		start: func(ctx context.Context) error {
			return RunWorker(ctx, deps.cfg.Services.Runner)
		},
	}
}

func newSweeperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeSweeper,
		name: "sweeper",
		start: func(ctx context.Context) error {
			return RunSweeper(ctx, SweeperConfig{
				Jobs:    deps.cfg.Services.Jobs,
				Config:  deps.cfg.Config.Sweeper,
				Logger:  deps.logger,
				Metrics: deps.cfg.Services.Observability.Metrics,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newWorkerBackgroundService(deps),
		newSweeperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
// Background services start first so the worker drains jobs accepted by the
// first HTTP request.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	background := startBackgroundServices(deps, buildBackgroundServices(deps))
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: background,
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))
	defer cfg.Services.Observability.Close(logger)

	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		quit:        quit,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	quit        <-chan os.Signal
	errCh       <-chan error
	httpServer  *http.Server
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	select {
	case <-cfg.quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop stops the HTTP server first so no new jobs arrive, then waits
// for the background services.
func gracefulStop(cfg shutdownConfig) error {
	var httpErr error
	if cfg.httpServer != nil {
		// cfg.ctx is already cancelled here; the shutdown bound is independent of it.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cfg.ctx), shutdownWaitTimeout)
		defer cancel()

		httpErr = ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		})
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return httpErr
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}

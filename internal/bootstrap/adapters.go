package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yuedu-lab/yuedu/config"
	"github.com/yuedu-lab/yuedu/internal/adapters/jobrunner"
	"github.com/yuedu-lab/yuedu/internal/adapters/sweeper"
	"github.com/yuedu-lab/yuedu/internal/observability/statsd"
	"github.com/yuedu-lab/yuedu/internal/service"
)

// RunWorker runs the single job worker until ctx is cancelled.
func RunWorker(ctx context.Context, runner *jobrunner.Runner) error {
	if runner == nil {
		return errors.New("job runner is not configured")
	}
	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("run job worker: %w", err)
	}
	return nil
}

// SweeperConfig contains configuration for the retention sweeper.
type SweeperConfig struct {
	Jobs    service.JobSweeper
	Config  config.SweeperConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// RunSweeper starts the sweeper service that drops finished jobs past their
// retention age.
func RunSweeper(ctx context.Context, cfg SweeperConfig) error {
	runner, err := sweeper.NewRunner(sweeper.RunnerOptions{
		Jobs:    cfg.Jobs,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create sweeper runner: %w", err)
	}
	return runner.Run(ctx)
}

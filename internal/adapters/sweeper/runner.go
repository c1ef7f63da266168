// Package sweeper provides the adapter that runs the retention sweeper loop.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yuedu-lab/yuedu/config"
	"github.com/yuedu-lab/yuedu/internal/observability/statsd"
	"github.com/yuedu-lab/yuedu/internal/service"
)

// Runner constructs the sweeper service and runs its loop.
type Runner struct {
	sweeper *service.SweeperService
	logger  *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Jobs    service.JobSweeper
	Config  config.SweeperConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// NewRunner creates a new sweeper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job sweeper is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	svc, err := service.NewSweeperService(service.SweeperServiceOptions{
		Jobs:    opts.Jobs,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire sweeper service: %w", err)
	}

	return &Runner{sweeper: svc, logger: opts.Logger}, nil
}

// Run starts the sweeper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting sweeper runner")
	return r.sweeper.Run(ctx)
}

package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/yuedu-lab/yuedu/config"
	"github.com/yuedu-lab/yuedu/internal/observability/statsd"
)

// JobSweeper deletes finished jobs older than a retention age.
type JobSweeper interface {
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}

// SweeperServiceOptions groups dependencies for SweeperService.
type SweeperServiceOptions struct {
	Jobs    JobSweeper           // Required: usually *JobService
	Config  config.SweeperConfig // Required: sweeper configuration
	Logger  *slog.Logger         // Optional: structured logger
	Metrics statsd.Sink          // Optional: metrics sink (StatsD-compatible)
}

// SweeperService periodically removes finished jobs so the in-memory store
// stays bounded.
type SweeperService struct {
	jobs    JobSweeper
	config  config.SweeperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewSweeperService constructs a new SweeperService.
func NewSweeperService(opts SweeperServiceOptions) (*SweeperService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobSweeper is required")
	}
	if opts.Config.Interval <= 0 {
		return nil, errors.New("sweeper interval must be positive")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "sweeper_service")
		logger.Debug("SweeperService initialized",
			"interval", opts.Config.Interval,
			"max_age", opts.Config.MaxAge,
		)
	}

	return &SweeperService{
		jobs:    opts.Jobs,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Run sweeps once after a short jitter and then on every tick until the
// context is cancelled. Returns nil on graceful shutdown (context.Canceled).
func (s *SweeperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting sweeper service", "interval", s.config.Interval)
	}

	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.sweep(ctx, "initial sweep")

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "sweeper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			s.sweep(ctx, "sweep")
		}
	}
}

// waitWithJitter delays up to 10% of the interval.
func (s *SweeperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (s *SweeperService) sweep(ctx context.Context, label string) {
	if ctx.Err() != nil {
		return
	}
	_, err := s.jobs.Sweep(ctx, s.config.MaxAge)
	if err == nil {
		if s.metrics != nil {
			s.metrics.Gauge("sweeper.last_success_epoch", float64(time.Now().Unix()), nil)
		}
		return
	}
	if s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

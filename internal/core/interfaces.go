package core

import (
	"context"
	"time"

	"github.com/yuedu-lab/yuedu/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Service implementations depend on these interfaces, not on the data package.

// JobStore holds job records for the lifetime of the process.
type JobStore interface {
	// Create stores a new record. The id must be unused.
	Create(ctx context.Context, job *model.Job) error
	// Get returns a snapshot of the record or data.ErrJobNotFound.
	Get(ctx context.Context, id string) (*model.Job, error)
	// Update applies fn to the record atomically and returns the new snapshot.
	// When fn returns an error nothing is written.
	Update(ctx context.Context, id string, fn func(*model.Job) error) (*model.Job, error)
	// DeleteTerminalBefore removes terminal records completed at or before cutoff.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
	// Stats counts records per state.
	Stats(ctx context.Context) (model.JobStats, error)
}

package data

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yuedu-lab/yuedu/internal/domain/model"
)

// MemoryJobStore keeps job records in process memory. All access goes through
// a single mutex; callers only ever see clones, so a reader can never observe
// a record halfway through a transition.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

// NewMemoryJobStore creates an empty store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*model.Job)}
}

// Create stores job. The id must be unused.
func (s *MemoryJobStore) Create(_ context.Context, job *model.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("create job: %w", ErrEmptyKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("create job %s: %w", job.ID, ErrJobExists)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get returns a snapshot of the record for id.
func (s *MemoryJobStore) Get(_ context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// Update applies fn to the stored record under the write lock and returns a
// snapshot of the result. If fn fails the record is left untouched.
func (s *MemoryJobStore) Update(
	_ context.Context,
	id string,
	fn func(*model.Job) error,
) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}

	working := job.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	s.jobs[id] = working
	return working.Clone(), nil
}

// DeleteTerminalBefore removes every succeeded or failed record whose
// completion time is at or before cutoff. Queued and running records are
// never touched.
func (s *MemoryJobStore) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, job := range s.jobs {
		if job.CompletedBefore(cutoff) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

// Stats counts records per state.
func (s *MemoryJobStore) Stats(_ context.Context) (model.JobStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats model.JobStats
	for _, job := range s.jobs {
		switch job.State {
		case model.JobStateQueued:
			stats.Queued++
		case model.JobStateRunning:
			stats.Running++
		case model.JobStateSucceeded:
			stats.Succeeded++
		case model.JobStateFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

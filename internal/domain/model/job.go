// Package model defines the core data types shared by the job queue, the
// language services, and the HTTP layer.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobKind identifies the kind of work a job performs. It is derived from the
// payload variant and never changes after submission.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobKind string

// JobState represents the lifecycle state of a job.
type JobState string

const (
	// JobKindTranslation translates Chinese text to English with explanations.
	JobKindTranslation JobKind = "translation"
	// JobKindQuestions generates reading comprehension questions.
	JobKindQuestions JobKind = "questions"
	// JobKindLinguistic analyzes a selected span within a larger text.
	JobKindLinguistic JobKind = "linguistic"

	// JobStateQueued indicates a job is waiting for the worker.
	JobStateQueued JobState = "queued"
	// JobStateRunning indicates the worker is executing the job.
	JobStateRunning JobState = "running"
	// JobStateSucceeded indicates the job finished with a result.
	JobStateSucceeded JobState = "succeeded"
	// JobStateFailed indicates the job finished with an error.
	JobStateFailed JobState = "failed"
)

// Progress notes written by the worker.
const (
	ProgressQueued     = "Queued for processing"
	ProgressRunning    = "Processing in progress..."
	ProgressSucceeded  = "Processing completed"
	progressFailedStub = "Processing failed: "
)

// ProgressFailed formats the final progress note of a failed job.
func ProgressFailed(msg string) string {
	return progressFailedStub + msg
}

// UnmarshalText implements encoding.TextUnmarshaler so kinds can be parsed from
// query strings and CLI flags.
func (k *JobKind) UnmarshalText(text []byte) error {
	v := JobKind(strings.ToLower(strings.TrimSpace(string(text))))
	if v.Valid() {
		*k = v
		return nil
	}
	return fmt.Errorf("invalid JobKind: %q", v)
}

// Valid returns true if the JobKind is one of the known kinds.
func (k JobKind) Valid() bool {
	return k == JobKindTranslation || k == JobKindQuestions || k == JobKindLinguistic
}

// Valid returns true if the JobState is valid.
func (s JobState) Valid() bool {
	return s == JobStateQueued || s == JobStateRunning || s == JobStateSucceeded ||
		s == JobStateFailed
}

// IsTerminal reports whether no further transitions can occur.
func (s JobState) IsTerminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed
}

// ErrInvalidTransition is returned when a state change would violate the job lifecycle.
var ErrInvalidTransition = errors.New("invalid job state transition")

// Job is the stored record of one unit of asynchronous work.
//
// Result is set only when State is succeeded and Error only when it is failed.
// StartedAt is nil while queued and CompletedAt is nil until a terminal state.
type Job struct {
	ID          string     `json:"job_id"`
	Kind        JobKind    `json:"kind"`
	State       JobState   `json:"state"`
	Payload     JobPayload `json:"-"`
	Progress    string     `json:"progress"`
	Result      JobResult  `json:"result,omitempty"`
	Error       *string    `json:"error,omitempty"`
	RawResponse *string    `json:"raw_response,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewJob builds a queued record for payload.
func NewJob(id string, payload JobPayload, now time.Time) *Job {
	return &Job{
		ID:        id,
		Kind:      payload.Kind(),
		State:     JobStateQueued,
		Payload:   payload,
		Progress:  ProgressQueued,
		CreatedAt: now,
	}
}

// Clone returns a copy that shares no mutable fields with j. Payloads and
// results are immutable once set, so they are shared.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Error = cloneString(j.Error)
	c.RawResponse = cloneString(j.RawResponse)
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	return &c
}

// Start moves a queued job to running.
func (j *Job) Start(now time.Time) error {
	if j.State != JobStateQueued {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, JobStateRunning)
	}
	j.State = JobStateRunning
	j.StartedAt = &now
	j.Progress = ProgressRunning
	return nil
}

// Succeed moves a running job to succeeded with result.
func (j *Job) Succeed(result JobResult, now time.Time) error {
	if j.State != JobStateRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, JobStateSucceeded)
	}
	if result == nil {
		return errors.New("succeeded job requires a result")
	}
	j.State = JobStateSucceeded
	j.Result = result
	j.CompletedAt = &now
	j.Progress = ProgressSucceeded
	return nil
}

// Fail moves a running job to failed. raw is kept for diagnostics when non-empty.
func (j *Job) Fail(msg, raw string, now time.Time) error {
	if j.State != JobStateRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, JobStateFailed)
	}
	if msg == "" {
		msg = "job failed"
	}
	j.State = JobStateFailed
	j.Error = &msg
	if raw != "" {
		j.RawResponse = &raw
	}
	j.CompletedAt = &now
	j.Progress = ProgressFailed(msg)
	return nil
}

// CompletedBefore reports whether the job is terminal and finished before cutoff.
func (j *Job) CompletedBefore(cutoff time.Time) bool {
	return j.State.IsTerminal() && j.CompletedAt != nil && !j.CompletedAt.After(cutoff)
}

// JobStats counts jobs per state.
type JobStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Total returns the number of jobs across all states.
func (s JobStats) Total() int {
	return s.Queued + s.Running + s.Succeeded + s.Failed
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

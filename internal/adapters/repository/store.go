// Package repository holds optimization jobs and their outcomes.
package repository

import (
	"context"
	"time"

	"github.com/okian/fsrs/internal/domain/model"
)

// Store provides read/write access to optimization jobs.
type Store interface {
	// Create inserts a new queued job. Returns ErrExists on ID collision.
	Create(ctx context.Context, j model.Job) error

	// Get returns a copy of the job. Returns ErrNotFound if unknown.
	Get(ctx context.Context, id string) (model.Job, error)

	// MarkRunning moves a queued job to running.
	MarkRunning(ctx context.Context, id string, at time.Time) error

	// Complete moves a running job to succeeded with its result.
	Complete(ctx context.Context, id string, result model.JobResult, at time.Time) error

	// Fail moves a queued or running job to failed.
	Fail(ctx context.Context, id string, reason string, at time.Time) error

	// FailPending marks every queued or running job failed and returns
	// how many were changed.
	FailPending(ctx context.Context, reason string, at time.Time) int

	// Delete removes a job, whatever its state.
	Delete(ctx context.Context, id string) error

	// Count returns the number of jobs held.
	Count(ctx context.Context) int

	// CountByStatus returns the number of jobs per status.
	CountByStatus(ctx context.Context) map[model.JobStatus]int
}

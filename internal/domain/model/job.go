package model

import "time"

// JobStatus is the lifecycle of an asynchronous optimization job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition can happen.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// OptimizationRequest is a review log in boundary form: parallel
// rating/elapsed sequences and the 1-based start index of each card.
type OptimizationRequest struct {
	Ratings         []int `json:"ratings"`
	DeltaTs         []int `json:"delta_ts"`
	CardStarts      []int `json:"card_starts"`
	EnableShortTerm bool  `json:"enable_short_term"`
}

// JobResult is the fitted outcome of a successful job.
type JobResult struct {
	Parameters  []float64 `json:"parameters"`
	State       string    `json:"state"`
	Loss        float64   `json:"loss"`
	InitialLoss float64   `json:"initial_loss"`
	Iterations  int       `json:"iterations"`
	Items       int       `json:"items"`
}

// Job is one optimization request and its progress.
type Job struct {
	ID          string              `json:"id"`
	Fingerprint string              `json:"-"`
	Status      JobStatus           `json:"status"`
	Request     OptimizationRequest `json:"-"`
	Result      *JobResult          `json:"result,omitempty"`
	Error       string              `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	FinishedAt  *time.Time          `json:"finished_at,omitempty"`
}

// Package worker runs optimization jobs taken off the queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/fsrs/internal/domain/model"
	"github.com/okian/fsrs/pkg/logger"
	"github.com/okian/fsrs/pkg/metrics"
)

// Default worker configuration constants.
const (
	poolShutdownTimeout = 30 * time.Second
)

// Job is what workers read off the queue.
type Job = model.Job

// Fitter fits parameters for one request.
type Fitter interface {
	Fit(ctx context.Context, req model.OptimizationRequest) (model.JobResult, error)
}

// Recorder persists job transitions.
type Recorder interface {
	MarkRunning(ctx context.Context, id string, at time.Time) error
	Complete(ctx context.Context, id string, result model.JobResult, at time.Time) error
	Fail(ctx context.Context, id string, reason string, at time.Time) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after the job in hand.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	fitter   Fitter
	recorder Recorder
	name     string
	now      func() time.Time

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, fitter Fitter, recorder Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		fitter:   fitter,
		recorder: recorder,
		name:     "worker",
		now:      time.Now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.GetOrNop().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, j); err != nil {
				w.logger.Error(ctx, "error processing job", logger.String("job_id", j.ID), logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process runs one job and records its outcome. The returned error is
// about bookkeeping; a failed fit is recorded on the job, not returned.
func (w *InMemoryWorker) process(ctx context.Context, j Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := w.now()
	if err := w.recorder.MarkRunning(ctx, j.ID, start); err != nil {
		return fmt.Errorf("mark job %s running: %w", j.ID, err)
	}

	metrics.AddWorkerActive(1)
	result, err := w.fitter.Fit(ctx, j.Request)
	metrics.AddWorkerActive(-1)
	end := w.now()
	metrics.RecordWorkerJobLatency(float64(end.Sub(start).Milliseconds()))

	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", errorKind(err))
		metrics.RecordErrorByType(errorKind(err), "error")
		w.logger.Error(ctx, "optimization job failed",
			logger.String("job_id", j.ID),
			logger.Error(err))
		if ferr := w.recorder.Fail(ctx, j.ID, err.Error(), end); ferr != nil {
			return fmt.Errorf("record failure of job %s: %w", j.ID, ferr)
		}
		return nil
	}

	w.logger.Debug(ctx, "optimization job succeeded",
		logger.String("job_id", j.ID),
		logger.String("state", result.State),
		logger.Int("iterations", result.Iterations))
	if err := w.recorder.Complete(ctx, j.ID, result, end); err != nil {
		return fmt.Errorf("record result of job %s: %w", j.ID, err)
	}
	return nil
}

// errorKind maps an error to a low-cardinality metric label.
func errorKind(err error) string {
	switch {
	case errors.Is(err, model.ErrNoTrainableData):
		return "no_trainable_data"
	case errors.Is(err, model.ErrNumericalDivergence):
		return "numerical_divergence"
	case errors.Is(err, model.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers, at least one.
func NewPool(workerCount int, queue Queue, fitter Fitter, recorder Recorder, opts ...Option) *Pool {
	workerCount = max(workerCount, 1)

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.GetOrNop().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(queue, fitter, recorder,
			append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)...)
	}

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, then waits for every worker to finish the
// job in hand.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	for _, w := range p.workers {
		close(w.shutdown)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}

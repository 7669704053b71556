// Package service wires the optimization job pipeline behind the HTTP API:
// submissions are fingerprinted, deduplicated, stored and queued, and a
// worker pool fits parameters for each job.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	jobqueue "github.com/okian/fsrs/internal/adapters/mq/queue"
	workerpool "github.com/okian/fsrs/internal/adapters/mq/worker"
	"github.com/okian/fsrs/internal/adapters/repository"
	"github.com/okian/fsrs/internal/domain/dataset"
	"github.com/okian/fsrs/internal/domain/dedupe"
	"github.com/okian/fsrs/internal/domain/model"
	"github.com/okian/fsrs/internal/domain/optimizer"
	"github.com/okian/fsrs/pkg/logger"
	"github.com/okian/fsrs/pkg/metrics"
)

// SubmitResult acknowledges an accepted optimization request.
type SubmitResult struct {
	JobID     string `json:"job_id"`
	Duplicate bool   `json:"duplicate"`
}

// Service implements the API dependencies for optimization jobs.
type Service struct {
	mu sync.RWMutex

	// Core components
	jobs       repository.Store
	deduper    dedupe.Deduper
	queue      jobqueue.Queue
	fitter     workerpool.Fitter
	workerPool *workerpool.Pool

	// Configuration
	workerCount   int
	queueSize     int
	dedupeSize    int
	shardCount    int
	optimizerOpts []optimizer.Option
	now           func() time.Time

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: max(1, runtime.NumCPU()/2),
		queueSize:   1_024,
		dedupeSize:  10_000,
		shardCount:  8,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the pipeline and starts the workers. Calling Start on a
// running service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.GetOrNop().Named("service")
	}

	s.logger.Info(ctx, "starting optimization service...")

	s.jobs = repository.NewShardedStore(repository.WithShardCount(s.shardCount))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))
	if s.fitter == nil {
		s.fitter = newOptimizerFitter(s.optimizerOpts, s.logger)
	}

	// Workers outlive the Start call, so they get their own lifetime.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.workerPool = workerpool.NewPool(s.workerCount, s.queue, s.fitter, s.jobs,
		workerpool.WithClock(s.now))
	s.workerPool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "optimization service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("shards", s.shardCount),
	)
	return nil
}

// Stop closes the queue and waits for in-flight jobs. Jobs still queued
// are marked failed.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping optimization service...")

	err := s.workerPool.Shutdown(ctx)
	s.cancel()
	s.started = false
	if n := s.jobs.FailPending(ctx, ErrStopped.Error(), s.now()); n > 0 {
		s.logger.Warn(ctx, "abandoned pending jobs", logger.Int("count", n))
	}

	if err != nil {
		s.logger.Warn(ctx, "worker pool did not stop cleanly", logger.Error(err))
		return fmt.Errorf("stop service: %w", err)
	}
	s.logger.Info(ctx, "optimization service stopped")
	return nil
}

// Submit validates req and queues an optimization job for it. An identical
// request submitted earlier resolves to that request's job.
func (s *Service) Submit(ctx context.Context, req model.OptimizationRequest) (SubmitResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return SubmitResult{}, ErrNotStarted
	}

	histories, err := dataset.Split(req.Ratings, req.DeltaTs, req.CardStarts)
	if err != nil {
		return SubmitResult{}, err
	}
	if len(dataset.Items(histories, 0)) == 0 {
		return SubmitResult{}, model.ErrNoTrainableData
	}

	fp, err := fingerprint(req)
	if err != nil {
		return SubmitResult{}, err
	}

	id := uuid.NewString()
	if bound, dup := s.deduper.Claim(ctx, fp, id); dup {
		metrics.RecordJobDuplicate()
		s.logger.Debug(ctx, "duplicate submission", logger.String("job_id", bound))
		return SubmitResult{JobID: bound, Duplicate: true}, nil
	}

	job := model.Job{
		ID:          id,
		Fingerprint: fp,
		Request:     req,
		CreatedAt:   s.now(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.deduper.Release(ctx, fp)
		return SubmitResult{}, fmt.Errorf("create job: %w", err)
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		// Roll back so the same request can be retried.
		_ = s.jobs.Delete(ctx, id)
		s.deduper.Release(ctx, fp)
		if errors.Is(err, jobqueue.ErrQueueFull) {
			return SubmitResult{}, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return SubmitResult{}, fmt.Errorf("enqueue job: %w", err)
	}

	metrics.RecordJobSubmitted()
	s.logger.Debug(ctx, "optimization job queued",
		logger.String("job_id", id),
		logger.Int("cards", len(histories)),
		logger.Int("reviews", len(req.Ratings)))
	return SubmitResult{JobID: id}, nil
}

// Job returns the current view of a job. Jobs stay readable after Stop.
func (s *Service) Job(ctx context.Context, id string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.jobs == nil {
		return model.Job{}, ErrNotStarted
	}
	j, err := s.jobs.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j, err
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		total := s.jobs.Count(ctx)
		byStatus := s.jobs.CountByStatus(ctx)

		stats["queueLength"] = queueLen
		stats["totalJobs"] = total
		stats["fingerprints"] = s.deduper.Size()
		for status, n := range byStatus {
			stats["jobs_"+string(status)] = n
		}

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateJobsTotal(total)
		metrics.UpdateWorkerCount(s.workerPool.Size())
	}

	return stats
}

// fingerprint hashes the canonical JSON encoding of req.
func fingerprint(req model.OptimizationRequest) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("fingerprint request: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

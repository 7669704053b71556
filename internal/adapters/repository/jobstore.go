package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/fsrs/internal/domain/model"
	"github.com/okian/fsrs/pkg/metrics"
)

const defaultShardCount = 8

type shard struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

// ShardedStore is an in-memory Store. Jobs are spread over shards by a
// hash of their ID so writers on different jobs rarely contend.
type ShardedStore struct {
	shardCount int
	shards     []*shard
	total      atomic.Int64
}

// NewShardedStore creates an empty store.
func NewShardedStore(opts ...Option) *ShardedStore {
	s := &ShardedStore{shardCount: defaultShardCount}
	for _, opt := range opts {
		opt(s)
	}
	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{jobs: make(map[string]*model.Job)}
	}
	metrics.UpdateJobsTotal(0)
	return s
}

func (s *ShardedStore) shardFor(id string) *shard {
	return s.shards[xxhash.Sum64String(id)%uint64(len(s.shards))]
}

func (s *ShardedStore) Create(_ context.Context, j model.Job) error { //nolint:gocritic // hugeParam: stored by value
	sh := s.shardFor(j.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.jobs[j.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, j.ID)
	}
	j.Status = model.JobQueued
	sh.jobs[j.ID] = &j
	metrics.UpdateJobsTotal(int(s.total.Add(1)))
	return nil
}

func (s *ShardedStore) Get(_ context.Context, id string) (model.Job, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	j, ok := sh.jobs[id]
	if !ok {
		return model.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(j), nil
}

func (s *ShardedStore) MarkRunning(_ context.Context, id string, at time.Time) error {
	return s.transition(id, func(j *model.Job) error {
		if j.Status != model.JobQueued {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, model.JobRunning)
		}
		j.Status = model.JobRunning
		j.StartedAt = &at
		return nil
	})
}

func (s *ShardedStore) Complete(_ context.Context, id string, result model.JobResult, at time.Time) error {
	return s.transition(id, func(j *model.Job) error {
		if j.Status != model.JobRunning {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, model.JobSucceeded)
		}
		result.Parameters = append([]float64(nil), result.Parameters...)
		j.Status = model.JobSucceeded
		j.Result = &result
		j.FinishedAt = &at
		return nil
	})
}

func (s *ShardedStore) Fail(_ context.Context, id string, reason string, at time.Time) error {
	return s.transition(id, func(j *model.Job) error {
		if j.Status.Terminal() {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, model.JobFailed)
		}
		j.Status = model.JobFailed
		j.Error = reason
		j.FinishedAt = &at
		return nil
	})
}

func (s *ShardedStore) FailPending(_ context.Context, reason string, at time.Time) int {
	var n int
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, j := range sh.jobs {
			if j.Status.Terminal() {
				continue
			}
			j.Status = model.JobFailed
			j.Error = reason
			j.FinishedAt = &at
			n++
		}
		sh.mu.Unlock()
	}
	return n
}

func (s *ShardedStore) Delete(_ context.Context, id string) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.jobs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(sh.jobs, id)
	metrics.UpdateJobsTotal(int(s.total.Add(-1)))
	return nil
}

func (s *ShardedStore) Count(_ context.Context) int {
	return int(s.total.Load())
}

func (s *ShardedStore) CountByStatus(_ context.Context) map[model.JobStatus]int {
	out := map[model.JobStatus]int{
		model.JobQueued:    0,
		model.JobRunning:   0,
		model.JobSucceeded: 0,
		model.JobFailed:    0,
	}
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, j := range sh.jobs {
			out[j.Status]++
		}
		sh.mu.RUnlock()
	}
	return out
}

func (s *ShardedStore) transition(id string, apply func(*model.Job) error) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	j, ok := sh.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return apply(j)
}

// clone copies everything a caller could mutate.
func clone(j *model.Job) model.Job {
	out := *j
	if j.Result != nil {
		r := *j.Result
		r.Parameters = append([]float64(nil), r.Parameters...)
		out.Result = &r
	}
	return out
}

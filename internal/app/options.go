package service

import (
	"time"

	workerpool "github.com/okian/fsrs/internal/adapters/mq/worker"
	"github.com/okian/fsrs/internal/domain/optimizer"
	"github.com/okian/fsrs/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many submission fingerprints are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithShardCount sets the number of job store shards.
func WithShardCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithOptimizerOptions sets the optimizer configuration used for every job.
func WithOptimizerOptions(opts ...optimizer.Option) Option {
	return func(s *Service) {
		s.optimizerOpts = append([]optimizer.Option(nil), opts...)
	}
}

// WithFitter replaces the optimizer-backed fitter.
func WithFitter(f workerpool.Fitter) Option {
	return func(s *Service) {
		if f != nil {
			s.fitter = f
		}
	}
}

// WithClock sets the time source for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

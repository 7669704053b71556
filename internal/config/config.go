// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() builds a Config with defaults; Load layers file and env on top.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/okian/fsrs/internal/domain/optimizer"
	"github.com/okian/fsrs/internal/domain/scheduler"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory optimization job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of optimization workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize caps how many submission fingerprints are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// JobShardCount configures the number of shards in the job store.
	JobShardCount int `koanf:"job_shard_count"`

	// DesiredRetention is used by /v1/repeat and /v1/interval when the
	// request leaves it out.
	DesiredRetention float64 `koanf:"desired_retention"`

	// Optimizer settings applied to every job.
	OptimizerEpochs       int     `koanf:"optimizer_epochs"`
	OptimizerBatchSize    int     `koanf:"optimizer_batch_size"`
	OptimizerLearningRate float64 `koanf:"optimizer_learning_rate"`
	OptimizerSeed         int64   `koanf:"optimizer_seed"`
	OptimizerMaxSeqLen    int     `koanf:"optimizer_max_seq_len"`
	OptimizerTolerance    float64 `koanf:"optimizer_tolerance"`
	OptimizerParallelism  int     `koanf:"optimizer_parallelism"`

	// SubmitRatePerSec and SubmitBurst throttle POST /v1/optimizations.
	// A zero rate disables throttling.
	SubmitRatePerSec float64 `koanf:"submit_rate_per_sec"`
	SubmitBurst      int     `koanf:"submit_burst"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		QueueSize:             1_024,
		WorkerCount:           max(1, runtime.NumCPU()/2),
		DedupeSize:            10_000,
		JobShardCount:         8,
		DesiredRetention:      scheduler.DefaultDesiredRetention,
		OptimizerEpochs:       optimizer.DefaultEpochs,
		OptimizerBatchSize:    optimizer.DefaultBatchSize,
		OptimizerLearningRate: optimizer.DefaultLearningRate,
		OptimizerSeed:         optimizer.DefaultSeed,
		OptimizerMaxSeqLen:    optimizer.DefaultMaxSeqLen,
		OptimizerTolerance:    optimizer.DefaultTolerance,
		OptimizerParallelism:  runtime.NumCPU(),
		SubmitRatePerSec:      20,
		SubmitBurst:           40,
	}
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive, got %d", ErrInvalidConfig, c.QueueSize)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidConfig, c.WorkerCount)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive, got %d", ErrInvalidConfig, c.DedupeSize)
	case c.JobShardCount <= 0:
		return fmt.Errorf("%w: job_shard_count must be positive, got %d", ErrInvalidConfig, c.JobShardCount)
	case c.SubmitRatePerSec < 0:
		return fmt.Errorf("%w: submit_rate_per_sec must not be negative", ErrInvalidConfig)
	case c.SubmitRatePerSec > 0 && c.SubmitBurst <= 0:
		return fmt.Errorf("%w: submit_burst must be positive when throttling", ErrInvalidConfig)
	}
	if err := scheduler.ValidateRetention(c.DesiredRetention); err != nil {
		return fmt.Errorf("%w: desired_retention: %w", ErrInvalidConfig, err)
	}
	if _, err := optimizer.New(c.OptimizerOptions()...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if !validLevel(c.LogLevel) {
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return nil
}

// OptimizerOptions converts the optimizer settings into options.
func (c *Config) OptimizerOptions() []optimizer.Option {
	return []optimizer.Option{
		optimizer.WithEpochs(c.OptimizerEpochs),
		optimizer.WithBatchSize(c.OptimizerBatchSize),
		optimizer.WithLearningRate(c.OptimizerLearningRate),
		optimizer.WithSeed(c.OptimizerSeed),
		optimizer.WithMaxSeqLen(c.OptimizerMaxSeqLen),
		optimizer.WithTolerance(c.OptimizerTolerance),
		optimizer.WithParallelism(c.OptimizerParallelism),
	}
}

func validLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	default:
		return false
	}
}

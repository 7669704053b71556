package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/fsrs/internal/domain/model"
	"github.com/okian/fsrs/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Report summarizes a simulation run.
type Report struct {
	Cards       int           `json:"cards"`
	Reviews     int           `json:"reviews"`
	JobID       string        `json:"job_id"`
	Duplicate   bool          `json:"duplicate_resolved"`
	Job         model.Job     `json:"job"`
	Default     EvaluateReply `json:"default"`
	Fitted      EvaluateReply `json:"fitted"`
	GroundTruth EvaluateReply `json:"ground_truth"`
	Duration    time.Duration `json:"duration"`
}

// Improved reports whether the fitted vector scores no worse than the
// defaults on the corpus.
func (r Report) Improved() bool {
	return r.Fitted.LogLoss <= r.Default.LogLoss
}

// Run generates a corpus, has the service fit it and scores the result
// against the defaults and the ground truth.
func Run(ctx context.Context, cfg RunConfig) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	log := logger.GetOrNop().Named("simulate")
	start := time.Now()
	client := NewClient(cfg.BaseURL, cfg.Timeout, cfg.PollInterval)

	log.Info(ctx, "starting simulation run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("cards", cfg.Corpus.Cards),
		logger.Int("reviewsPerCard", cfg.Corpus.ReviewsPerCard),
		logger.Bool("shortTerm", cfg.EnableShortTerm))

	if err := client.Health(ctx); err != nil {
		return Report{}, fmt.Errorf("service health check failed: %w", err)
	}

	corpus, err := Generate(ctx, cfg.Corpus)
	if err != nil {
		return Report{}, fmt.Errorf("corpus generation failed: %w", err)
	}
	if cfg.OutputFile != "" {
		if err := saveCorpus(cfg.OutputFile, corpus); err != nil {
			log.Warn(ctx, "failed to save corpus", logger.Error(err))
		}
	}

	ratings, deltaTs, starts := corpus.Flatten()
	req := model.OptimizationRequest{
		Ratings:         ratings,
		DeltaTs:         deltaTs,
		CardStarts:      starts,
		EnableShortTerm: cfg.EnableShortTerm,
	}

	first, err := client.Submit(ctx, req)
	if err != nil {
		return Report{}, fmt.Errorf("submission failed: %w", err)
	}
	// Resubmitting must land on the same job.
	again, err := client.Submit(ctx, req)
	if err != nil {
		return Report{}, fmt.Errorf("resubmission failed: %w", err)
	}
	if !again.Duplicate || again.JobID != first.JobID {
		return Report{}, fmt.Errorf("%w: resubmission got job %s (duplicate=%v), want %s",
			ErrUnexpectedReply, again.JobID, again.Duplicate, first.JobID)
	}
	log.Info(ctx, "optimization job queued", logger.String("job_id", first.JobID))

	pollCtx, cancel := context.WithTimeout(ctx, cfg.PollTimeout)
	defer cancel()
	job, err := client.WaitForJob(pollCtx, first.JobID)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Cards:     len(corpus.Cards),
		Reviews:   corpus.Reviews(),
		JobID:     first.JobID,
		Duplicate: true,
		Job:       job,
	}

	var truth []float64
	if cfg.Corpus.Parameters != nil {
		truth = cfg.Corpus.Parameters.Float64s()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		report.Default, err = client.Evaluate(gctx, ratings, deltaTs, starts, nil)
		return err
	})
	g.Go(func() (err error) {
		report.Fitted, err = client.Evaluate(gctx, ratings, deltaTs, starts, job.Result.Parameters)
		return err
	})
	g.Go(func() (err error) {
		report.GroundTruth, err = client.Evaluate(gctx, ratings, deltaTs, starts, truth)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("evaluation failed: %w", err)
	}

	report.Duration = time.Since(start)
	log.Info(ctx, "simulation run completed",
		logger.String("state", job.Result.State),
		logger.Int("iterations", job.Result.Iterations),
		logger.Float64("defaultLogLoss", report.Default.LogLoss),
		logger.Float64("fittedLogLoss", report.Fitted.LogLoss),
		logger.Float64("truthLogLoss", report.GroundTruth.LogLoss),
		logger.Float64s("parameters", job.Result.Parameters),
		logger.Duration("duration", report.Duration))
	return report, nil
}

// saveCorpus writes the corpus as JSON, creating parent directories.
func saveCorpus(path string, corpus Corpus) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(corpus, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal corpus: %w", err)
	}
	if err := os.WriteFile(path, data, filePermission); err != nil {
		return fmt.Errorf("failed to write corpus: %w", err)
	}
	return nil
}

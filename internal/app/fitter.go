package service

import (
	"context"

	"github.com/okian/fsrs/internal/domain/dataset"
	"github.com/okian/fsrs/internal/domain/model"
	"github.com/okian/fsrs/internal/domain/optimizer"
	"github.com/okian/fsrs/pkg/logger"
)

// optimizerFitter adapts the optimizer to workerpool.Fitter.
type optimizerFitter struct {
	opts   []optimizer.Option
	logger logger.Logger
}

func newOptimizerFitter(opts []optimizer.Option, l logger.Logger) *optimizerFitter {
	return &optimizerFitter{opts: opts, logger: l}
}

func (f *optimizerFitter) Fit(ctx context.Context, req model.OptimizationRequest) (model.JobResult, error) {
	histories, err := dataset.Split(req.Ratings, req.DeltaTs, req.CardStarts)
	if err != nil {
		return model.JobResult{}, err
	}

	opts := make([]optimizer.Option, 0, len(f.opts)+2)
	opts = append(opts, f.opts...)
	opts = append(opts,
		optimizer.WithShortTerm(req.EnableShortTerm),
		optimizer.WithLogger(f.logger.Named("optimizer")))

	o, err := optimizer.New(opts...)
	if err != nil {
		return model.JobResult{}, err
	}
	res, err := o.Optimize(ctx, histories)
	if err != nil {
		return model.JobResult{}, err
	}
	return model.JobResult{
		Parameters:  res.Parameters.Float64s(),
		State:       res.State.String(),
		Loss:        res.Loss,
		InitialLoss: res.InitialLoss,
		Iterations:  res.Iterations,
		Items:       res.Items,
	}, nil
}

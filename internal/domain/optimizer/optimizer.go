// Package optimizer fits an FSRS parameter vector to review histories by
// mini-batch gradient descent on the prediction log-loss.
package optimizer

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"time"

	"github.com/okian/fsrs/internal/domain/dataset"
	"github.com/okian/fsrs/internal/domain/model"
	"github.com/okian/fsrs/internal/domain/params"
	"github.com/okian/fsrs/pkg/logger"
	"github.com/okian/fsrs/pkg/metrics"
)

// Default configuration constants.
const (
	DefaultEpochs       = 5
	DefaultBatchSize    = 512
	DefaultLearningRate = 0.04
	DefaultSeed         = 42
	DefaultMaxSeqLen    = 64
	DefaultTolerance    = 1e-5
)

// State is the lifecycle of one optimization run.
type State int

const (
	Initialized State = iota
	Iterating
	Converged
	BudgetExhausted
	Failed
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Iterating:
		return "iterating"
	case Converged:
		return metrics.StateConverged
	case BudgetExhausted:
		return metrics.StateBudgetExhausted
	case Failed:
		return metrics.StateFailed
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Usable reports whether a run in state s produced a parameter vector.
func (s State) Usable() bool {
	return s == Converged || s == BudgetExhausted
}

// Result is the outcome of Optimize. Parameters is nil unless
// State.Usable().
type Result struct {
	Parameters  params.Vector `json:"parameters,omitempty"`
	State       State         `json:"-"`
	Loss        float64       `json:"loss"`
	InitialLoss float64       `json:"initial_loss"`
	Iterations  int           `json:"iterations"`
	Epochs      int           `json:"epochs"`
	Items       int           `json:"items"`
}

// Optimizer holds the run configuration. It is safe to reuse across runs.
type Optimizer struct {
	epochs       int
	batchSize    int
	learningRate float64
	seed         int64
	maxSeqLen    int
	tolerance    float64
	parallelism  int
	shortTerm    bool
	initial      params.Vector
	log          logger.Logger

	// project keeps the vector inside its bounds after every step.
	project func(params.Vector) params.Vector
}

// Option applies a configuration option to the Optimizer.
type Option func(*Optimizer)

// WithEpochs sets the number of passes over the training set.
func WithEpochs(n int) Option {
	return func(o *Optimizer) { o.epochs = n }
}

// WithBatchSize sets the number of training items per gradient step.
func WithBatchSize(n int) Option {
	return func(o *Optimizer) { o.batchSize = n }
}

// WithLearningRate sets the peak learning rate of the cosine schedule.
func WithLearningRate(lr float64) Option {
	return func(o *Optimizer) { o.learningRate = lr }
}

// WithSeed sets the shuffle seed. Equal seeds give identical runs.
func WithSeed(seed int64) Option {
	return func(o *Optimizer) { o.seed = seed }
}

// WithMaxSeqLen truncates every history before building training items.
// Zero disables truncation.
func WithMaxSeqLen(n int) Option {
	return func(o *Optimizer) { o.maxSeqLen = n }
}

// WithTolerance sets the minimum epoch loss improvement below which the
// run is considered converged.
func WithTolerance(tol float64) Option {
	return func(o *Optimizer) { o.tolerance = tol }
}

// WithParallelism caps the goroutines used for gradient accumulation.
func WithParallelism(n int) Option {
	return func(o *Optimizer) { o.parallelism = n }
}

// WithShortTerm selects the same-day stability variant. When disabled
// w17..w19 are not trained.
func WithShortTerm(enabled bool) Option {
	return func(o *Optimizer) { o.shortTerm = enabled }
}

// WithInitialParameters starts from v instead of the defaults.
func WithInitialParameters(v params.Vector) Option {
	return func(o *Optimizer) { o.initial = v.Clone() }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Optimizer) {
		if l != nil {
			o.log = l
		}
	}
}

// New creates an Optimizer and validates its configuration.
func New(opts ...Option) (*Optimizer, error) {
	o := &Optimizer{
		epochs:       DefaultEpochs,
		batchSize:    DefaultBatchSize,
		learningRate: DefaultLearningRate,
		seed:         DefaultSeed,
		maxSeqLen:    DefaultMaxSeqLen,
		tolerance:    DefaultTolerance,
		parallelism:  runtime.GOMAXPROCS(0),
		shortTerm:    true,
		log:          logger.GetOrNop().Named("optimizer"),
		project:      params.Project,
	}
	for _, opt := range opts {
		opt(o)
	}

	switch {
	case o.epochs <= 0:
		return nil, fmt.Errorf("%w: epochs %d", ErrInvalidConfig, o.epochs)
	case o.batchSize <= 0:
		return nil, fmt.Errorf("%w: batch size %d", ErrInvalidConfig, o.batchSize)
	case !(o.learningRate > 0) || math.IsInf(o.learningRate, 0):
		return nil, fmt.Errorf("%w: learning rate %v", ErrInvalidConfig, o.learningRate)
	case o.maxSeqLen < 0:
		return nil, fmt.Errorf("%w: max sequence length %d", ErrInvalidConfig, o.maxSeqLen)
	case o.tolerance < 0 || math.IsNaN(o.tolerance):
		return nil, fmt.Errorf("%w: tolerance %v", ErrInvalidConfig, o.tolerance)
	case o.parallelism <= 0:
		return nil, fmt.Errorf("%w: parallelism %d", ErrInvalidConfig, o.parallelism)
	}
	if o.initial != nil {
		v, err := params.Normalize(o.initial)
		if err != nil {
			return nil, err
		}
		o.initial = v
	}
	return o, nil
}

func (o *Optimizer) frozen() [params.Len]bool {
	var f [params.Len]bool
	f[20] = true
	if !o.shortTerm {
		f[17], f[18], f[19] = true, true, true
	}
	return f
}

// Optimize fits parameters to histories. Runs end Converged when an epoch
// improves the training loss by less than the tolerance and
// BudgetExhausted after the last epoch; both return the best vector seen.
// On failure the returned Result has State Failed and no parameters.
func (o *Optimizer) Optimize(ctx context.Context, histories []model.History) (Result, error) {
	start := time.Now()
	res, err := o.run(ctx, histories)
	if err != nil {
		res = Result{State: Failed, Items: res.Items, Iterations: res.Iterations}
		o.log.Warn(ctx, "optimization failed",
			logger.Int("items", res.Items),
			logger.Int("iterations", res.Iterations),
			logger.Error(err))
	} else {
		metrics.UpdateOptimizerFinalLoss(res.Loss)
		o.log.Info(ctx, "optimization finished",
			logger.String("state", res.State.String()),
			logger.Int("epochs", res.Epochs),
			logger.Int("iterations", res.Iterations),
			logger.Float64("initial_loss", res.InitialLoss),
			logger.Float64("loss", res.Loss),
			logger.Duration("elapsed", time.Since(start)))
	}
	metrics.UpdateOptimizerItems(res.Items)
	metrics.RecordOptimizationRun(res.State.String(), res.Iterations, float64(time.Since(start).Milliseconds()))
	return res, err
}

func (o *Optimizer) run(ctx context.Context, histories []model.History) (Result, error) {
	res := Result{State: Initialized}

	items := dataset.Items(histories, o.maxSeqLen)
	res.Items = len(items)
	if len(items) == 0 {
		return res, fmt.Errorf("optimize: %d histories yield no item with elapsed time: %w",
			len(histories), model.ErrNoTrainableData)
	}

	t := &trainer{shortTerm: o.shortTerm, parallelism: o.parallelism, frozen: o.frozen()}
	w := params.Default()
	if o.initial != nil {
		w = o.initial.Clone()
	}
	o.project(w)

	initialLoss, err := t.loss(ctx, w, items)
	if err != nil {
		return res, fmt.Errorf("optimize: initial loss: %w", err)
	}
	res.InitialLoss = initialLoss

	batch := min(o.batchSize, len(items))
	steps := (len(items) + batch - 1) / batch
	adam := NewAdam(params.Len, o.learningRate)
	schedule := NewCosineAnnealing(o.learningRate, steps*o.epochs)
	rng := rand.New(rand.NewSource(o.seed)) //nolint:gosec // deterministic shuffle, not security sensitive

	o.log.Info(ctx, "optimization started",
		logger.Int("items", len(items)),
		logger.Int("batch_size", batch),
		logger.Int("epochs", o.epochs),
		logger.Int("iteration_budget", steps*o.epochs),
		logger.Bool("short_term", o.shortTerm),
		logger.Float64("initial_loss", initialLoss))

	best := w.Clone()
	bestLoss := initialLoss
	prevLoss := initialLoss
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	scratch := make([]model.TrainingItem, 0, batch)

	res.State = Iterating
	for epoch := 1; epoch <= o.epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		for lo := 0; lo < len(order); lo += batch {
			if err := ctx.Err(); err != nil {
				return res, fmt.Errorf("optimize: epoch %d: %w", epoch, err)
			}
			scratch = scratch[:0]
			for _, idx := range order[lo:min(lo+batch, len(order))] {
				scratch = append(scratch, items[idx])
			}

			grad, err := t.gradient(ctx, w, scratch)
			if err != nil {
				return res, fmt.Errorf("optimize: epoch %d step %d: %w", epoch, res.Iterations+1, err)
			}
			adam.SetLR(schedule.LR())
			adam.Update(w, grad)
			o.project(w)
			schedule.Step()
			res.Iterations++
		}

		epochLoss, err := t.loss(ctx, w, items)
		if err != nil {
			return res, fmt.Errorf("optimize: epoch %d loss: %w", epoch, err)
		}
		res.Epochs = epoch
		o.log.Debug(ctx, "epoch finished",
			logger.Int("epoch", epoch),
			logger.Float64("loss", epochLoss),
			logger.Float64("learning_rate", schedule.LR()))

		if epochLoss < bestLoss {
			bestLoss = epochLoss
			copy(best, w)
		}
		if prevLoss-epochLoss < o.tolerance {
			res.State = Converged
			break
		}
		prevLoss = epochLoss
	}
	if res.State == Iterating {
		res.State = BudgetExhausted
	}

	res.Parameters = best
	res.Loss = bestLoss
	return res, nil
}

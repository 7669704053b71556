package optimizer

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/okian/fsrs/internal/domain/evaluation"
	"github.com/okian/fsrs/internal/domain/memory"
	"github.com/okian/fsrs/internal/domain/model"
	"github.com/okian/fsrs/internal/domain/params"
)

// gradEps is the central difference step.
const gradEps = 1e-5

// shardSize fixes how items are partitioned for parallel accumulation.
// Partials are reduced in shard order, so the result does not depend on
// how many goroutines ran.
const shardSize = 64

// trainer evaluates loss and gradients over training items.
type trainer struct {
	shortTerm   bool
	parallelism int
	frozen      [params.Len]bool
}

func (t *trainer) model(w params.Vector) *memory.Model {
	return memory.FromVector(w, memory.WithShortTerm(t.shortTerm))
}

func shards(n int) [][2]int {
	out := make([][2]int, 0, n/shardSize+1)
	for lo := 0; lo < n; lo += shardSize {
		out = append(out, [2]int{lo, min(lo+shardSize, n)})
	}
	return out
}

func (t *trainer) group(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.parallelism)
	return g, gctx
}

// loss is the mean log-loss of w over items.
func (t *trainer) loss(ctx context.Context, w params.Vector, items []model.TrainingItem) (float64, error) {
	parts := shards(len(items))
	accs := make([]evaluation.Accumulator, len(parts))
	m := t.model(w)

	g, gctx := t.group(ctx)
	for s, p := range parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for _, it := range items[p[0]:p[1]] {
				pred, err := m.PredictLast(it.Reviews)
				if err != nil {
					return err
				}
				accs[s].Add(pred, it.Label())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total evaluation.Accumulator
	for i := range accs {
		total.Merge(&accs[i])
	}
	res, err := total.Metrics()
	if err != nil {
		return 0, err
	}
	return res.LogLoss, nil
}

// gradient estimates d(mean loss)/dw over batch by central differences.
// Frozen entries get a zero gradient.
func (t *trainer) gradient(ctx context.Context, w params.Vector, batch []model.TrainingItem) ([]float64, error) {
	parts := shards(len(batch))
	partial := make([][params.Len]float64, len(parts))

	g, gctx := t.group(ctx)
	for s, p := range parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			chunk := batch[p[0]:p[1]]
			shifted := w.Clone()
			for i := range shifted {
				if t.frozen[i] {
					continue
				}
				orig := shifted[i]
				shifted[i] = orig + gradEps
				plus := t.sumLoss(shifted, chunk)
				shifted[i] = orig - gradEps
				minus := t.sumLoss(shifted, chunk)
				shifted[i] = orig
				partial[s][i] = plus - minus
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	grad := make([]float64, params.Len)
	scale := 2 * gradEps * float64(len(batch))
	for i := range grad {
		var sum float64
		for s := range partial {
			sum += partial[s][i]
		}
		grad[i] = sum / scale
		if math.IsNaN(grad[i]) || math.IsInf(grad[i], 0) {
			return nil, fmt.Errorf("%w: gradient of w[%d] is %v", model.ErrNumericalDivergence, i, grad[i])
		}
	}
	return grad, nil
}

// sumLoss is the summed log-loss over items. Items are never empty here,
// so PredictLast cannot fail.
func (t *trainer) sumLoss(w params.Vector, items []model.TrainingItem) float64 {
	m := t.model(w)
	var sum float64
	for _, it := range items {
		p, _ := m.PredictLast(it.Reviews)
		sum += evaluation.LogLoss(p, it.Label())
	}
	return sum
}

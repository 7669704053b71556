// Package simulate generates synthetic review corpora and drives a running
// scheduling service with them.
package simulate

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/google/uuid"

	"github.com/okian/fsrs/internal/domain/dataset"
	"github.com/okian/fsrs/internal/domain/memory"
	"github.com/okian/fsrs/internal/domain/model"
	"github.com/okian/fsrs/internal/domain/params"
	"github.com/okian/fsrs/internal/domain/scheduler"
	"github.com/okian/fsrs/pkg/logger"
)

// Generation defaults.
const (
	DefaultCards          = 200
	DefaultReviewsPerCard = 8
	DefaultSeed           = 7
	DefaultRetention      = 0.9
	DefaultSameDayRate    = 0.3
	jitterMin             = 0.8
	jitterRange           = 0.4
	maxElapsedDays        = 36500
)

// Rating distributions. First reviews lean towards Good; successful
// later reviews split over Hard/Good/Easy.
var (
	firstRatingWeights  = [4]float64{0.2, 0.15, 0.5, 0.15}
	recallRatingWeights = [3]float64{0.15, 0.7, 0.15}
)

// CorpusConfig controls Generate.
type CorpusConfig struct {
	Cards          int           // number of cards
	ReviewsPerCard int           // reviews per card including the first
	Seed           int64         // equal seeds give identical corpora
	Retention      float64       // desired retention used to schedule reviews
	SameDayRate    float64       // chance of a same-day relearning step after a lapse
	Parameters     params.Vector // ground truth, defaults when nil
}

// DefaultCorpusConfig returns the defaults used by tests and the CLI.
func DefaultCorpusConfig() CorpusConfig {
	return CorpusConfig{
		Cards:          DefaultCards,
		ReviewsPerCard: DefaultReviewsPerCard,
		Seed:           DefaultSeed,
		Retention:      DefaultRetention,
		SameDayRate:    DefaultSameDayRate,
	}
}

// Card is one simulated card.
type Card struct {
	ID      string        `json:"id"`
	Reviews model.History `json:"reviews"`
}

// Corpus is a generated set of cards.
type Corpus struct {
	Cards []Card `json:"cards"`
}

// Histories returns every card's review history.
func (c Corpus) Histories() []model.History {
	out := make([]model.History, len(c.Cards))
	for i, card := range c.Cards {
		out[i] = card.Reviews
	}
	return out
}

// Flatten returns the corpus as parallel sequences with 1-based card
// start indices.
func (c Corpus) Flatten() (ratings, deltaTs, cardStarts []int) {
	return dataset.Flatten(c.Histories())
}

// Reviews returns the total number of reviews.
func (c Corpus) Reviews() int {
	return dataset.CountReviews(c.Histories())
}

// Generate simulates learners whose memory follows cfg.Parameters. Each
// card is reviewed when its scheduled interval (with jitter) elapses and
// the outcome is drawn from the model's recall probability.
func Generate(ctx context.Context, cfg CorpusConfig) (Corpus, error) {
	if cfg.Cards <= 0 || cfg.ReviewsPerCard <= 0 {
		return Corpus{}, fmt.Errorf("%w: cards %d, reviews per card %d", ErrInvalidConfig, cfg.Cards, cfg.ReviewsPerCard)
	}
	if err := scheduler.ValidateRetention(cfg.Retention); err != nil {
		return Corpus{}, err
	}
	if cfg.SameDayRate < 0 || cfg.SameDayRate > 1 {
		return Corpus{}, fmt.Errorf("%w: same-day rate %v", ErrInvalidConfig, cfg.SameDayRate)
	}
	m, err := memory.New(cfg.Parameters)
	if err != nil {
		return Corpus{}, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // reproducible corpora
	corpus := Corpus{Cards: make([]Card, 0, cfg.Cards)}
	for i := 0; i < cfg.Cards; i++ {
		if err := ctx.Err(); err != nil {
			return Corpus{}, fmt.Errorf("generate card %d: %w", i, err)
		}
		id, err := uuid.NewRandomFromReader(rng)
		if err != nil {
			return Corpus{}, fmt.Errorf("generate card id: %w", err)
		}
		corpus.Cards = append(corpus.Cards, Card{
			ID:      id.String(),
			Reviews: simulateCard(m, rng, cfg),
		})
	}

	logger.GetOrNop().Debug(ctx, "corpus generated",
		logger.Int("cards", len(corpus.Cards)),
		logger.Int("reviews", corpus.Reviews()))
	return corpus, nil
}

func simulateCard(m *memory.Model, rng *rand.Rand, cfg CorpusConfig) model.History {
	h := make(model.History, 0, cfg.ReviewsPerCard)
	first := model.Rating(pick(rng, firstRatingWeights[:]) + 1)
	h = append(h, model.Review{Rating: first})
	state := m.InitialState(first)

	for len(h) < cfg.ReviewsPerCard {
		ivl, _ := scheduler.NextInterval(state.Stability, cfg.Retention)
		elapsed := math.Max(1, math.Round(ivl*(jitterMin+rng.Float64()*jitterRange)))
		elapsed = math.Min(elapsed, maxElapsedDays)

		rating := model.Again
		if rng.Float64() < memory.Retrievability(state.Stability, elapsed) {
			rating = model.Rating(pick(rng, recallRatingWeights[:]) + 2)
		}
		h = append(h, model.Review{Rating: rating, ElapsedDays: uint32(elapsed)})
		state = m.NextState(&state, elapsed, rating)

		if rating == model.Again && len(h) < cfg.ReviewsPerCard && rng.Float64() < cfg.SameDayRate {
			h = append(h, model.Review{Rating: model.Good})
			state = m.NextState(&state, 0, model.Good)
		}
	}
	return h
}

// pick draws an index from weights, which must sum to 1.
func pick(rng *rand.Rand, weights []float64) int {
	x := rng.Float64()
	for i, w := range weights {
		if x < w {
			return i
		}
		x -= w
	}
	return len(weights) - 1
}

// Package dataset converts flat review logs into per-card histories and
// labelled training items.
package dataset

import (
	"fmt"
	"math"

	"github.com/okian/fsrs/internal/domain/model"
)

// Split cuts parallel rating/elapsed sequences into one history per card.
// cardStarts holds the 1-based index of each card's first review. Windows
// that are empty or fall outside the sequences are skipped; ratings are
// clamped into range.
func Split(ratings, deltaTs, cardStarts []int) ([]model.History, error) {
	if len(ratings) != len(deltaTs) {
		return nil, fmt.Errorf("%w: %d ratings but %d delta_ts", model.ErrInvalidInput, len(ratings), len(deltaTs))
	}
	for i, dt := range deltaTs {
		if dt < 0 {
			return nil, fmt.Errorf("%w: delta_ts[%d] = %d is negative", model.ErrInvalidInput, i, dt)
		}
		if uint64(dt) > math.MaxUint32 {
			return nil, fmt.Errorf("%w: delta_ts[%d] = %d exceeds %d days", model.ErrInvalidInput, i, dt, uint32(math.MaxUint32))
		}
	}

	n := len(ratings)
	bounds := make([]int, 0, len(cardStarts)+1)
	for _, s := range cardStarts {
		bounds = append(bounds, s-1)
	}
	bounds = append(bounds, n)

	histories := make([]model.History, 0, len(cardStarts))
	for i := 0; i+1 < len(bounds); i++ {
		start, end := bounds[i], bounds[i+1]
		if start < 0 || start >= end || end > n {
			continue
		}
		h := make(model.History, 0, end-start)
		for j := start; j < end; j++ {
			h = append(h, model.Review{
				Rating:      model.RatingFromInt(ratings[j]),
				ElapsedDays: uint32(deltaTs[j]),
			})
		}
		histories = append(histories, h)
	}
	return histories, nil
}

// Items expands every history into its prefixes of length two or more,
// skipping prefixes in which no review carries elapsed time. When maxLen
// is positive, histories are truncated to it first.
func Items(histories []model.History, maxLen int) []model.TrainingItem {
	var items []model.TrainingItem
	for _, h := range histories {
		if maxLen > 0 && len(h) > maxLen {
			h = h[:maxLen]
		}
		for i := 2; i <= len(h); i++ {
			prefix := h[:i:i]
			if !prefix.HasInterval() {
				continue
			}
			items = append(items, model.TrainingItem{Reviews: prefix})
		}
	}
	return items
}

// Flatten is the inverse of Split: it returns parallel sequences and the
// 1-based start index of each history.
func Flatten(histories []model.History) (ratings, deltaTs, cardStarts []int) {
	for _, h := range histories {
		if len(h) == 0 {
			continue
		}
		cardStarts = append(cardStarts, len(ratings)+1)
		for _, r := range h {
			ratings = append(ratings, int(r.Rating))
			deltaTs = append(deltaTs, int(r.ElapsedDays))
		}
	}
	return ratings, deltaTs, cardStarts
}

// CountReviews returns the number of reviews across histories.
func CountReviews(histories []model.History) int {
	n := 0
	for _, h := range histories {
		n += len(h)
	}
	return n
}

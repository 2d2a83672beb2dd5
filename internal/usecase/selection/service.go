// Package selection picks a diverse, bounded subset of a candidate pool via
// greedy facility-location maximization: each pick is the item that most
// increases the pool-wide sum of similarity to the nearest selected
// representative. The greedy approximation carries the usual (1-1/e) bound;
// it is a property of the algorithm, not something callers should rely on
// exactly.
package selection

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/curatehq/labelsmith/internal/domain"
)

// Service selects representative subsets from item pools.
type Service struct {
	logger *zap.Logger
}

// New creates a selection service.
func New(logger *zap.Logger) *Service {
	return &Service{logger: logger}
}

// Select returns exactly min(k, pool size) item IDs in pick order.
// Ties break toward the lowest original pool index.
func (s *Service) Select(ctx context.Context, pool domain.Pool, k int) (domain.Selection, error) {
	if k <= 0 {
		return domain.Selection{}, fmt.Errorf("budget must be positive, got %d: %w", k, domain.ErrSelection)
	}

	n := pool.Len()
	if n == 0 {
		return domain.Selection{}, nil
	}
	if k > n {
		k = n
	}

	sim, err := similarityMatrix(pool)
	if err != nil {
		return domain.Selection{}, err
	}

	best := make([]float64, n) // max similarity of each pool item to the selected set
	chosen := make([]bool, n)
	ids := make([]string, 0, k)

	for len(ids) < k {
		if err := ctx.Err(); err != nil {
			return domain.Selection{}, fmt.Errorf("selection canceled: %w", err)
		}

		pick := -1
		pickGain := -1.0
		for i := 0; i < n; i++ {
			if chosen[i] {
				continue
			}
			var gain float64
			for j := 0; j < n; j++ {
				if d := sim[i][j] - best[j]; d > 0 {
					gain += d
				}
			}
			if gain > pickGain {
				pickGain = gain
				pick = i
			}
		}

		chosen[pick] = true
		ids = append(ids, pool.At(pick).ID)
		for j := 0; j < n; j++ {
			if sim[pick][j] > best[j] {
				best[j] = sim[pick][j]
			}
		}
	}

	s.logger.Info("Selected representatives",
		zap.Int("budget", k),
		zap.Int("pool", n),
	)
	return domain.Selection{IDs: ids}, nil
}

// Coverage returns the facility-location objective of a selection over the
// pool: the sum, over all pool items, of the maximum similarity to any
// selected item.
func (s *Service) Coverage(pool domain.Pool, sel domain.Selection) (float64, error) {
	sim, err := similarityMatrix(pool)
	if err != nil {
		return 0, err
	}

	indexOf := make(map[string]int, pool.Len())
	for i := 0; i < pool.Len(); i++ {
		indexOf[pool.At(i).ID] = i
	}

	var total float64
	for j := 0; j < pool.Len(); j++ {
		bestSim := 0.0
		for _, id := range sel.IDs {
			i, ok := indexOf[id]
			if !ok {
				return 0, fmt.Errorf("selected id %q not in pool: %w", id, domain.ErrNotFound)
			}
			if sim[i][j] > bestSim {
				bestSim = sim[i][j]
			}
		}
		total += bestSim
	}
	return total, nil
}

// similarityMatrix builds non-negative pairwise similarities from embedding
// vectors when present, otherwise from reduced coordinates.
func similarityMatrix(pool domain.Pool) ([][]float64, error) {
	n := pool.Len()
	useVectors := true
	for i := 0; i < n; i++ {
		if pool.At(i).Vector == nil {
			useVectors = false
			break
		}
	}
	if !useVectors {
		for i := 0; i < n; i++ {
			if pool.At(i).Coords == nil {
				return nil, fmt.Errorf("item %q has neither vector nor coordinates: %w",
					pool.At(i).ID, domain.ErrSelection)
			}
		}
	}

	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
		sim[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var v float64
			if useVectors {
				// Shift cosine into [0,1] so the objective stays monotone.
				v = (1 + domain.Cosine(pool.At(i).Vector, pool.At(j).Vector)) / 2
			} else {
				v = 1 / (1 + domain.EuclideanF64(pool.At(i).Coords, pool.At(j).Coords))
			}
			sim[i][j] = v
			sim[j][i] = v
		}
	}
	return sim, nil
}

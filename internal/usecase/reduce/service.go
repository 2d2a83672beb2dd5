// Package reduce projects high-dimensional embeddings onto 1-D or 2-D
// coordinates. The reference strategy is a seeded spectral projection of the
// centered cosine-similarity matrix; any external reducer can stand in behind
// the same contract.
package reduce

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/curatehq/labelsmith/internal/domain"
)

// Mode biases the projection toward global or local structure.
type Mode string

const (
	// ModeGlobal favors global structure, suited to 1-D sort orderings.
	ModeGlobal Mode = "global"
	// ModeLocal favors local neighborhoods, suited to 2-D scatter plots.
	ModeLocal Mode = "local"
)

const powerIterations = 100

// Config holds projection settings.
type Config struct {
	Dims      int // 1 or 2
	Seed      int64
	Neighbors int
	Mode      Mode
}

// Service computes reduced coordinates for a set of embedding vectors.
type Service struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a reduction service.
func New(cfg Config, logger *zap.Logger) *Service {
	if cfg.Neighbors <= 0 {
		cfg.Neighbors = 15
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeLocal
	}
	return &Service{cfg: cfg, logger: logger}
}

// Reduce returns one coordinate row per input vector, in input order.
// Deterministic for a fixed seed. Fails when the sample is smaller than the
// neighborhood size the mode requires.
func (s *Service) Reduce(ctx context.Context, vectors [][]float32) ([][]float64, error) {
	n := len(vectors)
	if s.cfg.Dims != 1 && s.cfg.Dims != 2 {
		return nil, fmt.Errorf("target dims must be 1 or 2, got %d: %w", s.cfg.Dims, domain.ErrReduction)
	}
	if n < s.cfg.Neighbors+1 {
		return nil, fmt.Errorf("need at least %d vectors for neighborhood size %d, got %d: %w",
			s.cfg.Neighbors+1, s.cfg.Neighbors, n, domain.ErrReduction)
	}

	sim := similarityMatrix(vectors)
	if s.cfg.Mode == ModeLocal {
		sparsifyToNeighbors(sim, s.cfg.Neighbors)
	}
	doubleCenter(sim)

	coords := make([][]float64, n)
	for i := range coords {
		coords[i] = make([]float64, s.cfg.Dims)
	}

	prev := make([][]float64, 0, s.cfg.Dims)
	for comp := 0; comp < s.cfg.Dims; comp++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("reduce canceled: %w", err)
		}
		vec, eigval := powerIterate(sim, prev, s.cfg.Seed+int64(comp))
		scale := math.Sqrt(math.Max(eigval, 0))
		for i := range vec {
			coords[i][comp] = vec[i] * scale
		}
		prev = append(prev, vec)
	}

	s.logger.Debug("Reduced vectors",
		zap.Int("count", n),
		zap.Int("dims", s.cfg.Dims),
		zap.String("mode", string(s.cfg.Mode)),
	)
	return coords, nil
}

// similarityMatrix builds the pairwise cosine similarity matrix.
func similarityMatrix(vectors [][]float32) [][]float64 {
	n := len(vectors)
	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
		sim[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			c := domain.Cosine(vectors[i], vectors[j])
			sim[i][j] = c
			sim[j][i] = c
		}
	}
	return sim
}

// sparsifyToNeighbors keeps only the k largest entries per row (plus the
// diagonal) and symmetrizes the result, biasing the projection toward local
// neighborhoods.
func sparsifyToNeighbors(sim [][]float64, k int) {
	n := len(sim)
	kept := make([][]float64, n)
	for i := range kept {
		kept[i] = make([]float64, n)
	}

	idx := make([]int, n)
	for i := 0; i < n; i++ {
		for j := range idx {
			idx[j] = j
		}
		row := sim[i]
		sort.SliceStable(idx, func(a, b int) bool { return row[idx[a]] > row[idx[b]] })

		kept[i][i] = row[i]
		count := 0
		for _, j := range idx {
			if j == i {
				continue
			}
			kept[i][j] = row[j]
			count++
			if count >= k {
				break
			}
		}
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sim[i][j] = (kept[i][j] + kept[j][i]) / 2
		}
	}
}

// doubleCenter converts the similarity matrix into its centered Gram form.
func doubleCenter(m [][]float64) {
	n := len(m)
	rowMean := make([]float64, n)
	var total float64
	for i := range m {
		for j := range m[i] {
			rowMean[i] += m[i][j]
		}
		total += rowMean[i]
		rowMean[i] /= float64(n)
	}
	total /= float64(n) * float64(n)

	for i := range m {
		for j := range m[i] {
			m[i][j] = m[i][j] - rowMean[i] - rowMean[j] + total
		}
	}
}

// powerIterate finds the dominant eigenvector of m orthogonal to prev,
// starting from a seeded random vector. Returns the unit eigenvector and its
// eigenvalue estimate.
func powerIterate(m [][]float64, prev [][]float64, seed int64) ([]float64, float64) {
	n := len(m)
	rng := rand.New(rand.NewSource(seed))

	v := make([]float64, n)
	for i := range v {
		v[i] = rng.Float64() - 0.5
	}
	normalize(v)

	next := make([]float64, n)
	for iter := 0; iter < powerIterations; iter++ {
		matVec(m, v, next)
		for _, p := range prev {
			deflate(next, p)
		}
		if norm(next) == 0 {
			break
		}
		normalize(next)
		v, next = next, v
	}

	matVec(m, v, next)
	var eigval float64
	for i := range v {
		eigval += v[i] * next[i]
	}
	return v, eigval
}

func matVec(m [][]float64, v, out []float64) {
	for i := range m {
		var sum float64
		for j := range m[i] {
			sum += m[i][j] * v[j]
		}
		out[i] = sum
	}
}

func deflate(v, p []float64) {
	var dot float64
	for i := range v {
		dot += v[i] * p[i]
	}
	for i := range v {
		v[i] -= dot * p[i]
	}
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func normalize(v []float64) {
	n := norm(v)
	if n == 0 {
		return
	}
	for i := range v {
		v[i] /= n
	}
}

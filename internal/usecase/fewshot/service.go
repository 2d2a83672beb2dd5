// Package fewshot trains a lightweight classifier from a handful of labeled
// examples. A diagonal metric head reweights embedding dimensions on sampled
// pairs, then a nearest-centroid softmax scores labels in the learned space.
package fewshot

import (
	"fmt"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/curatehq/labelsmith/internal/domain"
)

const (
	// DefaultPairs is the number of pairs sampled per training epoch.
	DefaultPairs = 200
	// DefaultEpochs is the number of passes over sampled pairs.
	DefaultEpochs = 10
	// DefaultLearningRate steps the metric head during pair training.
	DefaultLearningRate = 0.05
	// DefaultTemperature sharpens the softmax over centroid similarities.
	DefaultTemperature = 10
)

// Config holds few-shot training settings.
type Config struct {
	Pairs        int
	Epochs       int
	LearningRate float64
	Seed         int64
	// LinearProbe skips metric learning and keeps unit dimension weights.
	LinearProbe bool
	Temperature float64
}

// Service trains few-shot classification models.
type Service struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a few-shot trainer.
func New(cfg Config, logger *zap.Logger) *Service {
	if cfg.Pairs <= 0 {
		cfg.Pairs = DefaultPairs
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = DefaultEpochs
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = DefaultLearningRate
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	return &Service{cfg: cfg, logger: logger}
}

// Train fits a model on the labeled items. Items without a label or vector
// are rejected, as are training sets with fewer than two distinct classes.
func (s *Service) Train(items []domain.Item) (*Model, error) {
	byClass := make(map[string][][]float32)
	dims := 0
	for _, it := range items {
		if !it.HasLabel() {
			return nil, fmt.Errorf("item %q has no label: %w", it.ID, domain.ErrInsufficientData)
		}
		if len(it.Vector) == 0 {
			return nil, fmt.Errorf("item %q has no embedding: %w", it.ID, domain.ErrEmbedding)
		}
		if dims == 0 {
			dims = len(it.Vector)
		} else if len(it.Vector) != dims {
			return nil, fmt.Errorf("item %q has %d dims, expected %d: %w",
				it.ID, len(it.Vector), dims, domain.ErrVectorDimMismatch)
		}
		byClass[it.Label] = append(byClass[it.Label], domain.NormalizedCopy(it.Vector))
	}
	if len(byClass) < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d: %w",
			len(byClass), domain.ErrInsufficientData)
	}

	classes := make([]string, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	weights := make([]float64, dims)
	for i := range weights {
		weights[i] = 1
	}
	if !s.cfg.LinearProbe {
		s.fitMetric(weights, classes, byClass)
	}

	centroids := make(map[string][]float32, len(classes))
	for _, c := range classes {
		centroids[c] = domain.NormalizedCopy(meanVector(byClass[c]))
	}

	if s.logger != nil {
		s.logger.Info("Trained few-shot model",
			zap.Int("classes", len(classes)),
			zap.Int("examples", len(items)),
			zap.Bool("linear_probe", s.cfg.LinearProbe),
		)
	}
	return &Model{
		classes:     classes,
		centroids:   centroids,
		weights:     weights,
		temperature: s.cfg.Temperature,
	}, nil
}

// fitMetric runs SGD on sampled pairs: same-class pairs are pushed toward
// weighted similarity 1, cross-class pairs toward 0. Weights stay nonnegative.
func (s *Service) fitMetric(weights []float64, classes []string, byClass map[string][][]float32) {
	type example struct {
		class int
		vec   []float32
	}
	var pool []example
	for ci, c := range classes {
		for _, v := range byClass[c] {
			pool = append(pool, example{class: ci, vec: v})
		}
	}

	rng := rand.New(rand.NewSource(s.cfg.Seed))
	for epoch := 0; epoch < s.cfg.Epochs; epoch++ {
		for p := 0; p < s.cfg.Pairs; p++ {
			a := pool[rng.Intn(len(pool))]
			b := pool[rng.Intn(len(pool))]

			target := 0.0
			if a.class == b.class {
				target = 1.0
			}

			var sim float64
			for k := range weights {
				sim += weights[k] * float64(a.vec[k]) * float64(b.vec[k])
			}

			grad := 2 * (sim - target)
			for k := range weights {
				weights[k] -= s.cfg.LearningRate * grad * float64(a.vec[k]) * float64(b.vec[k])
				if weights[k] < 0 {
					weights[k] = 0
				}
			}
		}
	}
}

func meanVector(vecs [][]float32) []float32 {
	out := make([]float32, len(vecs[0]))
	for _, v := range vecs {
		for i, x := range v {
			out[i] += x
		}
	}
	inv := 1 / float32(len(vecs))
	for i := range out {
		out[i] *= inv
	}
	return out
}

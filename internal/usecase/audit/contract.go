package audit

import (
	"github.com/curatehq/labelsmith/internal/domain"
)

// Classifier scores class probabilities for a single embedding.
type Classifier interface {
	Probabilities(vec []float32) map[string]float64
}

// Factory trains a fresh classifier on the given labeled items. The auditor
// calls it once per fold.
type Factory func(train []domain.Item) (Classifier, error)

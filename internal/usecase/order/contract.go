package order

import (
	"context"

	"github.com/curatehq/labelsmith/internal/domain"
)

// LabelEmbedder vectorizes label names for the similarity strategy.
type LabelEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Predictor scores labels with a trained classifier for the model strategy.
type Predictor interface {
	Probabilities(vec []float32) map[string]float64
}

// Suggester proposes a single label from an external generative model.
type Suggester interface {
	SuggestLabel(ctx context.Context, text string, vocab []string) (string, error)
}

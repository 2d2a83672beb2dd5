package embed

import (
	"context"

	"github.com/curatehq/labelsmith/internal/domain"
)

// Embedder vectorizes batches of texts.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

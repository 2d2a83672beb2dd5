package pipeline

import (
	"context"

	"github.com/curatehq/labelsmith/internal/domain"
)

// Embedder attaches embedding vectors to items.
type Embedder interface {
	EmbedItems(ctx context.Context, items []domain.Item) ([]domain.Item, error)
}

// Reducer projects embedding vectors to low-dimensional coordinates.
type Reducer interface {
	Reduce(ctx context.Context, vectors [][]float32) ([][]float64, error)
}

// Selector picks a budget-bounded subset of the pool for annotation.
type Selector interface {
	Select(ctx context.Context, pool domain.Pool, k int) (domain.Selection, error)
}

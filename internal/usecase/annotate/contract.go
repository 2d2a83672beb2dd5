package annotate

import (
	"context"

	"github.com/curatehq/labelsmith/internal/domain"
)

// Orderer ranks label candidates for the primary queue and supplies the full
// vocabulary for the secondary queue.
type Orderer interface {
	Order(ctx context.Context, item domain.Item, vocab []string) (domain.Ordering, error)
	FullVocabulary(itemID string, vocab []string) domain.Ordering
}

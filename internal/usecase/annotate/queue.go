// Package annotate runs the human annotation queue: each item is handed to a
// configurable number of annotators with a ranked top-M candidate list, and
// the "none of these" escape reroutes it through the full-vocabulary
// secondary queue.
package annotate

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/curatehq/labelsmith/internal/domain"
	"github.com/curatehq/labelsmith/internal/metrics"
)

// DefaultAnnotatorsPerItem is how many decisions each item collects.
const DefaultAnnotatorsPerItem = 5

// Config holds annotation queue settings.
type Config struct {
	AnnotatorsPerItem int
}

// Task is one unit of annotator work.
type Task struct {
	Item     domain.Item
	Ordering domain.Ordering
	// Secondary marks a full-vocabulary task after a "none of these" escape.
	Secondary bool
	SessionID string
}

// Queue tracks annotation progress over a selected item set. Safe for
// concurrent annotators.
type Queue struct {
	cfg     Config
	orderer Orderer
	vocab   []string
	logger  *zap.Logger

	mu        sync.Mutex
	items     []domain.Item
	byID      map[string]int
	decisions []domain.Decision
	decided   map[string]map[string]struct{}
	counts    map[string]int
	escaped   map[string]struct{}
}

// NewQueue creates a queue over the items picked for annotation.
func NewQueue(cfg Config, items []domain.Item, vocab []string, orderer Orderer, logger *zap.Logger) (*Queue, error) {
	if cfg.AnnotatorsPerItem <= 0 {
		cfg.AnnotatorsPerItem = DefaultAnnotatorsPerItem
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("label vocabulary is empty: %w", domain.ErrInvalidSchema)
	}

	byID := make(map[string]int, len(items))
	for i, it := range items {
		if _, ok := byID[it.ID]; ok {
			return nil, fmt.Errorf("duplicate item %q: %w", it.ID, domain.ErrAlreadyExists)
		}
		byID[it.ID] = i
	}

	return &Queue{
		cfg:     cfg,
		orderer: orderer,
		vocab:   vocab,
		logger:  logger,
		items:   items,
		byID:    byID,
		decided: make(map[string]map[string]struct{}),
		counts:  make(map[string]int),
		escaped: make(map[string]struct{}),
	}, nil
}

// Next returns the next task for the annotator: the first item that still
// needs decisions and that this annotator has not labeled yet. Escaped items
// come back with the full vocabulary. Returns ErrNotFound when the annotator
// has no work left.
func (q *Queue) Next(ctx context.Context, annotatorID string) (Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, it := range q.items {
		if q.counts[it.ID] >= q.cfg.AnnotatorsPerItem {
			continue
		}
		if _, done := q.decided[it.ID][annotatorID]; done {
			continue
		}

		task := Task{Item: it, SessionID: uuid.NewString()}
		if _, escaped := q.escaped[it.ID]; escaped {
			task.Ordering = q.orderer.FullVocabulary(it.ID, q.vocab)
			task.Secondary = true
			return task, nil
		}

		ordering, err := q.orderer.Order(ctx, it, q.vocab)
		if err != nil {
			return Task{}, fmt.Errorf("order candidates for %q: %w", it.ID, err)
		}
		task.Ordering = ordering
		return task, nil
	}
	return Task{}, fmt.Errorf("no pending items for annotator %q: %w", annotatorID, domain.ErrNotFound)
}

// Submit records one decision. Each annotator decides each item at most once.
// The "none of these" label reroutes the item to the secondary queue without
// consuming the annotator's vote.
func (q *Queue) Submit(d domain.Decision) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.byID[d.ItemID]; !ok {
		return fmt.Errorf("item %q: %w", d.ItemID, domain.ErrNotFound)
	}
	if _, done := q.decided[d.ItemID][d.AnnotatorID]; done {
		return fmt.Errorf("annotator %q already decided item %q: %w",
			d.AnnotatorID, d.ItemID, domain.ErrAlreadyExists)
	}

	if d.Label == domain.NoneOfThese {
		q.escaped[d.ItemID] = struct{}{}
		q.logger.Info("Item escaped to secondary queue",
			zap.String("item_id", d.ItemID),
			zap.String("annotator_id", d.AnnotatorID),
		)
		q.updateRatioLocked()
		return nil
	}

	if !q.inVocab(d.Label) {
		return fmt.Errorf("label %q is not in the vocabulary: %w", d.Label, domain.ErrInvalidSchema)
	}

	if q.decided[d.ItemID] == nil {
		q.decided[d.ItemID] = make(map[string]struct{})
	}
	q.decided[d.ItemID][d.AnnotatorID] = struct{}{}
	q.counts[d.ItemID]++
	q.decisions = append(q.decisions, d)
	q.updateRatioLocked()
	return nil
}

// Decisions returns all recorded decisions in submission order.
func (q *Queue) Decisions() []domain.Decision {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.Decision, len(q.decisions))
	copy(out, q.decisions)
	return out
}

// Done reports whether every item has collected its full decision count.
func (q *Queue) Done() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, it := range q.items {
		if q.counts[it.ID] < q.cfg.AnnotatorsPerItem {
			return false
		}
	}
	return true
}

// updateRatioLocked publishes the share of fully annotated items that never
// escaped the primary queue. Callers hold q.mu.
func (q *Queue) updateRatioLocked() {
	complete, primary := 0, 0
	for _, it := range q.items {
		if q.counts[it.ID] < q.cfg.AnnotatorsPerItem {
			continue
		}
		complete++
		if _, escaped := q.escaped[it.ID]; !escaped {
			primary++
		}
	}
	if complete > 0 {
		metrics.QueuePrimaryResolvedRatio.Set(float64(primary) / float64(complete))
	}
}

func (q *Queue) inVocab(label string) bool {
	for _, l := range q.vocab {
		if l == label {
			return true
		}
	}
	return false
}

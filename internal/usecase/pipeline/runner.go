// Package pipeline chains the batch stages that prepare a dataset for
// annotation: embed, reduce, select. Stages are independent capabilities; the
// runner only sequences them and records per-stage metrics.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/curatehq/labelsmith/internal/domain"
	"github.com/curatehq/labelsmith/internal/metrics"
)

// Config holds runner settings.
type Config struct {
	// Budget is the annotation budget K passed to the selector.
	Budget int
}

// Result carries the enriched items and the annotation pick.
type Result struct {
	// Items have vectors and 2-D coordinates attached, in input order.
	Items []domain.Item
	// Selection lists the item ids picked for annotation.
	Selection domain.Selection
}

// Runner sequences the batch pipeline stages.
type Runner struct {
	cfg      Config
	embedder Embedder
	reducer  Reducer
	selector Selector
	logger   *zap.Logger
}

// NewRunner creates a pipeline runner.
func NewRunner(cfg Config, embedder Embedder, reducer Reducer, selector Selector, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		embedder: embedder,
		reducer:  reducer,
		selector: selector,
		logger:   logger,
	}
}

// Run embeds the items, reduces their vectors to coordinates and selects the
// annotation subset. Any stage failure aborts the run.
func (r *Runner) Run(ctx context.Context, items []domain.Item) (Result, error) {
	var err error

	r.stage("embed", len(items), func() {
		items, err = r.embedder.EmbedItems(ctx, items)
	})
	if err != nil {
		return Result{}, fmt.Errorf("embed stage: %w", err)
	}

	vectors := make([][]float32, len(items))
	for i, it := range items {
		vectors[i] = it.Vector
	}

	var coords [][]float64
	r.stage("reduce", len(items), func() {
		coords, err = r.reducer.Reduce(ctx, vectors)
	})
	if err != nil {
		return Result{}, fmt.Errorf("reduce stage: %w", err)
	}
	for i := range items {
		items[i] = items[i].WithCoords(coords[i])
	}

	pool, err := domain.NewPool(items)
	if err != nil {
		return Result{}, fmt.Errorf("build candidate pool: %w", err)
	}

	var selection domain.Selection
	r.stage("select", len(items), func() {
		selection, err = r.selector.Select(ctx, pool, r.cfg.Budget)
	})
	if err != nil {
		return Result{}, fmt.Errorf("select stage: %w", err)
	}

	r.logger.Info("Pipeline run complete",
		zap.Int("items", len(items)),
		zap.Int("selected", len(selection.IDs)),
	)
	return Result{Items: items, Selection: selection}, nil
}

// stage runs fn and records its duration and item throughput.
func (r *Runner) stage(name string, n int, fn func()) {
	start := time.Now()
	fn()
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	metrics.StageItemsTotal.WithLabelValues(name).Add(float64(n))
}

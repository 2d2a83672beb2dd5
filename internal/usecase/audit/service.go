// Package audit flags likely mislabeled items with stratified cross-validated
// predictions: train on F-1 folds, score the held-out fold, and rank items by
// how strongly the model disagrees with their recorded label.
package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/curatehq/labelsmith/internal/domain"
)

const (
	// DefaultFolds is the cross-validation fold count.
	DefaultFolds = 5
	// DefaultWorkers bounds fold-parallel training.
	DefaultWorkers = 4
)

// Config holds auditor settings.
type Config struct {
	Folds   int
	Workers int
}

// ClassQuality summarizes one class over the cross-validated predictions.
type ClassQuality struct {
	Label      string
	MeanMargin float64
	Support    int
}

// Report is the outcome of a label audit.
type Report struct {
	// Health is out-of-fold accuracy in [0,1]; 1.0 means the cross-validated
	// predictions match every recorded label.
	Health float64
	// Classes ranks classes by mean confidence margin, best first.
	Classes []ClassQuality
	// Issues lists suspect items, most negative margin first.
	Issues []domain.LabelIssue
}

// Service runs stratified cross-validation audits.
type Service struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a label auditor.
func New(cfg Config, logger *zap.Logger) *Service {
	if cfg.Folds <= 0 {
		cfg.Folds = DefaultFolds
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Service{cfg: cfg, logger: logger}
}

// Audit cross-validates the labeled items with classifiers from factory.
// Folds run in parallel; any fold failure discards the whole run.
func (s *Service) Audit(ctx context.Context, items []domain.Item, factory Factory) (Report, error) {
	for _, it := range items {
		if !it.HasLabel() {
			return Report{}, fmt.Errorf("item %q has no label: %w", it.ID, domain.ErrInsufficientData)
		}
	}

	folds, err := stratifiedFolds(items, s.cfg.Folds)
	if err != nil {
		return Report{}, err
	}

	// One probability vector per item, written by exactly one fold.
	probs := make([]map[string]float64, len(items))

	sem := make(chan struct{}, s.cfg.Workers)
	errCh := make(chan error, len(folds))
	var wg sync.WaitGroup
	for f, held := range folds {
		wg.Add(1)
		go func(f int, held []int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			// Checked inside the worker so Audit never returns before
			// every launched fold has stopped.
			if err := ctx.Err(); err != nil {
				errCh <- err
				return
			}
			if err := s.runFold(items, held, factory, probs); err != nil {
				errCh <- fmt.Errorf("fold %d: %w", f, err)
			}
		}(f, held)
	}
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		return Report{}, err
	}

	report := s.score(items, probs)
	s.logger.Info("Completed label audit",
		zap.Int("items", len(items)),
		zap.Int("folds", len(folds)),
		zap.Float64("health", report.Health),
		zap.Int("issues", len(report.Issues)),
	)
	return report, nil
}

func (s *Service) runFold(items []domain.Item, held []int, factory Factory, probs []map[string]float64) error {
	heldSet := make(map[int]struct{}, len(held))
	for _, i := range held {
		heldSet[i] = struct{}{}
	}

	train := make([]domain.Item, 0, len(items)-len(held))
	for i, it := range items {
		if _, ok := heldSet[i]; !ok {
			train = append(train, it)
		}
	}

	clf, err := factory(train)
	if err != nil {
		return fmt.Errorf("train classifier: %w", err)
	}
	for _, i := range held {
		probs[i] = clf.Probabilities(items[i].Vector)
	}
	return nil
}

// score turns the out-of-fold probabilities into a health score, per-class
// ranking and a review queue of negative-margin items.
func (s *Service) score(items []domain.Item, probs []map[string]float64) Report {
	margins := make([]float64, len(items))
	marginSum := make(map[string]float64)
	support := make(map[string]int)
	suggested := make([]string, len(items))
	correct := 0

	for i, it := range items {
		p := probs[i]
		bestOther := 0.0
		bestLabel := it.Label
		bestProb := p[it.Label]
		for label, prob := range p {
			if label == it.Label {
				continue
			}
			if prob > bestOther {
				bestOther = prob
			}
			if prob > bestProb {
				bestProb = prob
				bestLabel = label
			}
		}

		margins[i] = p[it.Label] - bestOther
		suggested[i] = bestLabel
		marginSum[it.Label] += margins[i]
		support[it.Label]++
		if bestLabel == it.Label {
			correct++
		}
	}

	classes := make([]ClassQuality, 0, len(support))
	for label, n := range support {
		classes = append(classes, ClassQuality{
			Label:      label,
			MeanMargin: marginSum[label] / float64(n),
			Support:    n,
		})
	}
	sort.Slice(classes, func(i, j int) bool {
		if classes[i].MeanMargin != classes[j].MeanMargin {
			return classes[i].MeanMargin > classes[j].MeanMargin
		}
		return classes[i].Label < classes[j].Label
	})

	var issues []domain.LabelIssue
	for i, it := range items {
		if margins[i] < 0 {
			issues = append(issues, domain.LabelIssue{
				ItemID:         it.ID,
				SuggestedLabel: suggested[i],
				Margin:         margins[i],
			})
		}
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Margin < issues[j].Margin })

	return Report{
		Health:  float64(correct) / float64(len(items)),
		Classes: classes,
		Issues:  issues,
	}
}

// stratifiedFolds assigns item indices round-robin within each class so every
// fold sees the class distribution of the whole set. Every index lands in
// exactly one fold.
func stratifiedFolds(items []domain.Item, folds int) ([][]int, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("empty dataset: %w", domain.ErrInsufficientData)
	}

	byClass := make(map[string][]int)
	var order []string
	for i, it := range items {
		if _, ok := byClass[it.Label]; !ok {
			order = append(order, it.Label)
		}
		byClass[it.Label] = append(byClass[it.Label], i)
	}

	for _, label := range order {
		if len(byClass[label]) < folds {
			return nil, domain.NewStratificationError(label, len(byClass[label]), folds)
		}
	}

	out := make([][]int, folds)
	for _, label := range order {
		for j, idx := range byClass[label] {
			f := j % folds
			out[f] = append(out[f], idx)
		}
	}
	return out, nil
}

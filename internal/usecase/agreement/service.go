// Package agreement combines annotator decisions into consensus labels and
// measures inter-annotator agreement with Fleiss' kappa.
package agreement

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/curatehq/labelsmith/internal/domain"
)

// Service aggregates annotator decisions.
type Service struct {
	logger *zap.Logger
}

// New creates an agreement service.
func New(logger *zap.Logger) *Service {
	return &Service{logger: logger}
}

// Resolve returns one consensus per item, in first-seen decision order.
// A label needs at least quorum votes to win; otherwise the item stays
// unresolved. Items with fewer than two decisions fail the whole call.
func (s *Service) Resolve(decisions []domain.Decision, quorum int) ([]domain.Consensus, error) {
	if quorum <= 0 {
		return nil, fmt.Errorf("quorum must be positive, got %d", quorum)
	}

	itemOrder, votes := groupVotes(decisions)

	out := make([]domain.Consensus, 0, len(itemOrder))
	for _, itemID := range itemOrder {
		counts := votes[itemID]
		total := 0
		for _, c := range counts {
			total += c
		}
		if total < 2 {
			return nil, fmt.Errorf("item %q has %d decision(s): %w",
				itemID, total, domain.ErrInsufficientAnnotators)
		}

		label, topCount := topVote(counts)
		consensus := domain.Consensus{
			ItemID:    itemID,
			Label:     domain.Unresolved,
			Agreement: float64(topCount) / float64(total),
		}
		if topCount >= quorum {
			consensus.Label = label
		}
		out = append(out, consensus)
	}

	s.logger.Info("Resolved consensus labels",
		zap.Int("items", len(out)),
		zap.Int("quorum", quorum),
	)
	return out, nil
}

// Kappa computes Fleiss' kappa over all items with at least two decisions:
// 1.0 is perfect agreement, 0 chance-level, negative worse than chance.
func (s *Service) Kappa(decisions []domain.Decision) (float64, error) {
	itemOrder, votes := groupVotes(decisions)

	// Category totals across all items.
	categoryTotal := make(map[string]int)
	grandTotal := 0

	var sumPi float64
	rated := 0
	for _, itemID := range itemOrder {
		counts := votes[itemID]
		n := 0
		for _, c := range counts {
			n += c
		}
		if n < 2 {
			return 0, fmt.Errorf("item %q has %d decision(s): %w",
				itemID, n, domain.ErrInsufficientAnnotators)
		}

		var agreePairs int
		for label, c := range counts {
			agreePairs += c * (c - 1)
			categoryTotal[label] += c
		}
		sumPi += float64(agreePairs) / float64(n*(n-1))
		grandTotal += n
		rated++
	}
	if rated == 0 {
		return 0, fmt.Errorf("no decisions to score: %w", domain.ErrInsufficientAnnotators)
	}

	observed := sumPi / float64(rated)

	var expected float64
	for _, c := range categoryTotal {
		p := float64(c) / float64(grandTotal)
		expected += p * p
	}

	if 1-expected < 1e-12 {
		// Everyone used a single category; agreement is trivially perfect.
		return 1, nil
	}
	return (observed - expected) / (1 - expected), nil
}

// groupVotes tallies decisions per item, preserving first-seen item order.
func groupVotes(decisions []domain.Decision) ([]string, map[string]map[string]int) {
	var order []string
	votes := make(map[string]map[string]int)
	for _, d := range decisions {
		if _, ok := votes[d.ItemID]; !ok {
			votes[d.ItemID] = make(map[string]int)
			order = append(order, d.ItemID)
		}
		votes[d.ItemID][d.Label]++
	}
	return order, votes
}

// topVote returns the most voted label; ties break alphabetically for
// deterministic output.
func topVote(counts map[string]int) (string, int) {
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	best := ""
	bestCount := -1
	for _, label := range labels {
		if counts[label] > bestCount {
			best = label
			bestCount = counts[label]
		}
	}
	return best, bestCount
}

package domain

// LabelIssue flags a likely mislabeled item. It never mutates the item; the
// auditor surfaces issues as a review queue.
// Margin is the cross-validated true-label probability minus the best
// competing label's probability; more negative means more suspect.
type LabelIssue struct {
	ItemID         string
	SuggestedLabel string
	Margin         float64
}

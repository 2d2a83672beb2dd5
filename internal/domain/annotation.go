package domain

import "sort"

// Unresolved marks an item whose annotator decisions reached no quorum.
const Unresolved = "unresolved"

// NoneOfThese is the escape label an annotator picks when no ranked candidate
// fits. It funnels the item into the full-vocabulary secondary queue.
const NoneOfThese = "none_of_these"

// LabelCandidate is a (label, score) pair proposed to an annotator.
type LabelCandidate struct {
	Label string
	Score float64
}

// Ordering is a ranked, narrowed choice set for one item.
// Candidates are sorted by non-increasing score.
type Ordering struct {
	ItemID     string
	Candidates []LabelCandidate
}

// NewOrdering sorts candidates by descending score (label name breaks ties)
// and keeps at most topM of them.
func NewOrdering(itemID string, candidates []LabelCandidate, topM int) Ordering {
	cp := make([]LabelCandidate, len(candidates))
	copy(cp, candidates)
	sort.SliceStable(cp, func(i, j int) bool {
		if cp[i].Score != cp[j].Score {
			return cp[i].Score > cp[j].Score
		}
		return cp[i].Label < cp[j].Label
	})
	if topM > 0 && len(cp) > topM {
		cp = cp[:topM]
	}
	return Ordering{ItemID: itemID, Candidates: cp}
}

// Decision is one annotator's label choice for one item.
type Decision struct {
	AnnotatorID string
	ItemID      string
	Label       string
	SessionID   string
}

// Consensus is the aggregated label for one item.
// Agreement is the share of decisions backing the winning label, in [0,1].
type Consensus struct {
	ItemID    string
	Label     string
	Agreement float64
}

// Resolved reports whether the consensus reached quorum.
func (c Consensus) Resolved() bool { return c.Label != Unresolved }

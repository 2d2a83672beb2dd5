package labelsmith

// Task is one unit of annotation work: an item plus its ranked candidates.
type Task struct {
	ItemID     string      `json:"item_id"`
	Text       string      `json:"text"`
	Candidates []Candidate `json:"candidates"`
	// Secondary marks a full-vocabulary retry after a "none of these" escape.
	Secondary bool   `json:"secondary"`
	SessionID string `json:"session_id"`
}

// Candidate is one ranked label option.
type Candidate struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Decision is one annotator's label choice for an item.
type Decision struct {
	AnnotatorID string `json:"annotator_id"`
	ItemID      string `json:"item_id"`
	Label       string `json:"label"`
	SessionID   string `json:"session_id,omitempty"`
}

// ConsensusResult holds the resolved labels and the chance-corrected
// agreement score over all decisions.
type ConsensusResult struct {
	Items []ConsensusItem `json:"items"`
	Kappa float64         `json:"kappa"`
}

// ConsensusItem is the resolved label for one item. Label is "unresolved"
// when no candidate reached the quorum.
type ConsensusItem struct {
	ItemID    string  `json:"item_id"`
	Label     string  `json:"label"`
	Agreement float64 `json:"agreement"`
}

// Issue is one suspected mislabel from the audit, worst first.
type Issue struct {
	ItemID         string  `json:"item_id"`
	SuggestedLabel string  `json:"suggested_label"`
	Margin         float64 `json:"margin"`
}

// ScatterPoint is one item's 2-D projection coordinates.
type ScatterPoint struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Label string  `json:"label,omitempty"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// HealthStatus represents the aggregated server health.
type HealthStatus struct {
	Status string            `json:"status"` // "ok", "degraded", "error"
	Checks map[string]string `json:"checks"` // component -> "ok"/"error"
}

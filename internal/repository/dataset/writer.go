package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/curatehq/labelsmith/internal/domain"
)

// WriteSelectionCSV exports the selected items as {id, text, label} rows in
// selection order.
func (r *Repository) WriteSelectionCSV(path string, pool domain.Pool, sel domain.Selection) error {
	rows := [][]string{{"id", "text", "label"}}
	for _, id := range sel.IDs {
		it, ok := pool.ByID(id)
		if !ok {
			return fmt.Errorf("selected item %q: %w", id, domain.ErrNotFound)
		}
		rows = append(rows, []string{it.ID, it.Text, it.Label})
	}
	if err := writeCSV(path, rows); err != nil {
		return err
	}

	r.logger.Info("Wrote selection",
		zap.String("path", path),
		zap.Int("items", len(sel.IDs)),
	)
	return nil
}

// WriteIssuesCSV exports the audit review queue, keeping the auditor's
// most-suspect-first ordering.
func (r *Repository) WriteIssuesCSV(path string, pool domain.Pool, issues []domain.LabelIssue) error {
	rows := [][]string{{"item_id", "text", "original_label", "suggested_label", "margin"}}
	for _, issue := range issues {
		it, ok := pool.ByID(issue.ItemID)
		if !ok {
			return fmt.Errorf("flagged item %q: %w", issue.ItemID, domain.ErrNotFound)
		}
		rows = append(rows, []string{
			it.ID,
			it.Text,
			it.Label,
			issue.SuggestedLabel,
			strconv.FormatFloat(issue.Margin, 'f', 6, 64),
		})
	}
	if err := writeCSV(path, rows); err != nil {
		return err
	}

	r.logger.Info("Wrote label issues",
		zap.String("path", path),
		zap.Int("issues", len(issues)),
	)
	return nil
}

// ScatterPoint is one item in the 2-D visualization payload.
type ScatterPoint struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Label string  `json:"label,omitempty"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// ScatterPayload builds the scatter rendering payload from reduced items.
func ScatterPayload(items []domain.Item) ([]ScatterPoint, error) {
	points := make([]ScatterPoint, len(items))
	for i, it := range items {
		if len(it.Coords) < 2 {
			return nil, fmt.Errorf("item %q has no 2-D coordinates: %w", it.ID, domain.ErrReduction)
		}
		points[i] = ScatterPoint{
			ID:    it.ID,
			Text:  it.Text,
			Label: it.Label,
			X:     it.Coords[0],
			Y:     it.Coords[1],
		}
	}
	return points, nil
}

// WriteScatterJSON exports the 2-D coordinates with item metadata.
func (r *Repository) WriteScatterJSON(path string, items []domain.Item) error {
	points, err := ScatterPayload(items)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if err := enc.Encode(points); err != nil {
		return fmt.Errorf("encode scatter payload: %w", err)
	}

	r.logger.Info("Wrote scatter payload",
		zap.String("path", path),
		zap.Int("points", len(points)),
	)
	return nil
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

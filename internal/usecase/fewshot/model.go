package fewshot

import (
	"fmt"
	"math"

	"github.com/curatehq/labelsmith/internal/domain"
)

// Model is a trained few-shot classifier: per-class centroids scored by
// weighted cosine similarity under a softmax.
type Model struct {
	classes     []string
	centroids   map[string][]float32
	weights     []float64
	temperature float64
}

// Classes returns the label vocabulary the model was trained on, sorted.
func (m *Model) Classes() []string {
	out := make([]string, len(m.classes))
	copy(out, m.classes)
	return out
}

// Probabilities returns a softmax distribution over the trained classes.
func (m *Model) Probabilities(vec []float32) map[string]float64 {
	sims := make([]float64, len(m.classes))
	maxSim := math.Inf(-1)
	for i, c := range m.classes {
		sims[i] = m.temperature * m.weightedCosine(vec, m.centroids[c])
		if sims[i] > maxSim {
			maxSim = sims[i]
		}
	}

	probs := make(map[string]float64, len(m.classes))
	var sum float64
	for i, c := range m.classes {
		e := math.Exp(sims[i] - maxSim)
		probs[c] = e
		sum += e
	}
	for c := range probs {
		probs[c] /= sum
	}
	return probs
}

// Predict returns the most probable class per item, in input order.
func (m *Model) Predict(items []domain.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = m.argmax(it.Vector)
	}
	return out
}

func (m *Model) argmax(vec []float32) string {
	probs := m.Probabilities(vec)
	best := ""
	bestP := math.Inf(-1)
	for _, c := range m.classes {
		if probs[c] > bestP {
			best = c
			bestP = probs[c]
		}
	}
	return best
}

// weightedCosine is cosine similarity in the reweighted space. Zero-norm
// inputs score 0.
func (m *Model) weightedCosine(a, b []float32) float64 {
	var dot, na, nb float64
	for k := range m.weights {
		w := m.weights[k]
		x, y := float64(a[k]), float64(b[k])
		dot += w * x * y
		na += w * x * x
		nb += w * y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// ClassMetrics holds per-class evaluation results.
type ClassMetrics struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report summarizes model quality on a labeled evaluation set.
type Report struct {
	Accuracy float64
	Classes  map[string]ClassMetrics
}

// Evaluate scores the model against labeled items and reports accuracy plus
// per-class precision, recall and F1.
func (m *Model) Evaluate(items []domain.Item) (Report, error) {
	if len(items) == 0 {
		return Report{}, fmt.Errorf("empty evaluation set: %w", domain.ErrInsufficientData)
	}

	predicted := m.Predict(items)

	truePos := make(map[string]int)
	falsePos := make(map[string]int)
	support := make(map[string]int)
	correct := 0
	for i, it := range items {
		support[it.Label]++
		if predicted[i] == it.Label {
			truePos[it.Label]++
			correct++
		} else {
			falsePos[predicted[i]]++
		}
	}

	report := Report{
		Accuracy: float64(correct) / float64(len(items)),
		Classes:  make(map[string]ClassMetrics, len(m.classes)),
	}
	for _, c := range m.classes {
		tp := truePos[c]
		var precision, recall, f1 float64
		if tp+falsePos[c] > 0 {
			precision = float64(tp) / float64(tp+falsePos[c])
		}
		if support[c] > 0 {
			recall = float64(tp) / float64(support[c])
		}
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		report.Classes[c] = ClassMetrics{
			Precision: precision,
			Recall:    recall,
			F1:        f1,
			Support:   support[c],
		}
	}
	return report, nil
}

package fewshot

import (
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/curatehq/labelsmith/internal/domain"
)

// clusterItem puts the vector near one of two orthogonal axes with a small
// deterministic offset, so classes are separable but not identical.
func clusterItem(id, label string, axis int, offset float32) domain.Item {
	v := make([]float32, 8)
	v[axis] = 1
	v[(axis+4)%8] = offset
	return domain.Item{ID: id, Label: label, Vector: v}
}

func twoClassSet() []domain.Item {
	return []domain.Item{
		clusterItem("m1", "nature", 0, 0.1),
		clusterItem("m2", "nature", 0, 0.2),
		clusterItem("m3", "nature", 0, 0.3),
		clusterItem("m4", "exercise", 1, 0.1),
		clusterItem("m5", "exercise", 1, 0.2),
		clusterItem("m6", "exercise", 1, 0.3),
	}
}

func TestTrain_PredictsSeparableClasses(t *testing.T) {
	svc := New(Config{Seed: 7}, zap.NewNop())
	model, err := svc.Train(twoClassSet())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	eval := []domain.Item{
		clusterItem("e1", "nature", 0, 0.15),
		clusterItem("e2", "exercise", 1, 0.25),
	}
	got := model.Predict(eval)
	if got[0] != "nature" || got[1] != "exercise" {
		t.Errorf("Predict = %v, want [nature exercise]", got)
	}
}

func TestTrain_ProbabilitiesSumToOne(t *testing.T) {
	svc := New(Config{Seed: 7}, zap.NewNop())
	model, err := svc.Train(twoClassSet())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	probs := model.Probabilities(clusterItem("e", "", 0, 0.1).Vector)
	var sum float64
	for _, p := range probs {
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("probabilities sum to %v, want 1", sum)
	}
	if probs["nature"] <= probs["exercise"] {
		t.Errorf("expected nature to dominate: %v", probs)
	}
}

func TestTrain_SingleClassFails(t *testing.T) {
	svc := New(Config{Seed: 7}, zap.NewNop())
	_, err := svc.Train([]domain.Item{
		clusterItem("m1", "nature", 0, 0.1),
		clusterItem("m2", "nature", 0, 0.2),
	})
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestTrain_UnlabeledItemFails(t *testing.T) {
	svc := New(Config{Seed: 7}, zap.NewNop())
	items := twoClassSet()
	items[2].Label = ""
	_, err := svc.Train(items)
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestTrain_DimMismatchFails(t *testing.T) {
	svc := New(Config{Seed: 7}, zap.NewNop())
	items := twoClassSet()
	items[4].Vector = []float32{1, 0}
	_, err := svc.Train(items)
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestTrain_Deterministic(t *testing.T) {
	probe := clusterItem("e", "", 0, 0.12).Vector

	run := func() map[string]float64 {
		svc := New(Config{Seed: 42}, zap.NewNop())
		model, err := svc.Train(twoClassSet())
		if err != nil {
			t.Fatalf("Train: %v", err)
		}
		return model.Probabilities(probe)
	}

	first, second := run(), run()
	for c, p := range first {
		if second[c] != p {
			t.Fatalf("class %q: %v vs %v across identical runs", c, p, second[c])
		}
	}
}

func TestTrain_LinearProbe(t *testing.T) {
	svc := New(Config{Seed: 7, LinearProbe: true}, zap.NewNop())
	model, err := svc.Train(twoClassSet())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	for _, w := range model.weights {
		if w != 1 {
			t.Fatalf("linear probe must keep unit weights, got %v", model.weights)
		}
	}
	got := model.Predict([]domain.Item{clusterItem("e1", "", 1, 0.1)})
	if got[0] != "exercise" {
		t.Errorf("Predict = %v, want exercise", got[0])
	}
}

func TestEvaluate_PerfectPredictions(t *testing.T) {
	svc := New(Config{Seed: 7}, zap.NewNop())
	model, err := svc.Train(twoClassSet())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	report, err := model.Evaluate(twoClassSet())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if report.Accuracy != 1 {
		t.Errorf("accuracy = %v, want 1", report.Accuracy)
	}
	for c, m := range report.Classes {
		if m.F1 != 1 || m.Precision != 1 || m.Recall != 1 {
			t.Errorf("class %q metrics = %+v, want all 1", c, m)
		}
		if m.Support != 3 {
			t.Errorf("class %q support = %d, want 3", c, m.Support)
		}
	}
}

func TestEvaluate_EmptySetFails(t *testing.T) {
	svc := New(Config{Seed: 7}, zap.NewNop())
	model, err := svc.Train(twoClassSet())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if _, err := model.Evaluate(nil); !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

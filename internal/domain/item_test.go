package domain

import (
	"errors"
	"testing"
)

func TestNewPool_RejectsDuplicates(t *testing.T) {
	_, err := NewPool([]Item{{ID: "a"}, {ID: "a"}})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestNewPool_RejectsEmptyID(t *testing.T) {
	if _, err := NewPool([]Item{{ID: ""}}); err == nil {
		t.Fatal("expected error for empty ID")
	}
}

func TestPool_Lookup(t *testing.T) {
	p, err := NewPool([]Item{{ID: "a", Text: "first"}, {ID: "b", Text: "second"}})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}
	it, ok := p.ByID("b")
	if !ok || it.Text != "second" {
		t.Errorf("ByID(b) = %+v, %v", it, ok)
	}
	if _, ok := p.ByID("missing"); ok {
		t.Error("ByID(missing) should not be found")
	}
}

func TestNewSplit_RejectsOverlap(t *testing.T) {
	_, err := NewSplit([]Item{{ID: "a"}}, []Item{{ID: "a"}})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestSplitBySelection(t *testing.T) {
	items := []Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	split := SplitBySelection(items, Selection{IDs: []string{"b"}})
	if len(split.Train) != 1 || split.Train[0].ID != "b" {
		t.Errorf("Train = %+v", split.Train)
	}
	if len(split.Eval) != 2 {
		t.Errorf("Eval = %+v", split.Eval)
	}
}

func TestNewOrdering_SortsAndTruncates(t *testing.T) {
	o := NewOrdering("item1", []LabelCandidate{
		{Label: "nature", Score: 0.1},
		{Label: "bonding", Score: 0.9},
		{Label: "leisure", Score: 0.5},
		{Label: "exercise", Score: 0.5},
	}, 3)

	if len(o.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(o.Candidates))
	}
	for i := 1; i < len(o.Candidates); i++ {
		if o.Candidates[i].Score > o.Candidates[i-1].Score {
			t.Errorf("scores not non-increasing: %+v", o.Candidates)
		}
	}
	if o.Candidates[0].Label != "bonding" {
		t.Errorf("top candidate = %q, want bonding", o.Candidates[0].Label)
	}
	// Equal scores break ties by label name.
	if o.Candidates[1].Label != "exercise" || o.Candidates[2].Label != "leisure" {
		t.Errorf("tie-break order wrong: %+v", o.Candidates)
	}
}

package domain

import "fmt"

// Item is a single dataset record flowing through the pipeline.
// Stages return new derived slices; an Item handed to a stage is never
// mutated in place.
type Item struct {
	ID        string
	Text      string
	Label     string // ground truth, optional
	Predicted string // model prediction, optional
	Vector    []float32
	Coords    []float64
}

// HasLabel reports whether the item carries a ground-truth label.
func (it Item) HasLabel() bool { return it.Label != "" }

// WithVector returns a copy of the item with the embedding attached.
func (it Item) WithVector(vec []float32) Item {
	it.Vector = vec
	return it
}

// WithCoords returns a copy of the item with reduced coordinates attached.
func (it Item) WithCoords(coords []float64) Item {
	it.Coords = coords
	return it
}

// Pool is the immutable set of items eligible for selection.
type Pool struct {
	items []Item
	byID  map[string]int
}

// NewPool creates a pool. Duplicate IDs are rejected.
func NewPool(items []Item) (Pool, error) {
	byID := make(map[string]int, len(items))
	for i, it := range items {
		if it.ID == "" {
			return Pool{}, fmt.Errorf("item at index %d has empty ID", i)
		}
		if _, dup := byID[it.ID]; dup {
			return Pool{}, fmt.Errorf("duplicate item ID %q: %w", it.ID, ErrAlreadyExists)
		}
		byID[it.ID] = i
	}
	cp := make([]Item, len(items))
	copy(cp, items)
	return Pool{items: cp, byID: byID}, nil
}

// Len returns the pool size.
func (p Pool) Len() int { return len(p.items) }

// At returns the item at index i.
func (p Pool) At(i int) Item { return p.items[i] }

// ByID returns the item with the given ID.
func (p Pool) ByID(id string) (Item, bool) {
	i, ok := p.byID[id]
	if !ok {
		return Item{}, false
	}
	return p.items[i], true
}

// Items returns a copy of the pool contents in original order.
func (p Pool) Items() []Item {
	cp := make([]Item, len(p.items))
	copy(cp, p.items)
	return cp
}

// Selection is an ordered sequence of chosen item IDs.
type Selection struct {
	IDs []string
}

// Contains reports whether id was selected.
func (s Selection) Contains(id string) bool {
	for _, v := range s.IDs {
		if v == id {
			return true
		}
	}
	return false
}

// Split is a disjoint train/eval partition of labeled items.
type Split struct {
	Train []Item
	Eval  []Item
}

// NewSplit validates that the partitions are disjoint.
func NewSplit(train, eval []Item) (Split, error) {
	seen := make(map[string]struct{}, len(train))
	for _, it := range train {
		seen[it.ID] = struct{}{}
	}
	for _, it := range eval {
		if _, ok := seen[it.ID]; ok {
			return Split{}, fmt.Errorf("item %q appears in both train and eval: %w", it.ID, ErrAlreadyExists)
		}
	}
	return Split{Train: train, Eval: eval}, nil
}

// SplitBySelection partitions items into selected (train) and remainder (eval).
func SplitBySelection(items []Item, sel Selection) Split {
	selected := make(map[string]struct{}, len(sel.IDs))
	for _, id := range sel.IDs {
		selected[id] = struct{}{}
	}
	var train, eval []Item
	for _, it := range items {
		if _, ok := selected[it.ID]; ok {
			train = append(train, it)
		} else {
			eval = append(eval, it)
		}
	}
	return Split{Train: train, Eval: eval}
}

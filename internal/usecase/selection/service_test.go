package selection

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"go.uber.org/zap"

	"github.com/curatehq/labelsmith/internal/domain"
)

func poolOf(t *testing.T, vectors [][]float32) domain.Pool {
	t.Helper()
	items := make([]domain.Item, len(vectors))
	for i, v := range vectors {
		items[i] = domain.Item{ID: fmt.Sprintf("item-%03d", i), Vector: v}
	}
	p, err := domain.NewPool(items)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return p
}

func randomVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dim)
		for j := range out[i] {
			out[i][j] = float32(rng.NormFloat64())
		}
	}
	return out
}

func TestSelect_SizeAndUniqueness(t *testing.T) {
	pool := poolOf(t, randomVectors(30, 8, 1))
	svc := New(zap.NewNop())

	sel, err := svc.Select(context.Background(), pool, 10)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(sel.IDs) != 10 {
		t.Fatalf("got %d ids, want 10", len(sel.IDs))
	}
	seen := make(map[string]struct{})
	for _, id := range sel.IDs {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
		if _, ok := pool.ByID(id); !ok {
			t.Fatalf("selected id %q not in pool", id)
		}
	}
}

func TestSelect_ZeroBudgetFails(t *testing.T) {
	pool := poolOf(t, randomVectors(5, 4, 2))
	svc := New(zap.NewNop())
	_, err := svc.Select(context.Background(), pool, 0)
	if !errors.Is(err, domain.ErrSelection) {
		t.Fatalf("expected ErrSelection, got %v", err)
	}
}

func TestSelect_NegativeBudgetFails(t *testing.T) {
	pool := poolOf(t, randomVectors(5, 4, 2))
	svc := New(zap.NewNop())
	if _, err := svc.Select(context.Background(), pool, -3); !errors.Is(err, domain.ErrSelection) {
		t.Fatalf("expected ErrSelection, got %v", err)
	}
}

func TestSelect_BudgetAtPoolSizeReturnsAll(t *testing.T) {
	pool := poolOf(t, randomVectors(8, 4, 3))
	svc := New(zap.NewNop())

	sel, err := svc.Select(context.Background(), pool, 8)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(sel.IDs) != 8 {
		t.Fatalf("got %d ids, want all 8", len(sel.IDs))
	}
	for i := 0; i < pool.Len(); i++ {
		if !sel.Contains(pool.At(i).ID) {
			t.Errorf("pool item %q missing from full selection", pool.At(i).ID)
		}
	}
}

func TestSelect_BudgetAbovePoolSizeReturnsPool(t *testing.T) {
	pool := poolOf(t, randomVectors(4, 4, 4))
	svc := New(zap.NewNop())

	sel, err := svc.Select(context.Background(), pool, 100)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(sel.IDs) != 4 {
		t.Fatalf("got %d ids, want 4", len(sel.IDs))
	}
}

func TestSelect_CoverageMonotoneInBudget(t *testing.T) {
	pool := poolOf(t, randomVectors(25, 6, 5))
	svc := New(zap.NewNop())

	prev := -1.0
	for k := 1; k <= 25; k += 4 {
		sel, err := svc.Select(context.Background(), pool, k)
		if err != nil {
			t.Fatalf("Select k=%d: %v", k, err)
		}
		cov, err := svc.Coverage(pool, sel)
		if err != nil {
			t.Fatalf("Coverage k=%d: %v", k, err)
		}
		if cov < prev-1e-9 {
			t.Fatalf("coverage decreased at k=%d: %v -> %v", k, prev, cov)
		}
		prev = cov
	}
}

func TestSelect_PicksSpreadRepresentatives(t *testing.T) {
	// Three tight clusters; a budget of 3 should pick one from each.
	var vectors [][]float32
	axes := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	for c, axis := range axes {
		for i := 0; i < 5; i++ {
			v := make([]float32, 3)
			copy(v, axis)
			v[c] += float32(i) * 0.01
			vectors = append(vectors, v)
		}
	}
	pool := poolOf(t, vectors)
	svc := New(zap.NewNop())

	sel, err := svc.Select(context.Background(), pool, 3)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	clusters := make(map[int]bool)
	for _, id := range sel.IDs {
		var idx int
		fmt.Sscanf(id, "item-%03d", &idx)
		clusters[idx/5] = true
	}
	if len(clusters) != 3 {
		t.Errorf("expected one pick per cluster, got %v from %v", clusters, sel.IDs)
	}
}

func TestSelect_CoordsFallback(t *testing.T) {
	items := []domain.Item{
		{ID: "a", Coords: []float64{0, 0}},
		{ID: "b", Coords: []float64{10, 10}},
		{ID: "c", Coords: []float64{0.1, 0}},
	}
	pool, err := domain.NewPool(items)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	svc := New(zap.NewNop())

	sel, err := svc.Select(context.Background(), pool, 2)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !sel.Contains("b") {
		t.Errorf("expected the far point to be covered, got %v", sel.IDs)
	}
}

package pipeline

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/curatehq/labelsmith/internal/domain"
)

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) EmbedItems(_ context.Context, items []domain.Item) ([]domain.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Item, len(items))
	for i, it := range items {
		out[i] = it.WithVector([]float32{float32(i), 1})
	}
	return out, nil
}

type fakeReducer struct{ err error }

func (f fakeReducer) Reduce(_ context.Context, vectors [][]float32) ([][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(vectors))
	for i := range vectors {
		out[i] = []float64{float64(i), -float64(i)}
	}
	return out, nil
}

type fakeSelector struct{ err error }

func (f fakeSelector) Select(_ context.Context, pool domain.Pool, k int) (domain.Selection, error) {
	if f.err != nil {
		return domain.Selection{}, f.err
	}
	ids := make([]string, 0, k)
	for i := 0; i < k && i < pool.Len(); i++ {
		ids = append(ids, pool.At(i).ID)
	}
	return domain.Selection{IDs: ids}, nil
}

func testItems() []domain.Item {
	return []domain.Item{
		{ID: "m1", Text: "went hiking"},
		{ID: "m2", Text: "dinner with friends"},
		{ID: "m3", Text: "finished the race"},
	}
}

func TestRun_ChainsStages(t *testing.T) {
	r := NewRunner(Config{Budget: 2}, fakeEmbedder{}, fakeReducer{}, fakeSelector{}, zap.NewNop())

	res, err := r.Run(context.Background(), testItems())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("got %d items, want 3", len(res.Items))
	}
	for i, it := range res.Items {
		if it.Vector == nil {
			t.Errorf("item %d has no vector", i)
		}
		if len(it.Coords) != 2 {
			t.Errorf("item %d has coords %v, want 2-D", i, it.Coords)
		}
	}
	if len(res.Selection.IDs) != 2 {
		t.Errorf("selected %d items, want 2", len(res.Selection.IDs))
	}
}

func TestRun_StageFailuresAbort(t *testing.T) {
	boom := errors.New("boom")

	cases := []struct {
		name string
		r    *Runner
	}{
		{"embed", NewRunner(Config{Budget: 1}, fakeEmbedder{err: boom}, fakeReducer{}, fakeSelector{}, zap.NewNop())},
		{"reduce", NewRunner(Config{Budget: 1}, fakeEmbedder{}, fakeReducer{err: boom}, fakeSelector{}, zap.NewNop())},
		{"select", NewRunner(Config{Budget: 1}, fakeEmbedder{}, fakeReducer{}, fakeSelector{err: boom}, zap.NewNop())},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.r.Run(context.Background(), testItems()); !errors.Is(err, boom) {
				t.Fatalf("expected stage error to surface, got %v", err)
			}
		})
	}
}

package reduce

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"go.uber.org/zap"

	"github.com/curatehq/labelsmith/internal/domain"
)

func syntheticVectors(n, dim int, seed int64) [][]float32 {
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

func TestReduce_Deterministic(t *testing.T) {
	vectors := syntheticVectors(40, 16, 1)
	svc := New(Config{Dims: 2, Seed: 42, Neighbors: 5, Mode: ModeLocal}, zap.NewNop())

	a, err := svc.Reduce(context.Background(), vectors)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	b, err := svc.Reduce(context.Background(), vectors)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}

	for i := range a {
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Fatalf("coords differ at [%d][%d]: %v vs %v", i, j, a[i][j], b[i][j])
			}
		}
	}
}

func TestReduce_OutputShape(t *testing.T) {
	vectors := syntheticVectors(30, 8, 2)
	for _, dims := range []int{1, 2} {
		svc := New(Config{Dims: dims, Seed: 7, Neighbors: 5, Mode: ModeGlobal}, zap.NewNop())
		coords, err := svc.Reduce(context.Background(), vectors)
		if err != nil {
			t.Fatalf("Reduce dims=%d: %v", dims, err)
		}
		if len(coords) != len(vectors) {
			t.Fatalf("got %d rows, want %d", len(coords), len(vectors))
		}
		for i, c := range coords {
			if len(c) != dims {
				t.Fatalf("row %d has %d coords, want %d", i, len(c), dims)
			}
			for _, x := range c {
				if math.IsNaN(x) || math.IsInf(x, 0) {
					t.Fatalf("row %d has invalid coordinate %v", i, x)
				}
			}
		}
	}
}

func TestReduce_TooFewSamples(t *testing.T) {
	svc := New(Config{Dims: 2, Neighbors: 15}, zap.NewNop())
	_, err := svc.Reduce(context.Background(), syntheticVectors(5, 8, 3))
	if !errors.Is(err, domain.ErrReduction) {
		t.Fatalf("expected ErrReduction, got %v", err)
	}
}

func TestReduce_InvalidDims(t *testing.T) {
	svc := New(Config{Dims: 3, Neighbors: 2}, zap.NewNop())
	_, err := svc.Reduce(context.Background(), syntheticVectors(10, 4, 4))
	if !errors.Is(err, domain.ErrReduction) {
		t.Fatalf("expected ErrReduction, got %v", err)
	}
}

func TestReduce_SeparatesClusters(t *testing.T) {
	// Two tight clusters along orthogonal axes should land apart on the
	// first projected coordinate.
	var vectors [][]float32
	for i := 0; i < 10; i++ {
		vectors = append(vectors, []float32{1, float32(i) * 0.01, 0, 0})
	}
	for i := 0; i < 10; i++ {
		vectors = append(vectors, []float32{0, 0, 1, float32(i) * 0.01})
	}

	svc := New(Config{Dims: 1, Seed: 11, Neighbors: 3, Mode: ModeGlobal}, zap.NewNop())
	coords, err := svc.Reduce(context.Background(), vectors)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}

	var first, second float64
	for i := 0; i < 10; i++ {
		first += coords[i][0]
		second += coords[i+10][0]
	}
	first /= 10
	second /= 10

	if math.Abs(first-second) < 0.1 {
		t.Errorf("cluster means too close on axis 0: %v vs %v", first, second)
	}
}

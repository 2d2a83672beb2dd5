//go:build !cgo
// +build !cgo

package onnx

import (
	"context"
	"errors"

	"github.com/curatehq/labelsmith/internal/domain"
)

// Embedder stub type when built without CGO (see embedder.go for the real
// implementation).
type Embedder struct{}

// NewEmbedder returns an error when built without CGO (ONNX not available).
func NewEmbedder(_ string, _, _ int) (*Embedder, error) {
	return nil, errors.New("ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

// Embed is unreachable on the stub.
func (e *Embedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, errors.New("ONNX embedder not available")
}

// BatchEmbed is unreachable on the stub.
func (e *Embedder) BatchEmbed(_ context.Context, _ []string) (domain.BatchEmbeddingResult, error) {
	return domain.BatchEmbeddingResult{}, errors.New("ONNX embedder not available")
}

// HealthCheck is unreachable on the stub.
func (e *Embedder) HealthCheck(_ context.Context) error {
	return errors.New("ONNX embedder not available")
}

// Close is a no-op on the stub.
func (e *Embedder) Close() error { return nil }

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbedding signals malformed or out-of-range input text.
	ErrEmbedding = errors.New("embedding failed")
	// ErrReduction signals an insufficient sample size for dimensionality reduction.
	ErrReduction = errors.New("reduction failed")
	// ErrSelection signals an invalid selection budget.
	ErrSelection = errors.New("invalid selection budget")
	// ErrInsufficientAnnotators signals fewer than two decisions for an item.
	ErrInsufficientAnnotators = errors.New("insufficient annotators")
	// ErrInsufficientData signals an empty class in the training data.
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrStratification signals a class smaller than the fold count.
	ErrStratification = errors.New("class smaller than fold count")

	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidSchema signals an invalid dataset schema.
	ErrInvalidSchema = errors.New("invalid schema")
	// ErrVectorDimMismatch signals a vector dimension mismatch within a run.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// StratificationError wraps ErrStratification with the offending class.
type StratificationError struct {
	Class string
	Size  int
	Folds int
}

func (e *StratificationError) Error() string {
	return fmt.Sprintf("%s: class %q has %d members, need at least %d",
		ErrStratification.Error(), e.Class, e.Size, e.Folds)
}

func (e *StratificationError) Unwrap() error { return ErrStratification }

// NewStratificationError creates a stratification error for a class.
func NewStratificationError(class string, size, folds int) error {
	return &StratificationError{Class: class, Size: size, Folds: folds}
}

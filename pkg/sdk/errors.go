package labelsmith

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the client. Use errors.Is() to check.
var (
	// ErrQueueDrained means no annotation work is left for this annotator.
	ErrQueueDrained = errors.New("queue drained")
	// ErrAlreadyDecided means this annotator already labeled the item.
	ErrAlreadyDecided = errors.New("decision already exists")
	// ErrInvalidDecision means the decision failed server-side validation.
	ErrInvalidDecision = errors.New("invalid decision")
	// ErrInsufficientAnnotators means too few decisions exist for consensus.
	ErrInsufficientAnnotators = errors.New("insufficient annotators")
	// ErrEmbeddingProvider means the server's embedding provider failed.
	ErrEmbeddingProvider = errors.New("embedding provider error")
)

// APIError carries the HTTP status and error body of a failed request.
type APIError struct {
	StatusCode int
	Code       string
	Message    string

	sentinel error
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("labelsmith: %s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("labelsmith: http %d: %s", e.StatusCode, e.Message)
}

// Unwrap exposes the matching sentinel for errors.Is checks.
func (e *APIError) Unwrap() error { return e.sentinel }

// Package cache defines the key-value cache contract shared by cache
// backends and their consumers.
package cache

import "errors"

// Sentinel errors for cache operations.
var (
	ErrKeyNotFound = errors.New("cache: key not found")
)

// Op constants map to Redis command names for error context.
const (
	OpGet  = "GET"
	OpSet  = "SET"
	OpPing = "PING"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by exact lookups when no row matches.
var ErrNotFound = errors.New("not found")

// ValidationError marks a malformed input row. Recoverable: the row is
// skipped and the batch continues.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// EmbeddingError wraps a failure of the embedding collaborator.
type EmbeddingError struct {
	Op  string
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding %s: %v", e.Op, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// StoreError wraps a failure of the vector-store collaborator.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("vector store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ConfigError marks missing or inconsistent startup configuration. Fatal.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration: " + e.Reason
}

package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine. Wrap them with context via
// fmt.Errorf("...: %w", err) and test with errors.Is.
var (
	ErrConnection         = errors.New("connection error")
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrExtraction         = errors.New("extraction error")
	ErrEmbedding          = errors.New("embedding error")
	ErrGeneration         = errors.New("generation error")
	ErrUnsafeQuery        = errors.New("unsafe query")
	ErrJobNotFound        = errors.New("job not found")
	ErrSchemaNotAvailable = errors.New("schema not available")
	ErrNotConnected       = errors.New("database not connected")
	ErrEmptyQuery         = errors.New("query cannot be empty")
	ErrIndexWrite         = errors.New("index write failed")
	ErrQueryTooLong       = errors.New("query too long")
	ErrMissingTarget      = errors.New("connection string is required")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// FileError records a failure tied to a single input file.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

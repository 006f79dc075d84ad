// Package errors provides standardized error types for pipeline stages.
// PipelineError carries the stage operation, the file and column involved,
// and an optional wrapped cause.
package errors

import (
	stderrors "errors"
	"fmt"
)

// PipelineError represents a failure inside a pipeline stage or the table engine
type PipelineError struct {
	Op      string // Operation name (e.g., "Normalize", "Combine", "Sort")
	File    string // Source file if applicable
	Column  string // Column name if applicable
	Message string // Human-readable error description
	Cause   error  // Underlying error cause
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	switch {
	case e.File != "" && e.Column != "":
		return fmt.Sprintf("%s failed for %s on column '%s': %s", e.Op, e.File, e.Column, msg)
	case e.File != "":
		return fmt.Sprintf("%s failed for %s: %s", e.Op, e.File, msg)
	case e.Column != "":
		return fmt.Sprintf("%s operation failed on column '%s': %s", e.Op, e.Column, msg)
	default:
		return fmt.Sprintf("%s operation failed: %s", e.Op, msg)
	}
}

// Unwrap returns the underlying cause for error wrapping support
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors by operation and message. Empty File/Column on
// the target act as wildcards.
func (e *PipelineError) Is(target error) bool {
	var pe *PipelineError
	if !stderrors.As(target, &pe) {
		return false
	}
	if pe.Op != e.Op || pe.Message != e.Message {
		return false
	}
	return (pe.Column == "" || pe.Column == e.Column) && (pe.File == "" || pe.File == e.File)
}

const (
	msgMissingInput     = "required input is missing"
	msgUnmappedRequired = "required canonical fields have no source column"
	msgFileUnreadable   = "file could not be read as tabular data"
)

// Predefined error variables for common cases. Compare with errors.Is.
var (
	// ErrMissingInput is fatal: a directory or artifact the stage depends on is absent.
	ErrMissingInput = &PipelineError{Op: "prerequisite", Message: msgMissingInput}

	// ErrUnmappedRequired is returned only when strict schema checking is enabled.
	ErrUnmappedRequired = &PipelineError{Op: "schema", Message: msgUnmappedRequired}

	// ErrEmptyTable indicates an operation that needs at least one row or part.
	ErrEmptyTable = &PipelineError{Op: "validation", Message: "operation not supported on empty input"}

	// ErrMismatchedLength indicates columns of different lengths in one table.
	ErrMismatchedLength = &PipelineError{Op: "validation", Message: "columns must have the same length"}
)

// NewMissingInputError reports a missing prerequisite path
func NewMissingInputError(path string) *PipelineError {
	return &PipelineError{
		Op:      "prerequisite",
		File:    path,
		Message: msgMissingInput,
	}
}

// NewUnmappedRequiredError lists required fields left without a source column
func NewUnmappedRequiredError(fields []string) *PipelineError {
	return &PipelineError{
		Op:      "schema",
		Message: msgUnmappedRequired,
		Cause:   fmt.Errorf("unmapped: %v", fields),
	}
}

// NewFileError creates a per-file decode/parse error. Stages skip the file and continue.
func NewFileError(op, file string, cause error) *PipelineError {
	return &PipelineError{
		Op:      op,
		File:    file,
		Message: msgFileUnreadable,
		Cause:   cause,
	}
}

// NewColumnNotFoundError creates an error for operations on non-existent columns
func NewColumnNotFoundError(op, column string) *PipelineError {
	return &PipelineError{
		Op:      op,
		Column:  column,
		Message: "column does not exist",
	}
}

// NewTypeMismatchError creates an error for a column holding an unexpected type
func NewTypeMismatchError(op, column, expected, actual string) *PipelineError {
	return &PipelineError{
		Op:      op,
		Column:  column,
		Message: fmt.Sprintf("expected %s, got %s", expected, actual),
	}
}

// NewInvalidInputError creates an error for invalid operation inputs
func NewInvalidInputError(op, message string) *PipelineError {
	return &PipelineError{
		Op:      op,
		Message: message,
	}
}

// NewUnsupportedTypeError creates an error for unsupported data types
func NewUnsupportedTypeError(op, typeName string) *PipelineError {
	return &PipelineError{
		Op:      op,
		Message: fmt.Sprintf("unsupported type: %s", typeName),
	}
}

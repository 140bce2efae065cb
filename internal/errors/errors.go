// Package errors provides sentinel errors for the module indexer.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for known conditions.
var (
	// ErrInvalidModule indicates a file that is not a readable module package.
	ErrInvalidModule = errors.New("invalid module")

	// ErrTypeLoad indicates a compiled type entry that could not be loaded.
	ErrTypeLoad = errors.New("type load failed")

	// ErrPersistence indicates the index document could not be read or written.
	ErrPersistence = errors.New("persistence error")

	// ErrInvalidFilter indicates a malformed filter expression.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrNotFound indicates a resource, directory, or file was not found.
	ErrNotFound = errors.New("not found")

	// ErrBuildInProgress indicates a build for the directory is already running.
	ErrBuildInProgress = errors.New("build in progress")

	// ErrInvalidConfig indicates a configuration value that cannot be used.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// DetailError captures structured error information for user-facing failures.
type DetailError struct {
	// Type is the error category (required).
	Type string

	// Message is the specific description (required).
	Message string

	// Location is the file or directory the error refers to (optional).
	Location string

	// Field is the offending key, for header and config errors (optional).
	Field string

	// Context contains additional key-value context (optional).
	Context map[string]string

	// Hint provides actionable guidance (optional).
	Hint string

	// Cause is the underlying error (optional).
	Cause error
}

// Error implements the error interface.
func (e *DetailError) Error() string {
	var b strings.Builder

	b.WriteString("Error: ")
	b.WriteString(e.Type)
	b.WriteString("\n")

	if e.Location != "" {
		b.WriteString("  Location: ")
		b.WriteString(e.Location)
		b.WriteString("\n")
	}
	if e.Field != "" {
		b.WriteString("  Field: ")
		b.WriteString(e.Field)
		b.WriteString("\n")
	}
	for k, v := range e.Context {
		b.WriteString("  ")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\n")
	}

	b.WriteString("\n  ")
	b.WriteString(e.Message)
	b.WriteString("\n")

	if e.Hint != "" {
		b.WriteString("\nHint: ")
		b.WriteString(e.Hint)
		b.WriteString("\n")
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *DetailError) Unwrap() error {
	return e.Cause
}

// NewInvalidModuleError creates an invalid module error for a package file.
func NewInvalidModuleError(message, location string, cause error) error {
	return &DetailError{
		Type:     "invalid module",
		Message:  message,
		Location: location,
		Cause:    joinSentinel(ErrInvalidModule, cause),
	}
}

// NewNotFoundError creates a not found error with details.
func NewNotFoundError(message, location, hint string) error {
	return &DetailError{
		Type:     "not found",
		Message:  message,
		Location: location,
		Hint:     hint,
		Cause:    ErrNotFound,
	}
}

// NewConfigError creates a configuration error naming the offending key.
func NewConfigError(message, field, hint string) error {
	return &DetailError{
		Type:    "invalid configuration",
		Message: message,
		Field:   field,
		Hint:    hint,
		Cause:   ErrInvalidConfig,
	}
}

// NewPersistenceError creates a persistence error for the index document at location.
func NewPersistenceError(message, location string, cause error) error {
	return &DetailError{
		Type:     "persistence failed",
		Message:  message,
		Location: location,
		Hint:     "Check that the cache directory exists and is writable.",
		Cause:    joinSentinel(ErrPersistence, cause),
	}
}

// Wrap wraps an error with a sentinel error type.
func Wrap(sentinel error, message string) error {
	return fmt.Errorf("%s: %w", message, sentinel)
}

func joinSentinel(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

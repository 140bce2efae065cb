package cmd

import (
	"context"
	"errors"
	"io/fs"

	"github.com/modindex/modindex/internal/build"
	oerrors "github.com/modindex/modindex/internal/errors"
)

// ExitError wraps an error with an exit code.
type ExitError struct {
	Err  error
	Code int

	// Printed is set when the command already reported the error to the user.
	Printed bool
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given error and exit code.
func NewExitError(err error, code int) *ExitError {
	return &ExitError{Err: err, Code: code}
}

// ExitCodeFromError determines the appropriate exit code for an error.
func ExitCodeFromError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var buildErr *build.BuildError
	if errors.As(err, &buildErr) {
		switch buildErr.Kind {
		case build.KindPersistence:
			return ExitPersistenceError
		case build.KindCancelled:
			return ExitCancelled
		}
	}

	switch {
	case errors.Is(err, oerrors.ErrInvalidConfig), errors.Is(err, oerrors.ErrInvalidFilter):
		return ExitValidationError
	case errors.Is(err, oerrors.ErrPersistence):
		return ExitPersistenceError
	case errors.Is(err, oerrors.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return ExitNotFound
	case errors.Is(err, context.Canceled):
		return ExitCancelled
	default:
		return ExitGeneralError
	}
}

// exitError wraps err with the exit code derived from it.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return NewExitError(err, ExitCodeFromError(err))
}

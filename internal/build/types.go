package build

import (
	"fmt"
	"strings"
	"time"

	"github.com/modindex/modindex/internal/core"
	oerrors "github.com/modindex/modindex/internal/errors"
	"github.com/modindex/modindex/internal/output"
)

// Policy selects how Build runs.
type Policy string

const (
	// PolicySync runs the build on the caller's goroutine. Concurrent callers
	// for the same directory are serialized.
	PolicySync Policy = "sync"

	// PolicyAsync runs the build on a background goroutine per directory and
	// returns immediately.
	PolicyAsync Policy = "async"
)

// ParsePolicy parses a policy name. Empty selects PolicySync.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicySync:
		return PolicySync, nil
	case PolicyAsync:
		return PolicyAsync, nil
	default:
		return "", oerrors.NewConfigError(
			fmt.Sprintf("unknown build policy %q", s),
			"buildPolicy",
			"use sync or async",
		)
	}
}

// Status is the outcome of a Build call.
type Status string

const (
	StatusBuilt      Status = output.StatusBuilt
	StatusUpToDate   Status = output.StatusUpToDate
	StatusScheduled  Status = output.StatusScheduled
	StatusInProgress Status = output.StatusInProgress
	StatusFailed     Status = output.StatusFailed
)

// Stats counts the work done by a build.
type Stats struct {
	Files       int
	Updated     int
	Added       int
	Replaced    int
	Removed     int
	Skipped     int
	Conflicts   int
	Descriptors int
	Reconciled  int
	TypesFailed int
	Resources   int
	Duration    time.Duration
}

// ErrorKind classifies build failures.
type ErrorKind string

const (
	// KindScan is a failure to read the directory.
	KindScan ErrorKind = "scan"

	// KindPersistence is a failure to write the index document.
	KindPersistence ErrorKind = "persistence"

	// KindCancelled is a build abandoned through its context.
	KindCancelled ErrorKind = "cancelled"
)

// BuildError describes why a build failed.
type BuildError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *BuildError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
}

func (e *BuildError) Unwrap() error {
	return e.Cause
}

// Result is what Build returns.
type Result struct {
	// Dir is the absolute directory.
	Dir string

	Status Status

	// Index is the index callers should serve. On failure it is the last
	// successfully built index, or an empty one.
	Index *core.RepositoryIndex

	Stats Stats

	// Reason explains why a rebuild was needed.
	Reason string

	Err *BuildError
}

// OK reports whether the build did not fail.
func (r Result) OK() bool {
	return r.Err == nil
}

// AsError returns Err as an error, nil on success.
func (r Result) AsError() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

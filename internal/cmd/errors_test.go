package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modindex/modindex/internal/build"
	oerrors "github.com/modindex/modindex/internal/errors"
	"github.com/modindex/modindex/internal/metrics"
)

func TestExitCodeFromError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"nil error returns success", nil, ExitSuccess},
		{"invalid config", oerrors.NewConfigError("bad", "pattern", ""), ExitValidationError},
		{"invalid filter", fmt.Errorf("%w: oops", oerrors.ErrInvalidFilter), ExitValidationError},
		{"not found", oerrors.NewNotFoundError("gone", "", ""), ExitNotFound},
		{"missing file", fmt.Errorf("stat: %w", fs.ErrNotExist), ExitNotFound},
		{"persistence", oerrors.NewPersistenceError("write failed", "/tmp/x", nil), ExitPersistenceError},
		{
			"persistence build error",
			&build.BuildError{Kind: build.KindPersistence, Message: "saving", Cause: errors.New("disk full")},
			ExitPersistenceError,
		},
		{
			"cancelled build error",
			&build.BuildError{Kind: build.KindCancelled, Message: "merging", Cause: context.Canceled},
			ExitCancelled,
		},
		{
			"scan build error of missing directory",
			&build.BuildError{Kind: build.KindScan, Message: "scanning", Cause: fmt.Errorf("stat: %w", fs.ErrNotExist)},
			ExitNotFound,
		},
		{"explicit exit error", NewExitError(errors.New("x"), ExitValidationError), ExitValidationError},
		{"wrapped exit error", fmt.Errorf("outer: %w", NewExitError(errors.New("x"), ExitNotFound)), ExitNotFound},
		{"generic error", errors.New("boom"), ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, ExitCodeFromError(tt.err))
		})
	}
}

func TestExitError(t *testing.T) {
	inner := errors.New("inner")
	err := NewExitError(inner, ExitNotFound)

	assert.Equal(t, "inner", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.False(t, err.Printed)
}

func TestExitErrorHelper_KeepsExistingCode(t *testing.T) {
	assert.NoError(t, exitError(nil))

	orig := NewExitError(errors.New("x"), ExitCancelled)
	assert.Same(t, orig, exitError(orig))

	var got *ExitError
	require.ErrorAs(t, exitError(oerrors.ErrNotFound), &got)
	assert.Equal(t, ExitNotFound, got.Code)
}

func TestExitCodeName(t *testing.T) {
	assert.Equal(t, "Success", ExitCodeName(ExitSuccess))
	assert.Equal(t, "Validation Error", ExitCodeName(ExitValidationError))
	assert.Equal(t, "Persistence Error", ExitCodeName(ExitPersistenceError))
	assert.Equal(t, "Not Found", ExitCodeName(ExitNotFound))
	assert.Equal(t, "Cancelled", ExitCodeName(ExitCancelled))
	assert.Equal(t, "Unknown", ExitCodeName(99))
}

func TestSummarizeStats(t *testing.T) {
	s := summarizeStats(build.Stats{Resources: 1, Updated: 2, Skipped: 1, Conflicts: 2, Duration: 1500 * time.Microsecond})
	assert.Equal(t, "1 resource, 2 probed, 1 skipped, 2 conflicts, 2ms", s)
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveBuild(metrics.BuildObservation{Directory: "/repo", Outcome: metrics.OutcomeBuilt, Resources: 3})

	srv := httptest.NewServer(metricsHandler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `modindex_builds_total{outcome="built"} 1`)
	assert.Contains(t, string(body), `modindex_resources{directory="/repo"} 3`)
}

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/modindex/modindex/internal/build"
	"github.com/modindex/modindex/internal/config"
	"github.com/modindex/modindex/internal/core"
	"github.com/modindex/modindex/internal/metrics"
	"github.com/modindex/modindex/internal/output"
	"github.com/modindex/modindex/internal/repository"
	"github.com/modindex/modindex/internal/scan"
	"github.com/modindex/modindex/internal/store"
)

// sessionOpts overrides resolved settings for one command.
type sessionOpts struct {
	// Policy replaces the configured build policy when set.
	Policy build.Policy

	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// session bundles what a command needs to build and query indexes.
type session struct {
	coord *build.Coordinator
	admin *repository.Admin
}

// newSession wires a store, scanner and coordinator from the resolved settings.
func newSession(opts sessionOpts) (*session, error) {
	s := settings
	if s == nil {
		s = &config.Settings{BuildPolicy: config.DefaultBuildPolicy, Pattern: config.DefaultPattern}
	}

	policy := opts.Policy
	if policy == "" {
		p, err := build.ParsePolicy(s.BuildPolicy)
		if err != nil {
			return nil, exitError(err)
		}
		policy = p
	}

	scanner, err := scan.NewScanner(s.Pattern)
	if err != nil {
		return nil, exitError(err)
	}

	idxStore := store.NewIndexStore(s.CacheDir)
	if idxStore.Persistent() {
		output.Debug("persisting indexes", "cacheDir", idxStore.CacheDir(), "pattern", scanner.Pattern())
	} else {
		output.Debug("no cache directory configured, indexes are kept in memory", "pattern", scanner.Pattern())
	}

	coord, err := build.New(build.Options{
		Policy:  policy,
		Store:   idxStore,
		Scanner: scanner,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, exitError(err)
	}
	return &session{coord: coord, admin: repository.NewAdmin(coord)}, nil
}

// Close stops background builds.
func (s *session) Close() {
	s.coord.Close()
}

// resultError converts a failed build result into an ExitError.
func resultError(res build.Result) error {
	if res.OK() {
		return nil
	}
	return exitError(fmt.Errorf("building %s: %w", res.Dir, res.Err))
}

// summarizeStats renders the counters of a finished build on one line.
func summarizeStats(st build.Stats) string {
	parts := []string{
		output.FormatCount(st.Resources, "resource"),
		fmt.Sprintf("%d probed", st.Updated),
	}
	if st.Removed > 0 {
		parts = append(parts, fmt.Sprintf("%d removed", st.Removed))
	}
	if st.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", st.Skipped))
	}
	if st.Conflicts > 0 {
		parts = append(parts, output.FormatCount(st.Conflicts, "conflict"))
	}
	if st.TypesFailed > 0 {
		parts = append(parts, fmt.Sprintf("%d types failed", st.TypesFailed))
	}
	parts = append(parts, st.Duration.Round(time.Millisecond).String())
	return strings.Join(parts, ", ")
}

// resourceRows converts resources for table rendering.
func resourceRows(rs []*core.Resource) []output.ResourceRow {
	rows := make([]output.ResourceRow, 0, len(rs))
	for _, r := range rs {
		rows = append(rows, output.ResourceRow{
			Name:         r.Name,
			Version:      r.Version,
			Size:         r.Size,
			Capabilities: len(r.Capabilities),
			Requirements: len(r.Requirements),
			Modified:     r.LastModified,
			Path:         r.URI,
		})
	}
	return rows
}

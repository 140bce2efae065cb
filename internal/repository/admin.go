// Package repository is the consumer-facing view over the indexes of
// registered directories.
package repository

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"sync"

	"github.com/modindex/modindex/internal/build"
	"github.com/modindex/modindex/internal/core"
	oerrors "github.com/modindex/modindex/internal/errors"
)

// Admin tracks the registered repositories and answers resource queries
// across all of them. Indexes are always read from the coordinator, so a
// query sees the result of the latest successful build.
type Admin struct {
	coord *build.Coordinator

	mu   sync.RWMutex
	dirs []string
}

// NewAdmin creates an Admin backed by coord.
func NewAdmin(coord *build.Coordinator) *Admin {
	return &Admin{coord: coord}
}

// AddRepository registers the directory at location and builds its index.
// location is a file: URI or a plain path. The directory stays registered
// when the build fails; the failed Result is returned alongside the error.
func (a *Admin) AddRepository(ctx context.Context, location string) (build.Result, error) {
	dir, err := LocalPath(location)
	if err != nil {
		return build.Result{}, err
	}

	a.mu.Lock()
	if !slices.Contains(a.dirs, dir) {
		a.dirs = append(a.dirs, dir)
		slices.Sort(a.dirs)
	}
	a.mu.Unlock()

	res := a.coord.Build(ctx, dir)
	return res, res.AsError()
}

// Repositories returns the registered directories, sorted.
func (a *Admin) Repositories() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.dirs)
}

// GetResource returns the resource with the exact identity from the first
// repository that holds it.
func (a *Admin) GetResource(name, version string) (*core.Resource, error) {
	id := core.ModuleIdentity{Name: name, Version: version}
	for _, idx := range a.indexes() {
		if r, ok := idx.Get(id); ok {
			return r, nil
		}
	}
	return nil, oerrors.NewNotFoundError(
		fmt.Sprintf("resource %s not found", id),
		"",
		"run 'modindex show DIR' to list indexed resources",
	)
}

// LatestResource returns the highest version of name across all repositories.
func (a *Admin) LatestResource(name string) (*core.Resource, error) {
	var best *core.Resource
	for _, idx := range a.indexes() {
		r, ok := idx.Latest(name)
		if !ok {
			continue
		}
		if best == nil || core.CompareVersions(r.Version, best.Version) > 0 {
			best = r
		}
	}
	if best == nil {
		return nil, oerrors.NewNotFoundError(fmt.Sprintf("no versions of %s", name), "", "")
	}
	return best, nil
}

// DiscoverResources returns every resource matching the filter expression,
// ordered by name then version.
func (a *Admin) DiscoverResources(filter string) ([]*core.Resource, error) {
	f, err := core.ParseFilter(filter)
	if err != nil {
		return nil, err
	}
	var out []*core.Resource
	for _, idx := range a.indexes() {
		out = append(out, idx.Discover(f)...)
	}
	slices.SortStableFunc(out, func(x, y *core.Resource) int {
		return core.CompareIdentities(x.Identity(), y.Identity())
	})
	return out, nil
}

func (a *Admin) indexes() []*core.RepositoryIndex {
	var out []*core.RepositoryIndex
	for _, dir := range a.Repositories() {
		if idx, ok := a.coord.Index(dir); ok {
			out = append(out, idx)
		}
	}
	return out
}

// LocalPath converts a repository location to an absolute directory path.
// Only file: URIs and plain paths are accepted.
func LocalPath(location string) (string, error) {
	if filepath.VolumeName(location) != "" {
		return filepath.Abs(location)
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", oerrors.NewConfigError(fmt.Sprintf("invalid repository location %q", location), "location", "")
	}

	path := location
	switch u.Scheme {
	case "":
	case "file":
		path = u.Path
		if path == "" {
			path = u.Opaque
		}
	default:
		return "", oerrors.NewConfigError(
			fmt.Sprintf("unsupported repository scheme %q", u.Scheme),
			"location",
			"repositories must be local directories or file: URIs",
		)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return abs, nil
}

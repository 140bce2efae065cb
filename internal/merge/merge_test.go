package merge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modindex/modindex/internal/augment"
	"github.com/modindex/modindex/internal/core"
	"github.com/modindex/modindex/internal/scan"
	"github.com/modindex/modindex/internal/testutil"
)

var past = time.Now().Add(-2 * time.Hour).Truncate(time.Second)

// build runs one delta/augment/merge cycle over dir, the way the build
// coordinator does, and returns the merged clone.
func build(t *testing.T, idx *core.RepositoryIndex, dir string) (*core.RepositoryIndex, Report) {
	t.Helper()
	s, err := scan.NewScanner("")
	require.NoError(t, err)
	snap, err := s.Walk(dir)
	require.NoError(t, err)

	working := idx.Clone()
	start := time.Now().UTC()
	delta := scan.ComputeDelta(working, snap, New().readIdentity)
	pending := augment.New(nil).Start(context.Background(), delta.UpdatedPaths())

	rep, err := New().Merge(context.Background(), working, delta, pending)
	require.NoError(t, err)
	working.LastModified = start
	return working, rep
}

func module(name, version string) testutil.Module {
	return testutil.Module{Header: testutil.Header(name, version, nil, nil)}
}

func TestMerge_FreshDirectory(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteModule(t, dir, "a.modpkg", module("alpha", "1.0.0"))
	testutil.WriteModule(t, dir, "b.modpkg", module("beta", "2.0.0"))
	testutil.WriteFile(t, dir, "bad.modpkg", "not a zip")
	testutil.Settle(t, dir, past)

	idx, rep := build(t, core.NewRepositoryIndex(dir), dir)

	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, 2, rep.Added)
	assert.Equal(t, 1, rep.Skipped)

	skipped := idx.Skipped()
	require.Len(t, skipped, 1)
	assert.Equal(t, core.SkipInvalid, skipped[0].Reason)

	var total int64
	for _, name := range []string{"a.modpkg", "b.modpkg", "bad.modpkg"} {
		fi, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		total += fi.Size()
	}
	assert.Equal(t, total, idx.TotalSize, "total size covers indexed and skipped files")
}

func TestMerge_VersionBumpReplacesResource(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteModule(t, dir, "a.modpkg", module("alpha", "1.0.0"))
	testutil.Settle(t, dir, past)
	idx, _ := build(t, core.NewRepositoryIndex(dir), dir)

	testutil.WriteModule(t, dir, "a.modpkg", module("alpha", "1.1.0"))
	testutil.SetModTime(t, path, time.Now().Add(time.Minute))

	idx, rep := build(t, idx, dir)
	assert.Equal(t, 1, idx.Len())
	_, ok := idx.Get(core.ModuleIdentity{Name: "alpha", Version: "1.1.0"})
	assert.True(t, ok)
	_, ok = idx.Get(core.ModuleIdentity{Name: "alpha", Version: "1.0.0"})
	assert.False(t, ok)
	assert.Equal(t, 1, rep.Removed+rep.Replaced)
}

func TestMerge_RemovedFile(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteModule(t, dir, "a.modpkg", module("alpha", "1.0.0"))
	b := testutil.WriteModule(t, dir, "b.modpkg", module("beta", "1.0.0"))
	testutil.Settle(t, dir, past)
	idx, _ := build(t, core.NewRepositoryIndex(dir), dir)

	require.NoError(t, os.Remove(b))

	idx, rep := build(t, idx, dir)
	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, 1, rep.Removed)
	_, ok := idx.Get(core.ModuleIdentity{Name: "beta", Version: "1.0.0"})
	assert.False(t, ok)
}

func TestMerge_MovedFileKeepsResource(t *testing.T) {
	dir := t.TempDir()
	old := testutil.WriteModule(t, dir, "a.modpkg", module("alpha", "1.0.0"))
	testutil.Settle(t, dir, past)
	idx, _ := build(t, core.NewRepositoryIndex(dir), dir)

	moved := filepath.Join(dir, "sub", "a.modpkg")
	require.NoError(t, os.MkdirAll(filepath.Dir(moved), 0o755))
	require.NoError(t, os.Rename(old, moved))

	idx, _ = build(t, idx, dir)
	r, ok := idx.Get(core.ModuleIdentity{Name: "alpha", Version: "1.0.0"})
	require.True(t, ok)
	assert.Equal(t, moved, r.URI)
}

func TestMerge_IdentityConflict_LaterPathWins(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteModule(t, dir, "a.modpkg", module("alpha", "1.0.0"))
	b := testutil.WriteModule(t, dir, "b.modpkg", module("alpha", "1.0.0"))
	testutil.Settle(t, dir, past)

	idx, rep := build(t, core.NewRepositoryIndex(dir), dir)
	assert.Equal(t, 1, rep.Conflicts)

	r, ok := idx.Get(core.ModuleIdentity{Name: "alpha", Version: "1.0.0"})
	require.True(t, ok)
	assert.Equal(t, b, r.URI)

	s, ok := idx.SkippedAt(a)
	require.True(t, ok)
	assert.Equal(t, core.SkipIdentityConflict, s.Reason)
	assert.Equal(t, b, s.ConflictWith)

	// Removing the winner lets the loser claim the identity again.
	require.NoError(t, os.Remove(b))
	idx, _ = build(t, idx, dir)

	r, ok = idx.Get(core.ModuleIdentity{Name: "alpha", Version: "1.0.0"})
	require.True(t, ok)
	assert.Equal(t, a, r.URI)
	assert.Empty(t, idx.Skipped())
}

func TestMerge_AttachesDescriptors(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteModule(t, dir, "svc.modpkg", testutil.Module{
		Header: testutil.Header("svc", "1.0.0", []string{"com.acme.api"}, nil),
		Types: map[string]string{
			"com.acme.Greeter": testutil.ServiceType("com.acme.Greeter"),
			"com.acme.Client": "name: com.acme.Client\ntags: [service]\nfields:\n" +
				"  - name: log\n    type: com.acme.Log\n    tags: [inject, optional]\n",
		},
	})
	testutil.Settle(t, dir, past)

	idx, rep := build(t, core.NewRepositoryIndex(dir), dir)
	assert.Equal(t, 1, rep.Descriptors)

	r, ok := idx.Get(core.ModuleIdentity{Name: "svc", Version: "1.0.0"})
	require.True(t, ok)
	assert.Len(t, r.Capabilities, 3, "one package export and two services")
	assert.True(t, r.Matches(core.MustParseFilter("(service=com.acme.Greeter)")))

	require.Len(t, r.Requirements, 1)
	assert.Equal(t, "(&(service=com.acme.Log))", r.Requirements[0].Filter)
	assert.True(t, r.Requirements[0].Optional)
}

func TestMerge_ReconcileDropsResourceWithChangedIdentity(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteModule(t, dir, "a.modpkg", module("alpha", "1.0.0"))
	testutil.Settle(t, dir, past)

	idx := core.NewRepositoryIndex(dir)
	idx.LastModified = time.Now()

	// The file changes between delta and merge: the delta says nothing to
	// do, but the resource in the index no longer matches its file.
	idx.Put(&core.Resource{Name: "alpha", Version: "0.9.0", URI: path, Size: 1})

	rep, err := New().Merge(context.Background(), idx, scan.Delta{}, augment.Completed(augment.Result{}))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Reconciled)
	assert.Equal(t, 0, idx.Len())
}

func TestMerge_CancelledAugmentation(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteModule(t, dir, "a.modpkg", module("alpha", "1.0.0"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	idx := core.NewRepositoryIndex(dir)
	pending := augment.New(nil).Start(ctx, []string{filepath.Join(dir, "a.modpkg")})
	_, err := New().Merge(context.Background(), idx, scan.Delta{}, pending)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMerge_UsesInjectedProber(t *testing.T) {
	idx := core.NewRepositoryIndex("/virtual")
	calls := 0
	m := New(
		WithProber(func(path string) (*core.Resource, error) {
			calls++
			return &core.Resource{Name: "v", Version: "1.0.0", URI: path, Size: 4}, nil
		}),
		WithIdentityReader(func(string) (core.ModuleIdentity, error) {
			return core.ModuleIdentity{Name: "v", Version: "1.0.0"}, nil
		}),
	)

	delta := scan.Delta{Updated: []scan.File{{Path: "/virtual/v.modpkg", Size: 4}}}
	rep, err := m.Merge(context.Background(), idx, delta, augment.Completed(augment.Result{}))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rep.Added)
	assert.Equal(t, int64(4), idx.TotalSize)
}

package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper to build a Resource quickly
func res(name, version, uri string, size int64) *Resource {
	return &Resource{
		Name:         name,
		Version:      version,
		URI:          uri,
		Size:         size,
		LastModified: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// --- Put / Get / ByPath ---

func TestPut_NewIdentity(t *testing.T) {
	idx := NewRepositoryIndex("/repo")
	displaced := idx.Put(res("alpha", "1.0.0", "/repo/a.modpkg", 10))

	assert.Empty(t, displaced)
	assert.Equal(t, 1, idx.Len())

	r, ok := idx.ByPath("/repo/a.modpkg")
	require.True(t, ok)
	assert.Equal(t, "alpha", r.Name)
}

func TestPut_SameIdentityOtherPath_Displaces(t *testing.T) {
	idx := NewRepositoryIndex("/repo")
	idx.Put(res("alpha", "1.0.0", "/repo/a.modpkg", 10))

	displaced := idx.Put(res("alpha", "1.0.0", "/repo/b.modpkg", 12))
	require.Len(t, displaced, 1)
	assert.Equal(t, "/repo/a.modpkg", displaced[0].URI)

	_, ok := idx.ByPath("/repo/a.modpkg")
	assert.False(t, ok, "displaced path should no longer resolve")

	r, ok := idx.Get(ModuleIdentity{Name: "alpha", Version: "1.0.0"})
	require.True(t, ok)
	assert.Equal(t, "/repo/b.modpkg", r.URI)
}

func TestPut_SamePathNewIdentity_ReplacesOldSlot(t *testing.T) {
	idx := NewRepositoryIndex("/repo")
	idx.Put(res("alpha", "1.0.0", "/repo/a.modpkg", 10))

	displaced := idx.Put(res("alpha", "1.1.0", "/repo/a.modpkg", 11))
	require.Len(t, displaced, 1)
	assert.Equal(t, "1.0.0", displaced[0].Version)
	assert.Equal(t, 1, idx.Len())

	_, ok := idx.Get(ModuleIdentity{Name: "alpha", Version: "1.0.0"})
	assert.False(t, ok)
}

// --- Remove ---

func TestRemoveByIdentity(t *testing.T) {
	idx := NewRepositoryIndex("/repo")
	idx.Put(res("alpha", "1.0.0", "/repo/a.modpkg", 10))

	removed, ok := idx.RemoveByIdentity(ModuleIdentity{Name: "alpha", Version: "1.0.0"})
	require.True(t, ok)
	assert.Equal(t, "/repo/a.modpkg", removed.URI)
	assert.Equal(t, 0, idx.Len())

	_, ok = idx.ByPath("/repo/a.modpkg")
	assert.False(t, ok)

	_, ok = idx.RemoveByIdentity(ModuleIdentity{Name: "alpha", Version: "1.0.0"})
	assert.False(t, ok, "second remove is a no-op")
}

func TestRemoveByPath(t *testing.T) {
	idx := NewRepositoryIndex("/repo")
	idx.Put(res("alpha", "1.0.0", "/repo/a.modpkg", 10))
	idx.Put(res("beta", "1.0.0", "/repo/b.modpkg", 10))

	_, ok := idx.RemoveByPath("/repo/a.modpkg")
	require.True(t, ok)
	assert.Equal(t, 1, idx.Len())

	_, ok = idx.RemoveByPath("/repo/missing.modpkg")
	assert.False(t, ok)
}

// --- Ordering / queries ---

func TestResources_SortedByNameThenSemver(t *testing.T) {
	idx := NewRepositoryIndex("/repo")
	idx.Put(res("beta", "1.0.0", "/repo/b1.modpkg", 1))
	idx.Put(res("alpha", "1.10.0", "/repo/a3.modpkg", 1))
	idx.Put(res("alpha", "1.2.0", "/repo/a2.modpkg", 1))
	idx.Put(res("alpha", "1.0.0", "/repo/a1.modpkg", 1))

	var got []string
	for _, r := range idx.Resources() {
		got = append(got, r.Identity().String())
	}
	assert.Equal(t, []string{"alpha@1.0.0", "alpha@1.2.0", "alpha@1.10.0", "beta@1.0.0"}, got)
}

func TestLatest(t *testing.T) {
	idx := NewRepositoryIndex("/repo")
	idx.Put(res("alpha", "1.10.0", "/repo/a3.modpkg", 1))
	idx.Put(res("alpha", "1.9.0", "/repo/a2.modpkg", 1))

	r, ok := idx.Latest("alpha")
	require.True(t, ok)
	assert.Equal(t, "1.10.0", r.Version)

	_, ok = idx.Latest("gamma")
	assert.False(t, ok)
}

func TestDiscover_MatchesOwnAndCapabilityProperties(t *testing.T) {
	idx := NewRepositoryIndex("/repo")
	a := res("alpha", "1.0.0", "/repo/a.modpkg", 1)
	a.AddCapability(Capability{Kind: KindService, Properties: map[string]string{"service": "com.acme.Greeter"}})
	idx.Put(a)
	idx.Put(res("beta", "1.0.0", "/repo/b.modpkg", 1))

	found := idx.Discover(MustParseFilter("(service=com.acme.Greeter)"))
	require.Len(t, found, 1)
	assert.Equal(t, "alpha", found[0].Name)

	found = idx.Discover(MustParseFilter("(name=beta)"))
	require.Len(t, found, 1)
	assert.Equal(t, "beta", found[0].Name)

	assert.Empty(t, idx.Discover(MustParseFilter("(name=gamma)")))
}

// --- Skipped ledger / sizes ---

func TestSkippedAndTotalSize(t *testing.T) {
	idx := NewRepositoryIndex("/repo")
	idx.Put(res("alpha", "1.0.0", "/repo/a.modpkg", 100))
	idx.Skip(SkippedFile{Path: "/repo/z.modpkg", Size: 7, Reason: SkipInvalid})
	idx.Skip(SkippedFile{Path: "/repo/c.modpkg", Size: 3, Reason: SkipInvalid})

	assert.Equal(t, int64(110), idx.ComputeTotalSize())

	skipped := idx.Skipped()
	require.Len(t, skipped, 2)
	assert.Equal(t, "/repo/c.modpkg", skipped[0].Path, "skipped entries sort by path")

	assert.True(t, idx.Unskip("/repo/c.modpkg"))
	assert.False(t, idx.Unskip("/repo/c.modpkg"))
	assert.Equal(t, int64(107), idx.ComputeTotalSize())
}

func TestClone_IsIndependent(t *testing.T) {
	idx := NewRepositoryIndex("/repo")
	a := res("alpha", "1.0.0", "/repo/a.modpkg", 1)
	a.AddCapability(Capability{Kind: KindService, Properties: map[string]string{"service": "X"}})
	idx.Put(a)

	clone := idx.Clone()
	clone.RemoveByIdentity(a.Identity())
	clone.Put(res("beta", "1.0.0", "/repo/b.modpkg", 1))

	assert.Equal(t, 1, idx.Len())
	_, ok := idx.Get(a.Identity())
	assert.True(t, ok)

	clone2 := idx.Clone()
	r, _ := clone2.Get(a.Identity())
	r.Capabilities[0].Properties["service"] = "Y"
	assert.Equal(t, "X", a.Capabilities[0].Properties["service"], "capability maps are copied")
}

// --- Resource helpers ---

func TestAddCapability_Deduplicates(t *testing.T) {
	r := res("alpha", "1.0.0", "/repo/a.modpkg", 1)
	c := Capability{Kind: KindService, Properties: map[string]string{"service": "X"}}

	assert.True(t, r.AddCapability(c))
	assert.False(t, r.AddCapability(Capability{Kind: KindService, Properties: map[string]string{"service": "X"}}))
	assert.Len(t, r.Capabilities, 1)

	q := Requirement{Kind: KindService, Filter: "(&(service=Y))", Optional: true}
	assert.True(t, r.AddRequirement(q))
	assert.False(t, r.AddRequirement(q))
	assert.Len(t, r.Requirements, 1)
}

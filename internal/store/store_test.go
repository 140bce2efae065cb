package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modindex/modindex/internal/core"
	oerrors "github.com/modindex/modindex/internal/errors"
)

func sampleIndex(dir string) *core.RepositoryIndex {
	idx := core.NewRepositoryIndex(dir)
	idx.LastModified = time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)
	idx.Put(&core.Resource{
		Name:         "beta",
		Version:      "1.10.0",
		URI:          filepath.Join(dir, "beta.modpkg"),
		Size:         20,
		LastModified: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Capabilities: []core.Capability{
			{Kind: core.KindService, Properties: map[string]string{"service": "com.acme.Greeter"}},
		},
		Requirements: []core.Requirement{
			{Kind: core.KindService, Filter: "(&(service=com.acme.Log))", Optional: true},
		},
	})
	idx.Put(&core.Resource{
		Name:         "alpha",
		Version:      "1.0.0",
		URI:          filepath.Join(dir, "alpha.modpkg"),
		Size:         10,
		LastModified: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
	})
	idx.Skip(core.SkippedFile{
		Path:     filepath.Join(dir, "broken.modpkg"),
		Size:     5,
		Modified: time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC),
		Reason:   core.SkipInvalid,
	})
	idx.TotalSize = idx.ComputeTotalSize()
	return idx
}

func TestMarshal_RoundTripAndDeterminism(t *testing.T) {
	idx := sampleIndex("/repo")

	first, err := Marshal(idx)
	require.NoError(t, err)
	second, err := Marshal(idx.Clone())
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	text := string(first)
	assert.Contains(t, text, "apiVersion: modindex.dev/v1alpha1")
	assert.Contains(t, text, "kind: RepositoryIndex")
	assert.Contains(t, text, "filter: (&(service=com.acme.Log))")
	assert.Less(t, strings.Index(text, "name: alpha"), strings.Index(text, "name: beta"), "resources sorted by name")

	back, err := Unmarshal(first)
	require.NoError(t, err)
	assert.Equal(t, idx.Len(), back.Len())
	assert.Equal(t, idx.TotalSize, back.TotalSize)
	assert.True(t, idx.LastModified.Equal(back.LastModified))
	assert.Len(t, back.Skipped(), 1)

	r, ok := back.Get(core.ModuleIdentity{Name: "beta", Version: "1.10.0"})
	require.True(t, ok)
	require.Len(t, r.Requirements, 1)
	assert.True(t, r.Requirements[0].Optional)

	again, err := Marshal(back)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(again))
}

func TestUnmarshal_RejectsForeignDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"wrong kind", "apiVersion: modindex.dev/v1alpha1\nkind: Other\n"},
		{"wrong version", "apiVersion: modindex.dev/v2\nkind: RepositoryIndex\n"},
		{"not yaml", "{{{"},
		{"duplicate", "apiVersion: modindex.dev/v1alpha1\nkind: RepositoryIndex\nresources:\n" +
			"  - {name: a, version: 1.0.0, uri: /x/a}\n  - {name: a, version: 1.0.0, uri: /x/b}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestIndexStore_SaveAndLoad(t *testing.T) {
	cache := t.TempDir()
	s := NewIndexStore(cache)
	require.True(t, s.Persistent())

	idx := sampleIndex("/repo")
	require.NoError(t, s.Save(idx))

	path := s.PathFor("/repo")
	assert.Equal(t, cache, filepath.Dir(path))
	assert.Regexp(t, `^index-[0-9a-f]{16}\.yaml$`, filepath.Base(path))
	assert.FileExists(t, path)

	entries, err := os.ReadDir(cache)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")

	// A fresh store reads the document back.
	fresh := NewIndexStore(cache)
	loaded, found, err := fresh.Load("/repo")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, loaded.Len())
	assert.Equal(t, []string{"/repo"}, fresh.Directories())

	cur, ok := fresh.Current("/repo")
	require.True(t, ok)
	assert.Same(t, loaded, cur)
}

func TestIndexStore_LoadMissing(t *testing.T) {
	s := NewIndexStore(t.TempDir())
	idx, found, err := s.Load("/nowhere")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, idx)
}

func TestIndexStore_LoadCorruptDocumentIsMissing(t *testing.T) {
	s := NewIndexStore(t.TempDir())
	require.NoError(t, os.WriteFile(s.PathFor("/repo"), []byte("kind: ["), 0o644))

	_, found, err := s.Load("/repo")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIndexStore_LoadDocumentForOtherDirectory(t *testing.T) {
	s := NewIndexStore(t.TempDir())
	data, err := Marshal(sampleIndex("/elsewhere"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.PathFor("/repo"), data, 0o644))

	_, found, err := s.Load("/repo")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIndexStore_SaveFailureKeepsPreviousDocument(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	cache := t.TempDir()
	s := NewIndexStore(cache)

	first := sampleIndex("/repo")
	require.NoError(t, s.Save(first))
	before, err := os.ReadFile(s.PathFor("/repo"))
	require.NoError(t, err)

	require.NoError(t, os.Chmod(cache, 0o555))
	t.Cleanup(func() { _ = os.Chmod(cache, 0o755) })

	second := sampleIndex("/repo")
	second.RemoveByIdentity(core.ModuleIdentity{Name: "alpha", Version: "1.0.0"})
	err = s.Save(second)
	require.Error(t, err)
	assert.ErrorIs(t, err, oerrors.ErrPersistence)

	after, err := os.ReadFile(s.PathFor("/repo"))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	cur, _ := s.Current("/repo")
	assert.Same(t, first, cur, "failed save does not replace the current index")
}

func TestIndexStore_InMemory(t *testing.T) {
	s := NewIndexStore("")
	assert.False(t, s.Persistent())
	assert.Empty(t, s.PathFor("/repo"))

	_, found, err := s.Load("/repo")
	require.NoError(t, err)
	assert.False(t, found)

	idx := sampleIndex("/repo")
	require.NoError(t, s.Save(idx))

	got, found, err := s.Load("/repo")
	require.NoError(t, err)
	require.True(t, found)
	assert.Same(t, idx, got)
}

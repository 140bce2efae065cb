// Package testutil provides test helpers for building module package fixtures.
package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

// HeaderEntry is the archive entry holding the module header.
const HeaderEntry = "module.cue"

// Module describes the contents of a module package fixture.
type Module struct {
	// Header is the raw module.cue content. Empty omits the entry.
	Header string

	// Types maps fully qualified type names to YAML type documents.
	Types map[string]string

	// Files holds extra archive entries keyed by entry name.
	Files map[string]string
}

// Header renders a module.cue body. Empty name or version omits the key.
func Header(name, version string, exports, imports []string) string {
	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "name: %q\n", name)
	}
	if version != "" {
		fmt.Fprintf(&b, "version: %q\n", version)
	}
	if len(exports) > 0 {
		fmt.Fprintf(&b, "exports: [%s]\n", quoteList(exports))
	}
	if len(imports) > 0 {
		fmt.Fprintf(&b, "imports: [%s]\n", quoteList(imports))
	}
	return b.String()
}

// ServiceType renders a type document tagged as a service.
func ServiceType(name string) string {
	return fmt.Sprintf("name: %s\ntags: [service]\n", name)
}

// ConsumerType renders a type document with injected service fields.
// Fields named in optional also carry the optional tag.
func ConsumerType(name string, injected map[string]string, optional ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "name: %s\nfields:\n", name)
	keys := make([]string, 0, len(injected))
	for k := range injected {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, field := range keys {
		tags := "[inject]"
		if slices.Contains(optional, field) {
			tags = "[inject, optional]"
		}
		fmt.Fprintf(&b, "  - name: %s\n    type: %s\n    tags: %s\n", field, injected[field], tags)
	}
	return b.String()
}

// Archive builds the zip bytes for m.
func Archive(t *testing.T, m Module) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	write := func(name, content string) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to create archive entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write archive entry %s: %v", name, err)
		}
	}

	if m.Header != "" {
		write(HeaderEntry, m.Header)
	}
	for _, name := range sortedKeys(m.Types) {
		write(TypeEntry(name), m.Types[name])
	}
	for _, name := range sortedKeys(m.Files) {
		write(name, m.Files[name])
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish archive: %v", err)
	}
	return buf.Bytes()
}

// TypeEntry returns the archive entry name for a fully qualified type name.
func TypeEntry(name string) string {
	return "types/" + strings.ReplaceAll(name, ".", "/") + ".yaml"
}

// WriteModule writes m as a module package at dir/name and returns its path.
func WriteModule(t *testing.T, dir, name string, m Module) string {
	t.Helper()
	return WriteFile(t, dir, name, string(Archive(t, m)))
}

// WriteFile creates a file with the given content in the specified directory.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create parent dirs for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	return path
}

// SetModTime sets the access and modification times of path.
func SetModTime(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("failed to set mtime on %s: %v", path, err)
	}
}

// Settle backdates every file and directory under root, root included, to mtime.
// Tests use it so fixtures predate the build that indexes them.
func Settle(t *testing.T, root string, mtime time.Time) {
	t.Helper()
	var paths []string
	err := filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		t.Fatalf("failed to walk %s: %v", root, err)
	}
	// Children first so touching a file never bumps its directory afterwards.
	slices.Reverse(paths)
	for _, p := range paths {
		SetModTime(t, p, mtime)
	}
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

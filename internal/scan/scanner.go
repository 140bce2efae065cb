// Package scan walks watched directories and decides what an index build
// has to do: whether the index is stale, and which files changed.
package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/modindex/modindex/internal/output"
)

// DefaultPattern selects module packages anywhere under the watched directory.
const DefaultPattern = "**/*.modpkg"

// File is a matching file observed during a walk.
type File struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Dir is a directory observed during a walk.
type Dir struct {
	Path    string
	ModTime time.Time
}

// Snapshot is the state of a watched directory at one point in time.
type Snapshot struct {
	// Root is the absolute path of the watched directory.
	Root string

	// Dirs lists every visited directory, root first.
	Dirs []Dir

	// Files lists the matching files ordered by path.
	Files []File

	byPath map[string]File
}

// TotalSize sums the sizes of the matching files.
func (s *Snapshot) TotalSize() int64 {
	var total int64
	for _, f := range s.Files {
		total += f.Size
	}
	return total
}

// Lookup returns the file observed at path.
func (s *Snapshot) Lookup(path string) (File, bool) {
	f, ok := s.byPath[path]
	return f, ok
}

// Scanner walks a directory for files matching a doublestar pattern.
type Scanner struct {
	pattern  string
	excluded []string
}

// NewScanner validates pattern and returns a Scanner. An empty pattern
// selects DefaultPattern.
func NewScanner(pattern string) (*Scanner, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid module pattern %q", pattern)
	}
	return &Scanner{pattern: pattern}, nil
}

// Pattern returns the glob the scanner matches against.
func (s *Scanner) Pattern() string {
	return s.pattern
}

// WithExcluded returns a copy of s that neither descends into nor records the
// given directories. Empty entries are ignored.
func (s *Scanner) WithExcluded(dirs ...string) *Scanner {
	out := &Scanner{pattern: s.pattern, excluded: slices.Clone(s.excluded)}
	for _, d := range dirs {
		if d == "" {
			continue
		}
		abs, err := filepath.Abs(d)
		if err != nil {
			continue
		}
		if !slices.Contains(out.excluded, abs) {
			out.excluded = append(out.excluded, abs)
		}
	}
	return out
}

// Excludes reports whether the directory at the absolute path is excluded.
func (s *Scanner) Excludes(path string) bool {
	return slices.Contains(s.excluded, filepath.Clean(path))
}

// Match reports whether rel, a path relative to the watched directory, is
// selected by the scanner's pattern.
func (s *Scanner) Match(rel string) bool {
	matched, err := doublestar.Match(s.pattern, filepath.ToSlash(rel))
	return err == nil && matched
}

// Walk records every directory and matching regular file under dir.
// Hidden and excluded directories are not descended into. An unreadable root is an error;
// unreadable subdirectories are logged and skipped.
func (s *Scanner) Walk(dir string) (*Snapshot, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	snap := &Snapshot{Root: root, byPath: make(map[string]File)}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			output.Warn("skipping unreadable path", "path", path, "err", walkErr)
			return nil
		}

		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || s.Excludes(path)) {
				return filepath.SkipDir
			}
			fi, err := d.Info()
			if err != nil {
				return nil //nolint:nilerr // vanished between readdir and stat
			}
			snap.Dirs = append(snap.Dirs, Dir{Path: path, ModTime: fi.ModTime().UTC()})
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || !s.Match(rel) {
			return nil //nolint:nilerr // not ours
		}
		fi, err := d.Info()
		if err != nil {
			return nil //nolint:nilerr // vanished between readdir and stat
		}
		f := File{Path: path, Size: fi.Size(), ModTime: fi.ModTime().UTC()}
		snap.Files = append(snap.Files, f)
		snap.byPath[path] = f
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	slices.SortFunc(snap.Files, func(a, b File) int {
		return strings.Compare(a.Path, b.Path)
	})
	return snap, nil
}

package scan

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/modindex/modindex/internal/core"
)

// Staleness is the verdict of a staleness check.
type Staleness struct {
	Stale  bool
	Reason string

	// Snapshot is set when the check had to walk the directory.
	Snapshot *Snapshot
}

// Check decides whether idx still reflects dir. It first compares the
// directory's own modification time, which needs no walk; only when that is
// inconclusive does it walk and defer to IsStale.
func (s *Scanner) Check(idx *core.RepositoryIndex, dir string) (Staleness, error) {
	if idx == nil || idx.LastModified.IsZero() {
		return Staleness{Stale: true, Reason: "no index"}, nil
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return Staleness{}, fmt.Errorf("resolving %s: %w", dir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return Staleness{}, fmt.Errorf("stat %s: %w", root, err)
	}
	if info.ModTime().After(idx.LastModified) {
		return Staleness{Stale: true, Reason: "directory modified"}, nil
	}

	snap, err := s.Walk(root)
	if err != nil {
		return Staleness{}, err
	}
	stale, reason := IsStale(idx, snap)
	return Staleness{Stale: stale, Reason: reason, Snapshot: snap}, nil
}

// IsStale reports whether idx no longer reflects snap. A directory or file
// modified after the index was built makes it stale, as does a change in the
// summed size of the matching files; the size check catches removals that do
// not bump a timestamp.
func IsStale(idx *core.RepositoryIndex, snap *Snapshot) (bool, string) {
	if idx == nil || idx.LastModified.IsZero() {
		return true, "no index"
	}
	built := idx.LastModified

	for _, d := range snap.Dirs {
		if d.ModTime.After(built) {
			return true, "directory modified: " + d.Path
		}
	}
	for _, f := range snap.Files {
		if f.ModTime.After(built) {
			return true, "file modified: " + f.Path
		}
	}
	if total := snap.TotalSize(); total != idx.TotalSize {
		return true, fmt.Sprintf("total size changed: %d -> %d", idx.TotalSize, total)
	}
	return false, ""
}

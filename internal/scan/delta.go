package scan

import (
	"slices"
	"strings"

	"github.com/modindex/modindex/internal/core"
)

// IdentityReader reads the identity declared by the package at path.
type IdentityReader func(path string) (core.ModuleIdentity, error)

// Delta is the work a build has to do.
type Delta struct {
	// Updated lists files that must be probed, ordered by path.
	Updated []File

	// PossiblyRemoved lists resources that may no longer belong in the index.
	PossiblyRemoved []*core.Resource

	// Unchanged counts files that need no work.
	Unchanged int
}

// UpdatedPaths returns the paths of the updated files.
func (d Delta) UpdatedPaths() []string {
	out := make([]string, len(d.Updated))
	for i, f := range d.Updated {
		out[i] = f.Path
	}
	return out
}

// Empty reports whether the delta requires no work.
func (d Delta) Empty() bool {
	return len(d.Updated) == 0 && len(d.PossiblyRemoved) == 0
}

// ComputeDelta compares snap with idx.
//
// A file is updated when it was modified after the index was built, when no
// resource was built from its path, when its size differs from that
// resource's, or when its declared identity no longer matches. A resource is
// possibly removed when its file is gone or now declares another identity.
// Skipped files are only revisited once their size or timestamp changes.
func ComputeDelta(idx *core.RepositoryIndex, snap *Snapshot, readIdentity IdentityReader) Delta {
	var d Delta
	built := idx.LastModified

	for _, f := range snap.Files {
		modified := f.ModTime.After(built)

		if r, ok := idx.ByPath(f.Path); ok {
			if modified || f.Size != r.Size {
				d.Updated = append(d.Updated, f)
				continue
			}
			id, err := readIdentity(f.Path)
			if err != nil || id != r.Identity() {
				d.Updated = append(d.Updated, f)
				d.PossiblyRemoved = append(d.PossiblyRemoved, r)
				continue
			}
			d.Unchanged++
			continue
		}

		if s, ok := idx.SkippedAt(f.Path); ok && !modified && s.Size == f.Size {
			d.Unchanged++
			continue
		}
		d.Updated = append(d.Updated, f)
	}

	for _, r := range idx.Resources() {
		if _, ok := snap.Lookup(r.URI); !ok {
			d.PossiblyRemoved = append(d.PossiblyRemoved, r)
		}
	}

	d.requeueConflictLosers(idx, snap)
	return d
}

// requeueConflictLosers marks as updated every file that lost an identity
// conflict to a file that is itself updated, possibly removed, or no longer
// indexed, so the loser can claim the identity again.
func (d *Delta) requeueConflictLosers(idx *core.RepositoryIndex, snap *Snapshot) {
	contested := make(map[string]bool, len(d.Updated)+len(d.PossiblyRemoved))
	for _, f := range d.Updated {
		contested[f.Path] = true
	}
	for _, r := range d.PossiblyRemoved {
		contested[r.URI] = true
	}

	added := false
	for _, s := range idx.Skipped() {
		if s.ConflictWith == "" {
			continue
		}
		f, ok := snap.Lookup(s.Path)
		if !ok || slices.ContainsFunc(d.Updated, func(u File) bool { return u.Path == s.Path }) {
			continue
		}
		if _, held := idx.ByPath(s.ConflictWith); held && !contested[s.ConflictWith] {
			continue
		}
		d.Updated = append(d.Updated, f)
		d.Unchanged--
		added = true
	}
	if added {
		slices.SortFunc(d.Updated, func(a, b File) int {
			return strings.Compare(a.Path, b.Path)
		})
	}
}

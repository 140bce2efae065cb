package core

import (
	"slices"
	"strings"
	"time"
)

// Reasons recorded on skipped files.
const (
	// SkipInvalid marks a file that is not a readable module package.
	SkipInvalid = "invalid module"

	// SkipIdentityConflict marks a file displaced by another file with the same identity.
	SkipIdentityConflict = "identity conflict"
)

// SkippedFile is a matching file that contributed no resource to the index.
// It is kept so the file is not re-probed until it changes.
type SkippedFile struct {
	Path     string    `json:"path" yaml:"path"`
	Size     int64     `json:"size" yaml:"size"`
	Modified time.Time `json:"modified" yaml:"modified"`
	Reason   string    `json:"reason" yaml:"reason"`

	// ConflictWith is the path of the file that won an identity conflict.
	ConflictWith string `json:"conflictWith,omitempty" yaml:"conflictWith,omitempty"`
}

// RepositoryIndex is the catalogue of resources built from one directory.
// An identity maps to at most one resource and a path hosts at most one resource.
//
// RepositoryIndex is not safe for concurrent mutation. Builds work on a Clone.
type RepositoryIndex struct {
	// Directory is the absolute path of the indexed directory.
	Directory string

	// LastModified is the start time of the build that produced the index.
	LastModified time.Time

	// TotalSize is the sum of the sizes of every indexed and skipped file.
	TotalSize int64

	resources map[ModuleIdentity]*Resource
	byPath    map[string]ModuleIdentity
	skipped   map[string]SkippedFile
}

// NewRepositoryIndex returns an empty index for dir.
func NewRepositoryIndex(dir string) *RepositoryIndex {
	return &RepositoryIndex{
		Directory: dir,
		resources: make(map[ModuleIdentity]*Resource),
		byPath:    make(map[string]ModuleIdentity),
		skipped:   make(map[string]SkippedFile),
	}
}

// Len returns the number of resources.
func (x *RepositoryIndex) Len() int {
	return len(x.resources)
}

// IsEmpty reports whether the index holds neither resources nor skipped files.
func (x *RepositoryIndex) IsEmpty() bool {
	return len(x.resources) == 0 && len(x.skipped) == 0
}

// Get returns the resource with the given identity.
func (x *RepositoryIndex) Get(id ModuleIdentity) (*Resource, bool) {
	r, ok := x.resources[id]
	return r, ok
}

// ByPath returns the resource built from path.
func (x *RepositoryIndex) ByPath(path string) (*Resource, bool) {
	id, ok := x.byPath[path]
	if !ok {
		return nil, false
	}
	return x.resources[id], true
}

// Put inserts r, replacing any resource with the same identity and any
// resource previously built from the same path. The replaced resources are
// returned so callers can tell an update from an identity conflict.
func (x *RepositoryIndex) Put(r *Resource) []*Resource {
	var displaced []*Resource

	if prev, ok := x.resources[r.Identity()]; ok {
		delete(x.byPath, prev.URI)
		displaced = append(displaced, prev)
	}
	if id, ok := x.byPath[r.URI]; ok && id != r.Identity() {
		displaced = append(displaced, x.resources[id])
		delete(x.resources, id)
	}

	x.resources[r.Identity()] = r
	x.byPath[r.URI] = r.Identity()
	return displaced
}

// RemoveByIdentity deletes the resource with the given identity.
func (x *RepositoryIndex) RemoveByIdentity(id ModuleIdentity) (*Resource, bool) {
	r, ok := x.resources[id]
	if !ok {
		return nil, false
	}
	delete(x.resources, id)
	if x.byPath[r.URI] == id {
		delete(x.byPath, r.URI)
	}
	return r, true
}

// RemoveByPath deletes the resource built from path.
func (x *RepositoryIndex) RemoveByPath(path string) (*Resource, bool) {
	id, ok := x.byPath[path]
	if !ok {
		return nil, false
	}
	return x.RemoveByIdentity(id)
}

// Resources returns all resources ordered by name, then semantic version.
func (x *RepositoryIndex) Resources() []*Resource {
	out := make([]*Resource, 0, len(x.resources))
	for _, r := range x.resources {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *Resource) int {
		if c := CompareIdentities(a.Identity(), b.Identity()); c != 0 {
			return c
		}
		return strings.Compare(a.Version, b.Version)
	})
	return out
}

// Versions returns every resource named name, lowest version first.
func (x *RepositoryIndex) Versions(name string) []*Resource {
	var out []*Resource
	for _, r := range x.Resources() {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}

// Latest returns the resource named name with the highest version.
func (x *RepositoryIndex) Latest(name string) (*Resource, bool) {
	versions := x.Versions(name)
	if len(versions) == 0 {
		return nil, false
	}
	return versions[len(versions)-1], true
}

// Discover returns the resources matched by f, in Resources order.
func (x *RepositoryIndex) Discover(f Filter) []*Resource {
	var out []*Resource
	for _, r := range x.Resources() {
		if r.Matches(f) {
			out = append(out, r)
		}
	}
	return out
}

// Skip records a file that contributed no resource.
func (x *RepositoryIndex) Skip(s SkippedFile) {
	x.skipped[s.Path] = s
}

// Unskip forgets a skipped file.
func (x *RepositoryIndex) Unskip(path string) bool {
	_, ok := x.skipped[path]
	delete(x.skipped, path)
	return ok
}

// SkippedAt returns the skipped entry for path.
func (x *RepositoryIndex) SkippedAt(path string) (SkippedFile, bool) {
	s, ok := x.skipped[path]
	return s, ok
}

// Skipped returns all skipped files ordered by path.
func (x *RepositoryIndex) Skipped() []SkippedFile {
	out := make([]SkippedFile, 0, len(x.skipped))
	for _, s := range x.skipped {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b SkippedFile) int {
		return strings.Compare(a.Path, b.Path)
	})
	return out
}

// ComputeTotalSize sums the sizes of every resource and skipped file.
func (x *RepositoryIndex) ComputeTotalSize() int64 {
	var total int64
	for _, r := range x.resources {
		total += r.Size
	}
	for _, s := range x.skipped {
		total += s.Size
	}
	return total
}

// Clone returns a deep copy that can be mutated without affecting x.
func (x *RepositoryIndex) Clone() *RepositoryIndex {
	out := NewRepositoryIndex(x.Directory)
	out.LastModified = x.LastModified
	out.TotalSize = x.TotalSize
	for id, r := range x.resources {
		out.resources[id] = r.Clone()
	}
	for path, id := range x.byPath {
		out.byPath[path] = id
	}
	for path, s := range x.skipped {
		out.skipped[path] = s
	}
	return out
}

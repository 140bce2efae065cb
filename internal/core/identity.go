// Package core defines the index data model shared by every indexer package.
// It depends only on stdlib and Masterminds/semver; no CUE, no I/O.
package core

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// DefaultVersion is assigned to modules whose header omits a version.
const DefaultVersion = "0.0.0"

// ModuleIdentity is the (name, version) pair that names a resource slot in an index.
type ModuleIdentity struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// String renders the identity as name@version.
func (id ModuleIdentity) String() string {
	return id.Name + "@" + id.Version
}

// IsZero reports whether neither name nor version is set.
func (id ModuleIdentity) IsZero() bool {
	return id.Name == "" && id.Version == ""
}

// CompareVersions orders two version strings semantically.
// Versions that do not parse as semver sort before those that do and are
// compared lexically among themselves.
func CompareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)

	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA != nil && errB == nil:
		return -1
	case errA == nil && errB != nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// CompareIdentities orders identities by name, then by version.
func CompareIdentities(a, b ModuleIdentity) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return CompareVersions(a.Version, b.Version)
}

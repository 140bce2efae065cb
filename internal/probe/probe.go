package probe

import (
	"path/filepath"
	"strings"

	"github.com/modindex/modindex/internal/core"
	oerrors "github.com/modindex/modindex/internal/errors"
	"github.com/modindex/modindex/internal/output"
)

// Probe reads the module package at path and returns its resource, with
// capabilities and requirements derived from the header's export and import
// lists. Files that cannot serve as a module yield an error wrapping
// ErrInvalidModule; the caller decides how to record them.
func Probe(path string) (*core.Resource, error) {
	a, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	h, err := a.Header()
	if err != nil {
		output.Debug("header unreadable", "path", path, "err", err)
		return nil, err
	}
	if h.Empty() {
		return nil, oerrors.NewInvalidModuleError("header declares no module keys", path, nil)
	}

	id := h.Identity(Stem(path))
	r := &core.Resource{
		Name:         id.Name,
		Version:      id.Version,
		URI:          path,
		Size:         a.Size,
		LastModified: a.ModTime,
	}

	for _, e := range h.Exports {
		c, err := exportCapability(e)
		if err != nil {
			return nil, oerrors.NewInvalidModuleError("malformed export", path, err)
		}
		r.AddCapability(c)
	}
	for _, e := range h.Imports {
		q, err := importRequirement(e)
		if err != nil {
			return nil, oerrors.NewInvalidModuleError("malformed import", path, err)
		}
		r.AddRequirement(q)
	}

	output.Debug("probed module", "path", path, "identity", id,
		"capabilities", len(r.Capabilities), "requirements", len(r.Requirements))
	return r, nil
}

// ReadIdentity returns the identity declared by the package at path without
// building a full resource.
func ReadIdentity(path string) (core.ModuleIdentity, error) {
	a, err := Open(path)
	if err != nil {
		return core.ModuleIdentity{}, err
	}
	defer a.Close()

	h, err := a.Header()
	if err != nil {
		return core.ModuleIdentity{}, err
	}
	if h.Empty() {
		return core.ModuleIdentity{}, oerrors.NewInvalidModuleError("header declares no module keys", path, nil)
	}
	return h.Identity(Stem(path)), nil
}

// Stem returns the file name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

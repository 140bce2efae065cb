// Package probe reads module package files and turns their headers into
// index resources.
package probe

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	oerrors "github.com/modindex/modindex/internal/errors"
)

const (
	// HeaderEntry is the archive entry holding the module header.
	HeaderEntry = "module.cue"

	// maxEntrySize bounds how much of a single entry is read into memory.
	maxEntrySize = 16 << 20
)

// Archive is an open module package.
type Archive struct {
	// Path is the file path the archive was opened from.
	Path string

	// Size is the file size in bytes.
	Size int64

	// ModTime is the file modification time in UTC.
	ModTime time.Time

	rc      *zip.ReadCloser
	entries map[string]*zip.File
}

// Open opens the module package at path. A file that is not a zip archive
// yields an error wrapping ErrInvalidModule.
func Open(path string) (*Archive, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, oerrors.NewInvalidModuleError("path is a directory", path, nil)
	}

	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, oerrors.NewInvalidModuleError("not a module package archive", path, err)
	}

	a := &Archive{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime().UTC(),
		rc:      rc,
		entries: make(map[string]*zip.File, len(rc.File)),
	}
	for _, f := range rc.File {
		a.entries[f.Name] = f
	}
	return a, nil
}

// Close releases the underlying file.
func (a *Archive) Close() error {
	return a.rc.Close()
}

// Has reports whether the archive contains the named entry.
func (a *Archive) Has(name string) bool {
	_, ok := a.entries[name]
	return ok
}

// ReadEntry returns the contents of the named entry.
func (a *Archive) ReadEntry(name string) ([]byte, error) {
	f, ok := a.entries[name]
	if !ok {
		return nil, fmt.Errorf("entry %s: %w", name, oerrors.ErrNotFound)
	}
	r, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening entry %s: %w", name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, maxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("reading entry %s: %w", name, err)
	}
	if len(data) > maxEntrySize {
		return nil, fmt.Errorf("entry %s exceeds %d bytes", name, maxEntrySize)
	}
	return data, nil
}

// EntryNames returns the sorted names of non-directory entries under prefix.
func (a *Archive) EntryNames(prefix string) []string {
	var names []string
	for name := range a.entries {
		if strings.HasPrefix(name, prefix) && !strings.HasSuffix(name, "/") {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Header reads and validates the module header. Every failure wraps
// ErrInvalidModule.
func (a *Archive) Header() (*Header, error) {
	if !a.Has(HeaderEntry) {
		return nil, oerrors.NewInvalidModuleError("archive has no "+HeaderEntry+" entry", a.Path, nil)
	}
	data, err := a.ReadEntry(HeaderEntry)
	if err != nil {
		return nil, oerrors.NewInvalidModuleError("header could not be read", a.Path, err)
	}
	h, err := ParseHeader(data, a.Path+"!/"+HeaderEntry)
	if err != nil {
		return nil, oerrors.NewInvalidModuleError("header failed validation", a.Path, err)
	}
	return h, nil
}

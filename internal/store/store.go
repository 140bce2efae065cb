// Package store persists repository indexes, one document per directory.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/modindex/modindex/internal/core"
	oerrors "github.com/modindex/modindex/internal/errors"
	"github.com/modindex/modindex/internal/output"
)

// IndexStore holds the current index of every known directory and, when it
// has a cache directory, persists them there.
//
// An IndexStore without a cache directory keeps indexes in memory only.
type IndexStore struct {
	cacheDir string

	mu      sync.RWMutex
	current map[string]*core.RepositoryIndex
}

// NewIndexStore creates a store persisting to cacheDir. An empty cacheDir
// disables persistence.
func NewIndexStore(cacheDir string) *IndexStore {
	return &IndexStore{
		cacheDir: cacheDir,
		current:  make(map[string]*core.RepositoryIndex),
	}
}

// Persistent reports whether indexes are written to disk.
func (s *IndexStore) Persistent() bool {
	return s.cacheDir != ""
}

// CacheDir returns the cache directory, empty when not persistent.
func (s *IndexStore) CacheDir() string {
	return s.cacheDir
}

// EnsureDir creates the cache directory. It is a no-op when not persistent.
func (s *IndexStore) EnsureDir() error {
	if !s.Persistent() {
		return nil
	}
	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		return oerrors.NewPersistenceError("creating cache directory", s.cacheDir, err)
	}
	return nil
}

// PathFor returns the document path for dir. Empty when not persistent.
func (s *IndexStore) PathFor(dir string) string {
	if !s.Persistent() {
		return ""
	}
	sum := sha256.Sum256([]byte(dir))
	return filepath.Join(s.cacheDir, "index-"+hex.EncodeToString(sum[:])[:16]+".yaml")
}

// Load returns the index for dir, from memory if a build already produced
// one, else from its document on disk. found is false when neither exists.
//
// A document that cannot be decoded, or that belongs to another directory,
// is logged and treated as missing so the caller rebuilds from scratch.
func (s *IndexStore) Load(dir string) (idx *core.RepositoryIndex, found bool, err error) {
	if idx, ok := s.Current(dir); ok {
		return idx, true, nil
	}
	if !s.Persistent() {
		return nil, false, nil
	}

	path := s.PathFor(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, oerrors.NewPersistenceError("reading index document", path, err)
	}

	idx, err = Unmarshal(data)
	if err != nil {
		output.Warn("discarding unreadable index document", "path", path, "err", err)
		return nil, false, nil
	}
	if idx.Directory != dir {
		output.Warn("discarding index document for another directory",
			"path", path, "directory", idx.Directory)
		return nil, false, nil
	}

	s.Set(idx)
	return idx, true, nil
}

// Save writes idx to its document and makes it the current index for its
// directory. The write goes to a temporary file in the cache directory that
// replaces the document only once fully written, so a failed save leaves the
// previous document in place. Without a cache directory Save only records idx
// in memory.
func (s *IndexStore) Save(idx *core.RepositoryIndex) error {
	if !s.Persistent() {
		s.Set(idx)
		return nil
	}

	path := s.PathFor(idx.Directory)
	data, err := Marshal(idx)
	if err != nil {
		return oerrors.NewPersistenceError("encoding index", path, err)
	}
	if err := writeAtomic(path, data); err != nil {
		return oerrors.NewPersistenceError("writing index document", path, err)
	}

	s.Set(idx)
	output.Debug("saved index", "path", path, "resources", idx.Len())
	return nil
}

// Current returns the in-memory index for dir.
func (s *IndexStore) Current(dir string) (*core.RepositoryIndex, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.current[dir]
	return idx, ok
}

// Set replaces the in-memory index for idx.Directory without persisting it.
func (s *IndexStore) Set(idx *core.RepositoryIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[idx.Directory] = idx
}

// Directories returns every directory with an in-memory index, sorted.
func (s *IndexStore) Directories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dirs := make([]string, 0, len(s.current))
	for d := range s.current {
		dirs = append(dirs, d)
	}
	slices.Sort(dirs)
	return dirs
}

func writeAtomic(path string, data []byte) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temporary file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing document: %w", err)
	}
	return nil
}

// Package watch rebuilds repository indexes when their directories change.
//
// A Watcher registers every non-hidden directory under a repository with
// fsnotify and coalesces events into a single callback after a quiet period.
package watch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/modindex/modindex/internal/output"
	"github.com/modindex/modindex/internal/scan"
)

// DefaultDebounce is the quiet period used when Config.Debounce is unset.
const DefaultDebounce = 500 * time.Millisecond

// overflowMarker is reported as the changed path when the kernel dropped
// events and the exact set of changes is unknown.
const overflowMarker = "*"

// hiddenIgnores keep the watcher out of the directories the scanner skips.
var hiddenIgnores = []string{
	".*/**",
	"**/.*/**",
}

// Config holds the parameters for a Watcher.
type Config struct {
	// Dir is the repository directory.
	Dir string

	// Pattern selects module files, relative to Dir. Defaults to
	// scan.DefaultPattern.
	Pattern string

	// Debounce is the quiet period after the last event before OnChange
	// fires. Zero or negative means DefaultDebounce.
	Debounce time.Duration

	// OnChange receives the changed paths relative to Dir, sorted. A nil
	// callback is a no-op.
	OnChange func(ctx context.Context, changed []string) error
}

// Watcher watches one repository directory. Run must be called exactly once.
type Watcher struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	dir      string
	pattern  string
	debounce time.Duration
	log      *log.Logger
	started  atomic.Bool
}

// New creates a Watcher and registers the directory tree of cfg.Dir.
func New(cfg Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch: directory is required")
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve directory: %w", err)
	}

	pattern := cfg.Pattern
	if pattern == "" {
		pattern = scan.DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("watch: invalid pattern %q", pattern)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		dir:      dir,
		pattern:  pattern,
		debounce: debounce,
		log:      output.DirLogger(dir),
	}
	if err := w.addDirectories(); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Dir returns the absolute watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Run processes events until ctx is cancelled. It returns nil on
// cancellation and an error when the watcher can no longer observe the
// directory. Callbacks never overlap; events arriving during a callback are
// delivered in the next one.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	schedule := func(rel string) {
		mu.Lock()
		defer mu.Unlock()
		pending[rel] = struct{}{}
		if timer == nil {
			timer = time.AfterFunc(w.debounce, func() { w.fire(ctx, &mu, pending, &timer, &running) })
		} else {
			timer.Reset(w.debounce)
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.log.Warn("closing watcher", "err", err)
		}
	}()

	w.log.Info("watching for changes", "pattern", w.pattern, "debounce", w.debounce)
	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watch: event channel closed unexpectedly")
			}
			if rel, relevant := w.relevant(evt); relevant {
				w.log.Debug("change detected", "path", rel, "op", evt.Op.String())
				schedule(rel)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watch: error channel closed unexpectedly")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.log.Warn("event queue overflowed, scheduling a rescan")
				schedule(overflowMarker)
				continue
			}
			if isFatal(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			w.log.Warn("fsnotify error", "err", err)
		}
	}
}

// fire drains the pending set into one OnChange call. A callback still
// running pushes the timer back so pending changes are not lost.
func (w *Watcher) fire(ctx context.Context, mu *sync.Mutex, pending map[string]struct{}, timer **time.Timer, running *atomic.Bool) {
	if ctx.Err() != nil {
		return
	}
	if !running.CompareAndSwap(false, true) {
		w.log.Debug("rebuild still running, deferring")
		mu.Lock()
		if *timer != nil {
			(*timer).Reset(w.debounce)
		}
		mu.Unlock()
		return
	}
	defer running.Store(false)

	mu.Lock()
	if len(pending) == 0 {
		mu.Unlock()
		return
	}
	changed := slices.Sorted(maps.Keys(pending))
	clear(pending)
	mu.Unlock()

	if w.cfg.OnChange == nil {
		return
	}
	if err := w.cfg.OnChange(ctx, changed); err != nil {
		w.log.Error("rebuild after change failed", "err", err)
	}
}

// relevant reports whether evt can change the index: a module file event, a
// new directory, or the removal of something that may have been a directory.
// New directories are registered on the way.
func (w *Watcher) relevant(evt fsnotify.Event) (string, bool) {
	if evt.Has(fsnotify.Chmod) && !evt.Has(fsnotify.Write) {
		return "", false
	}
	rel, err := filepath.Rel(w.dir, evt.Name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if w.isIgnored(rel) {
		return "", false
	}

	if evt.Has(fsnotify.Create) && w.maybeAddDir(evt.Name, rel) {
		return rel, true
	}
	if ok, _ := doublestar.Match(w.pattern, rel); ok {
		return rel, true
	}
	if evt.Has(fsnotify.Remove) || evt.Has(fsnotify.Rename) {
		// Removed paths cannot be stat'ed; extensionless names may be directories.
		return rel, filepath.Ext(rel) == ""
	}
	return "", false
}

// addDirectories registers dir and every non-hidden directory below it.
func (w *Watcher) addDirectories() error {
	err := filepath.WalkDir(w.dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == w.dir {
				return walkErr
			}
			w.log.Warn("skipping inaccessible path", "path", path, "err", walkErr)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.dir && w.skipDir(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk directory tree: %w", err)
	}
	return nil
}

// maybeAddDir registers a directory created after startup, along with any
// directories already inside it. Reports whether path was a directory.
func (w *Watcher) maybeAddDir(path, rel string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || w.skipDir(path) {
		return false
	}
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil || !d.IsDir() {
			return nil //nolint:nilerr // best effort
		}
		if p != path && w.skipDir(p) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			w.log.Warn("watching new directory", "path", p, "err", err)
		}
		return nil
	})
	if err != nil {
		w.log.Warn("walking new directory", "path", rel, "err", err)
	}
	return true
}

// skipDir reports whether the directory at path is hidden or inside a hidden
// directory.
func (w *Watcher) skipDir(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return true
	}
	rel, err := filepath.Rel(w.dir, path)
	return err != nil || w.isIgnored(filepath.ToSlash(rel))
}

// isIgnored reports whether rel lies inside a hidden directory.
func (w *Watcher) isIgnored(rel string) bool {
	if rel == "." {
		return false
	}
	for _, pat := range hiddenIgnores {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}

// isFatal reports resource exhaustion: the watcher cannot recover from
// running out of inotify watches or file descriptors.
func isFatal(err error) bool {
	return errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE)
}

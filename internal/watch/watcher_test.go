package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects OnChange calls.
type recorder struct {
	mu    sync.Mutex
	calls [][]string
	fired chan struct{}
}

func newRecorder() *recorder {
	return &recorder{fired: make(chan struct{}, 16)}
}

func (r *recorder) onChange(_ context.Context, changed []string) error {
	r.mu.Lock()
	r.calls = append(r.calls, changed)
	r.mu.Unlock()
	r.fired <- struct{}{}
	return nil
}

func (r *recorder) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-r.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for OnChange")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func start(t *testing.T, cfg Config) {
	t.Helper()
	w, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errCh)
	})
}

func TestWatcher_CoalescesModuleChanges(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	start(t, Config{Dir: dir, Debounce: 100 * time.Millisecond, OnChange: rec.onChange})

	for _, name := range []string{"a.modpkg", "b.modpkg", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("data"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	changed := rec.wait(t)
	assert.Equal(t, []string{"a.modpkg", "b.modpkg"}, changed)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, rec.count(), "events within the window fire once")
}

func TestWatcher_NewDirectoriesAreWatched(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	start(t, Config{Dir: dir, Debounce: 50 * time.Millisecond, OnChange: rec.onChange})

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	assert.Equal(t, []string{"nested"}, rec.wait(t))

	require.NoError(t, os.WriteFile(filepath.Join(sub, "c.modpkg"), []byte("data"), 0o644))
	assert.Contains(t, rec.wait(t), "nested/c.modpkg")
}

func TestWatcher_IgnoresHiddenDirectories(t *testing.T) {
	dir := t.TempDir()
	hidden := filepath.Join(dir, ".cache")
	require.NoError(t, os.Mkdir(hidden, 0o755))

	rec := newRecorder()
	start(t, Config{Dir: dir, Debounce: 50 * time.Millisecond, OnChange: rec.onChange})

	require.NoError(t, os.WriteFile(filepath.Join(hidden, "x.modpkg"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "y.modpkg"), []byte("data"), 0o644))

	assert.Equal(t, []string{"y.modpkg"}, rec.wait(t))
}

func TestWatcher_RemovedDirectoryTriggers(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "old")
	require.NoError(t, os.Mkdir(sub, 0o755))

	rec := newRecorder()
	start(t, Config{Dir: dir, Debounce: 50 * time.Millisecond, OnChange: rec.onChange})

	require.NoError(t, os.RemoveAll(sub))
	assert.Contains(t, rec.wait(t), "old")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Dir: t.TempDir(), Pattern: "[unclosed"})
	assert.Error(t, err)

	_, err = New(Config{Dir: filepath.Join(t.TempDir(), "absent")})
	assert.Error(t, err)
}

func TestRun_OnlyOnce(t *testing.T) {
	w, err := New(Config{Dir: t.TempDir()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))
	assert.Error(t, w.Run(ctx))
}

func TestRelevant(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.fsw.Close() })

	tests := []struct {
		name string
		evt  fsnotify.Event
		want bool
	}{
		{"module write", fsnotify.Event{Name: filepath.Join(dir, "a.modpkg"), Op: fsnotify.Write}, true},
		{"nested module", fsnotify.Event{Name: filepath.Join(dir, "x", "a.modpkg"), Op: fsnotify.Create}, true},
		{"other file", fsnotify.Event{Name: filepath.Join(dir, "a.txt"), Op: fsnotify.Write}, false},
		{"chmod only", fsnotify.Event{Name: filepath.Join(dir, "a.modpkg"), Op: fsnotify.Chmod}, false},
		{"hidden", fsnotify.Event{Name: filepath.Join(dir, ".git", "a.modpkg"), Op: fsnotify.Write}, false},
		{"removed dir", fsnotify.Event{Name: filepath.Join(dir, "gone"), Op: fsnotify.Remove}, true},
		{"removed file", fsnotify.Event{Name: filepath.Join(dir, "gone.txt"), Op: fsnotify.Remove}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := w.relevant(tt.evt)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.True(t, isFatal(syscall.ENOSPC))
	assert.True(t, isFatal(syscall.EMFILE))
	assert.False(t, isFatal(syscall.EACCES))
}

// Package build coordinates incremental index builds per directory.
package build

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/modindex/modindex/internal/augment"
	"github.com/modindex/modindex/internal/core"
	oerrors "github.com/modindex/modindex/internal/errors"
	"github.com/modindex/modindex/internal/merge"
	"github.com/modindex/modindex/internal/metrics"
	"github.com/modindex/modindex/internal/output"
	"github.com/modindex/modindex/internal/probe"
	"github.com/modindex/modindex/internal/scan"
	"github.com/modindex/modindex/internal/store"
)

// Options configures a Coordinator.
type Options struct {
	// Policy defaults to PolicySync.
	Policy Policy

	// Store is required.
	Store *store.IndexStore

	// Scanner defaults to one using scan.DefaultPattern.
	Scanner *scan.Scanner

	// Inspector defaults to augment.ArchiveInspector.
	Inspector augment.TypeInspector

	// Concurrency bounds per-module augmentation; zero means GOMAXPROCS.
	Concurrency int

	// Metrics may be nil.
	Metrics *metrics.Metrics

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// dirState tracks one directory. lock serializes builds; building and done
// are guarded by Coordinator.mu.
type dirState struct {
	lock     sync.Mutex
	building bool
	done     chan struct{}
	last     *Result
}

// Coordinator runs builds, at most one at a time per directory, and keeps
// each directory's current index in its store.
type Coordinator struct {
	policy    Policy
	store     *store.IndexStore
	scanner   *scan.Scanner
	augmenter *augment.Augmenter
	metrics   *metrics.Metrics
	clock     func() time.Time

	mu   sync.Mutex
	dirs map[string]*dirState

	// ctx bounds background builds; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Coordinator.
func New(opts Options) (*Coordinator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("build coordinator requires an index store")
	}
	if opts.Policy == "" {
		opts.Policy = PolicySync
	}
	if _, err := ParsePolicy(string(opts.Policy)); err != nil {
		return nil, err
	}
	if opts.Scanner == nil {
		s, err := scan.NewScanner(scan.DefaultPattern)
		if err != nil {
			return nil, err
		}
		opts.Scanner = s
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	// The store's own writes must never count as changes to a watched tree.
	opts.Scanner = opts.Scanner.WithExcluded(opts.Store.CacheDir())

	var augOpts []augment.Option
	if opts.Concurrency > 0 {
		augOpts = append(augOpts, augment.WithConcurrency(opts.Concurrency))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		policy:    opts.Policy,
		store:     opts.Store,
		scanner:   opts.Scanner,
		augmenter: augment.New(opts.Inspector, augOpts...),
		metrics:   opts.Metrics,
		clock:     opts.Clock,
		dirs:      make(map[string]*dirState),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Policy returns the build policy.
func (c *Coordinator) Policy() Policy {
	return c.policy
}

// Store returns the index store.
func (c *Coordinator) Store() *store.IndexStore {
	return c.store
}

// Build brings the index of dir up to date.
//
// Under PolicySync the build runs before Build returns; a concurrent call for
// the same directory waits for the running one and then builds itself.
// Under PolicyAsync Build returns StatusScheduled with the current index and
// builds in the background, or StatusInProgress without scheduling anything
// when a build of dir is already running.
func (c *Coordinator) Build(ctx context.Context, dir string) Result {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return failed(dir, nil, KindScan, "resolving directory", err)
	}

	if c.policy == PolicyAsync {
		return c.schedule(abs)
	}

	st := c.state(abs)
	st.lock.Lock()
	defer st.lock.Unlock()

	c.begin(st)
	res := c.run(ctx, abs, true)
	c.finish(st, res)
	return res
}

func (c *Coordinator) schedule(dir string) Result {
	st := c.state(dir)

	c.mu.Lock()
	if st.building {
		c.mu.Unlock()
		output.DirLogger(dir).Debug("build already running")
		return Result{Dir: dir, Status: StatusInProgress, Index: c.serving(dir)}
	}
	st.building = true
	st.done = make(chan struct{})
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		st.lock.Lock()
		defer st.lock.Unlock()
		c.finish(st, c.run(c.ctx, dir, true))
	}()

	return Result{Dir: dir, Status: StatusScheduled, Index: c.serving(dir)}
}

// Wait blocks until the running build of dir, if any, ends and returns the
// result of the last build. It fails with ErrNotFound when dir was never built.
func (c *Coordinator) Wait(ctx context.Context, dir string) (Result, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Result{}, err
	}
	st := c.state(abs)

	c.mu.Lock()
	done := st.done
	c.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if st.last == nil {
		return Result{}, oerrors.NewNotFoundError("no build has run", abs, "")
	}
	return *st.last, nil
}

// Preview computes what a build of dir would produce without persisting it
// or replacing the current index. Waits for a running build of dir first.
func (c *Coordinator) Preview(ctx context.Context, dir string) Result {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return failed(dir, nil, KindScan, "resolving directory", err)
	}
	st := c.state(abs)
	st.lock.Lock()
	defer st.lock.Unlock()
	return c.run(ctx, abs, false)
}

// Index returns the current index of dir, loading its document if needed.
func (c *Coordinator) Index(dir string) (*core.RepositoryIndex, bool) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, false
	}
	idx, found, err := c.store.Load(abs)
	if err != nil || !found {
		return nil, false
	}
	return idx, true
}

// Close cancels background builds and waits for them to return. Cancelled
// builds leave persisted indexes untouched.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) state(dir string) *dirState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.dirs[dir]
	if !ok {
		st = &dirState{}
		c.dirs[dir] = st
	}
	return st
}

func (c *Coordinator) begin(st *dirState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st.building = true
	st.done = make(chan struct{})
}

func (c *Coordinator) finish(st *dirState, res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st.building = false
	st.last = &res
	close(st.done)
}

// serving returns the index served for dir while no build result is at hand.
func (c *Coordinator) serving(dir string) *core.RepositoryIndex {
	if idx, ok := c.store.Current(dir); ok {
		return idx
	}
	return core.NewRepositoryIndex(dir)
}

// run performs one build of dir. The caller holds the directory lock.
//
// Persistent stores build incrementally from the loaded index once the
// staleness check says it is stale; in-memory stores rebuild from scratch on
// every call. All changes go to a clone that replaces the current index only
// after it was saved.
func (c *Coordinator) run(ctx context.Context, dir string, persist bool) Result {
	logger := output.DirLogger(dir)
	if persist {
		c.prepareCache(logger, dir)
	}
	start := c.clock().UTC()

	prev, found, err := c.store.Load(dir)
	if err != nil {
		logger.Warn("index document unreadable, rebuilding", "err", err)
		prev, found = nil, false
	}

	var snap *scan.Snapshot
	reason := "no index"
	incremental := found && c.store.Persistent()
	if incremental {
		check, err := c.scanner.Check(prev, dir)
		if err != nil {
			return c.fail(logger, dir, prev, KindScan, "checking staleness", err, start)
		}
		if !check.Stale {
			logger.Debug("index up to date")
			res := Result{Dir: dir, Status: StatusUpToDate, Index: prev}
			res.Stats.Resources = prev.Len()
			c.observe(res, start)
			return res
		}
		snap, reason = check.Snapshot, check.Reason
		logger.Debug("index stale", "reason", reason)
	} else if !c.store.Persistent() {
		reason = "in-memory index"
	}

	working := core.NewRepositoryIndex(dir)
	if incremental {
		working = prev.Clone()
	}

	if snap == nil {
		if snap, err = c.scanner.Walk(dir); err != nil {
			return c.fail(logger, dir, prev, KindScan, "scanning directory", err, start)
		}
	}

	delta := scan.ComputeDelta(working, snap, probe.ReadIdentity)
	logger.Debug("computed delta",
		"updated", len(delta.Updated), "possiblyRemoved", len(delta.PossiblyRemoved), "unchanged", delta.Unchanged)

	pending := c.augmenter.Start(ctx, delta.UpdatedPaths())
	rep, err := merge.New(merge.WithLogger(logger)).Merge(ctx, working, delta, pending)
	if err != nil {
		kind := KindCancelled
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			kind = KindScan
		}
		return c.fail(logger, dir, prev, kind, "merging delta", err, start)
	}
	working.LastModified = start

	res := Result{
		Dir:    dir,
		Status: StatusBuilt,
		Index:  working,
		Reason: reason,
		Stats: Stats{
			Files:       len(snap.Files),
			Updated:     len(delta.Updated),
			Added:       rep.Added,
			Replaced:    rep.Replaced,
			Removed:     rep.Removed,
			Skipped:     rep.Skipped,
			Conflicts:   rep.Conflicts,
			Descriptors: rep.Descriptors,
			Reconciled:  rep.Reconciled,
			TypesFailed: rep.TypesFailed,
			Resources:   working.Len(),
		},
	}

	if persist {
		if err := c.store.Save(working); err != nil {
			if prev == nil {
				prev = core.NewRepositoryIndex(dir)
				c.store.Set(prev)
			}
			return c.fail(logger, dir, prev, KindPersistence, "saving index", err, start)
		}
	}

	res.Stats.Duration = c.clock().Sub(start)
	c.observe(res, start)
	logger.Info("index built",
		"resources", res.Stats.Resources, "updated", res.Stats.Updated,
		"removed", res.Stats.Removed, "skipped", res.Stats.Skipped,
		"duration", res.Stats.Duration.Round(time.Millisecond))
	return res
}

// prepareCache creates a cache directory nested in dir before the build
// timestamp is taken; creating it later would bump the modification time of
// its parent past the timestamp. Failures surface again when saving.
func (c *Coordinator) prepareCache(logger *log.Logger, dir string) {
	cache := c.store.CacheDir()
	if cache == "" {
		return
	}
	abs, err := filepath.Abs(cache)
	if err != nil {
		return
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return
	}
	if err := c.store.EnsureDir(); err != nil {
		logger.Debug("cache directory not created", "err", err)
	}
}

func (c *Coordinator) fail(logger *log.Logger, dir string, prev *core.RepositoryIndex, kind ErrorKind, msg string, cause error, start time.Time) Result {
	res := failed(dir, prev, kind, msg, cause)
	res.Stats.Duration = c.clock().Sub(start)
	logger.Error("build failed", "kind", kind, "err", cause)
	c.observe(res, start)
	return res
}

func (c *Coordinator) observe(res Result, start time.Time) {
	outcome := metrics.OutcomeBuilt
	switch res.Status {
	case StatusUpToDate:
		outcome = metrics.OutcomeUpToDate
	case StatusFailed:
		outcome = metrics.OutcomeFailed
	}
	c.metrics.ObserveBuild(metrics.BuildObservation{
		Directory:   res.Dir,
		Outcome:     outcome,
		Duration:    c.clock().Sub(start),
		Probed:      res.Stats.Updated,
		Skipped:     res.Stats.Skipped,
		TypesFailed: res.Stats.TypesFailed,
		Resources:   res.Stats.Resources,
	})
}

func failed(dir string, prev *core.RepositoryIndex, kind ErrorKind, msg string, cause error) Result {
	if prev == nil {
		prev = core.NewRepositoryIndex(dir)
	}
	return Result{
		Dir:    dir,
		Status: StatusFailed,
		Index:  prev,
		Err:    &BuildError{Kind: kind, Message: msg, Cause: cause},
	}
}

package augment

import (
	"context"
	"runtime"
	"slices"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/modindex/modindex/internal/core"
	"github.com/modindex/modindex/internal/output"
	"github.com/modindex/modindex/internal/probe"
)

// Result is the outcome of augmenting a set of module packages.
type Result struct {
	// Descriptors holds one entry per module publishing at least one service,
	// ordered by path.
	Descriptors []Descriptor

	// Scanned is the number of modules whose types were inspected.
	Scanned int

	// TypesFailed counts types that could not be loaded and were skipped.
	TypesFailed int
}

// ByIdentity indexes the descriptors by module identity.
func (r Result) ByIdentity() map[core.ModuleIdentity]Descriptor {
	out := make(map[core.ModuleIdentity]Descriptor, len(r.Descriptors))
	for _, d := range r.Descriptors {
		out[d.Identity] = d
	}
	return out
}

// Option configures an Augmenter.
type Option func(*Augmenter)

// WithConcurrency bounds the number of modules scanned at once.
func WithConcurrency(n int) Option {
	return func(a *Augmenter) {
		if n > 0 {
			a.limit = n
		}
	}
}

// Augmenter scans module packages for service types.
type Augmenter struct {
	inspector TypeInspector
	limit     int
}

// New creates an Augmenter. A nil inspector uses ArchiveInspector.
func New(inspector TypeInspector, opts ...Option) *Augmenter {
	if inspector == nil {
		inspector = ArchiveInspector{}
	}
	a := &Augmenter{
		inspector: inspector,
		limit:     runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Augment scans every path and returns the descriptors found. Per-module and
// per-type failures are logged and skipped; the only error returned is the
// context's.
func (a *Augmenter) Augment(ctx context.Context, paths []string) (Result, error) {
	sorted := slices.Clone(paths)
	slices.Sort(sorted)

	found := make([]*Descriptor, len(sorted))
	var scanned, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.limit)
	for i, path := range sorted {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, ok, typesFailed := a.scanModule(path)
			if ok {
				scanned.Add(1)
			}
			failed.Add(int64(typesFailed))
			found[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{Scanned: int(scanned.Load()), TypesFailed: int(failed.Load())}
	for _, d := range found {
		if d != nil {
			res.Descriptors = append(res.Descriptors, *d)
		}
	}
	return res, nil
}

// Start runs Augment on its own goroutine. Join with Pending.Wait.
func (a *Augmenter) Start(ctx context.Context, paths []string) *Pending {
	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.result, p.err = a.Augment(ctx, paths)
	}()
	return p
}

// scanModule inspects one package. ok is false when the module was not
// eligible: unreadable, or without both a name and a version in its header.
func (a *Augmenter) scanModule(path string) (d *Descriptor, ok bool, typesFailed int) {
	arc, err := probe.Open(path)
	if err != nil {
		output.Debug("skipping augmentation", "path", path, "err", err)
		return nil, false, 0
	}
	defer arc.Close()

	h, err := arc.Header()
	if err != nil || !h.HasIdentity() {
		return nil, false, 0
	}

	var services []string
	deps := map[string]bool{} // type -> optional
	for _, name := range a.inspector.ListTypes(arc) {
		t, err := a.inspector.LoadType(arc, name)
		if err != nil {
			output.Warn("skipping type", "module", path, "type", name, "err", err)
			typesFailed++
			continue
		}
		if !t.HasTag(TagService) {
			continue
		}
		services = append(services, t.Name)
		for _, f := range t.TaggedFields(TagInject) {
			optional := f.HasTag(TagOptional)
			if prev, seen := deps[f.Type]; seen {
				optional = optional && prev
			}
			deps[f.Type] = optional
		}
	}

	if len(services) == 0 {
		return nil, true, typesFailed
	}

	slices.Sort(services)
	d = &Descriptor{
		Identity: h.Identity(probe.Stem(path)),
		Path:     path,
		Services: slices.Compact(services),
	}
	for typ, optional := range deps {
		d.Dependencies = append(d.Dependencies, Dependency{Type: typ, Optional: optional})
	}
	slices.SortFunc(d.Dependencies, func(x, y Dependency) int {
		return strings.Compare(x.Type, y.Type)
	})
	return d, true, typesFailed
}

// Pending is an in-flight augmentation.
type Pending struct {
	done   chan struct{}
	result Result
	err    error
}

// Completed returns a Pending that already holds r.
func Completed(r Result) *Pending {
	p := &Pending{done: make(chan struct{}), result: r}
	close(p.done)
	return p
}

// Wait blocks until the augmentation finishes and returns its result.
func (p *Pending) Wait() (Result, error) {
	<-p.done
	return p.result, p.err
}

// Done is closed when the augmentation finishes.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Package merge applies a build delta to a repository index.
package merge

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/modindex/modindex/internal/augment"
	"github.com/modindex/modindex/internal/core"
	oerrors "github.com/modindex/modindex/internal/errors"
	"github.com/modindex/modindex/internal/output"
	"github.com/modindex/modindex/internal/probe"
	"github.com/modindex/modindex/internal/scan"
)

// Prober builds a resource from the package at path.
type Prober func(path string) (*core.Resource, error)

// Report counts what a merge did.
type Report struct {
	Added       int
	Replaced    int
	Removed     int
	Skipped     int
	Conflicts   int
	Reconciled  int
	Descriptors int
	TypesFailed int
}

// Merger applies deltas. The zero value is not usable; use New.
type Merger struct {
	probe        Prober
	readIdentity scan.IdentityReader
	log          *log.Logger
}

// Option configures a Merger.
type Option func(*Merger)

// WithProber replaces the package prober.
func WithProber(p Prober) Option {
	return func(m *Merger) { m.probe = p }
}

// WithIdentityReader replaces the header identity reader used by reconciliation.
func WithIdentityReader(r scan.IdentityReader) Option {
	return func(m *Merger) { m.readIdentity = r }
}

// WithLogger sets the logger, typically output.DirLogger for the directory.
func WithLogger(l *log.Logger) Option {
	return func(m *Merger) { m.log = l }
}

// New creates a Merger that probes with probe.Probe and probe.ReadIdentity.
func New(opts ...Option) *Merger {
	m := &Merger{
		probe:        probe.Probe,
		readIdentity: probe.ReadIdentity,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = output.Logger()
	}
	return m
}

// Merge applies delta to idx in four steps:
//
//  1. drop every possibly removed resource;
//  2. probe updated files in path order, recording invalid files and
//     identity-conflict losers as skipped;
//  3. join the augmentation and attach its descriptors to the resources
//     probed in this build;
//  4. reconcile: drop any resource whose file is gone or no longer declares
//     its identity, and any skipped entry whose file is gone.
//
// idx.TotalSize is recomputed at the end. The only error is the pending
// augmentation's, in which case idx is left partially merged and must be
// discarded.
func (m *Merger) Merge(ctx context.Context, idx *core.RepositoryIndex, delta scan.Delta, pending *augment.Pending) (Report, error) {
	var rep Report

	for _, r := range delta.PossiblyRemoved {
		if cur, ok := idx.Get(r.Identity()); ok && cur.URI == r.URI {
			idx.RemoveByIdentity(r.Identity())
			rep.Removed++
		}
	}

	generation := make(map[core.ModuleIdentity]*core.Resource, len(delta.Updated))
	for _, f := range delta.Updated {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		m.mergeFile(idx, f, generation, &rep)
	}

	res, err := pending.Wait()
	if err != nil {
		return rep, fmt.Errorf("augmentation: %w", err)
	}
	rep.TypesFailed = res.TypesFailed
	for _, d := range res.Descriptors {
		r, ok := generation[d.Identity]
		if !ok || r.URI != d.Path {
			continue
		}
		if cur, ok := idx.Get(d.Identity); !ok || cur != r {
			continue
		}
		d.Apply(r)
		rep.Descriptors++
	}

	rep.Reconciled = m.reconcile(idx)
	idx.TotalSize = idx.ComputeTotalSize()

	m.log.Debug("merged delta",
		"added", rep.Added, "replaced", rep.Replaced, "removed", rep.Removed,
		"skipped", rep.Skipped, "conflicts", rep.Conflicts, "reconciled", rep.Reconciled,
		"descriptors", rep.Descriptors)
	return rep, nil
}

func (m *Merger) mergeFile(idx *core.RepositoryIndex, f scan.File, generation map[core.ModuleIdentity]*core.Resource, rep *Report) {
	idx.Unskip(f.Path)

	r, err := m.probe(f.Path)
	if err != nil {
		if prev, ok := idx.RemoveByPath(f.Path); ok {
			delete(generation, prev.Identity())
			rep.Removed++
		}
		if !errors.Is(err, oerrors.ErrInvalidModule) {
			// Vanished or unreadable mid-build; the next build sees the change.
			m.log.Debug("file unavailable", "path", f.Path, "err", err)
			return
		}
		m.log.Warn("skipping invalid module", "path", f.Path, "err", err)
		idx.Skip(core.SkippedFile{
			Path:     f.Path,
			Size:     f.Size,
			Modified: f.ModTime,
			Reason:   core.SkipInvalid,
		})
		rep.Skipped++
		return
	}

	displaced := idx.Put(r)
	if len(displaced) == 0 {
		rep.Added++
	}
	for _, prev := range displaced {
		delete(generation, prev.Identity())
		if prev.URI == r.URI {
			rep.Replaced++
			continue
		}
		m.log.Warn("identity conflict",
			"identity", r.Identity(), "kept", r.URI, "displaced", prev.URI)
		idx.Skip(core.SkippedFile{
			Path:         prev.URI,
			Size:         prev.Size,
			Modified:     prev.LastModified,
			Reason:       core.SkipIdentityConflict,
			ConflictWith: r.URI,
		})
		rep.Conflicts++
	}
	generation[r.Identity()] = r
}

// reconcile removes entries whose files no longer back them.
func (m *Merger) reconcile(idx *core.RepositoryIndex) int {
	removed := 0
	for _, r := range idx.Resources() {
		id, err := m.readIdentity(r.URI)
		if err == nil && id == r.Identity() {
			continue
		}
		m.log.Debug("reconciled stale resource", "identity", r.Identity(), "path", r.URI, "err", err)
		idx.RemoveByIdentity(r.Identity())
		removed++
	}
	for _, s := range idx.Skipped() {
		if !exists(s.Path) {
			idx.Unskip(s.Path)
			removed++
		}
	}
	return removed
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

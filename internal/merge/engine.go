// Package merge implements the three-way merge engine: comparison of two
// history points against their common ancestor, per-file conflict
// classification, strategy application, and abort/resolve recovery.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/keshon/snapver/internal/component"
	"github.com/keshon/snapver/internal/graph"
	"github.com/keshon/snapver/internal/lane"
	"github.com/keshon/snapver/internal/pipeline"
	"github.com/keshon/snapver/internal/tag"
	"github.com/keshon/snapver/internal/util"
	"github.com/keshon/snapver/internal/vererr"
)

// Options configures one merge operation.
type Options struct {
	// Strategy is ours, theirs or manual (default manual).
	Strategy string

	// Abort discards pending merge records for the listed components.
	Abort bool
	// Resolve finalizes pending conflicted merges whose files the caller
	// has hand-edited. Mutually exclusive with Abort.
	Resolve bool

	// NoSnap skips creating the merge snap for merged components.
	NoSnap bool

	// Lane merges the named lane's heads into the default line.
	Lane string
	// TargetVersion merges the snap tagged with this version.
	TargetVersion string
	// TargetSnap merges an explicit snap hash.
	TargetSnap string

	// RunInstall and RunCompile trigger the post-merge collaborators.
	RunInstall bool
	RunCompile bool

	Message string
	Author  string
}

// ComponentResult is the per-component outcome of a merge operation.
type ComponentResult struct {
	Component    component.ID
	State        State
	FileStatuses map[string]FileStatus
	Snap         string
	// FailureMessage is set for failed components;
	// UnchangedLegitimately marks components that simply had nothing to
	// merge, which is not an error.
	FailureMessage        string
	UnchangedLegitimately bool
}

// ApplyVersionResults collects the whole batch. Partial success is the
// normal case: merged, conflicted and failed components travel together.
// Install/compile problems do not invalidate the merge; they ride along as
// separate fields.
type ApplyVersionResults struct {
	Merged            []ComponentResult
	Conflicted        []ComponentResult
	Aborted           []ComponentResult
	Failed            []ComponentResult
	InstallationError string
	CompilationError  string
}

// Engine performs merges. It reads the version graph and calls back into
// the tag engine to record merge snaps.
type Engine struct {
	Graph   *graph.Graph
	Tags    *tag.Engine
	Records *RecordStore
	Lanes   *lane.Store
	Changes tag.ChangeSource
	// Install and Compile are the post-merge external collaborators.
	Install pipeline.Runner
	Compile pipeline.Runner
	Workers int
	Log     *slog.Logger
}

func (e *Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func (e *Engine) workers() int {
	if e.Workers > 0 {
		return e.Workers
	}
	return util.WorkerCount()
}

// Merge runs one merge operation over the components selected by patterns.
// With Options.Lane set and no patterns, every component present in the
// lane participates. Validation failures abort before any state changes.
func (e *Engine) Merge(ctx context.Context, patterns []string, opts Options) (*ApplyVersionResults, error) {
	if opts.Abort && opts.Resolve {
		return nil, vererr.Validationf("abort and resolve are mutually exclusive")
	}
	strategy, err := ParseStrategy(opts.Strategy)
	if err != nil {
		return nil, err
	}

	ids, err := e.selectComponents(patterns, opts)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, vererr.Validationf("no components selected for merge")
	}

	res := &ApplyVersionResults{}

	switch {
	case opts.Abort:
		for _, id := range ids {
			res.add(e.abortOne(id))
		}
		return res, nil
	case opts.Resolve:
		for _, id := range ids {
			res.add(e.resolveOne(id, opts))
		}
	default:
		var resMu sync.Mutex
		_ = util.Parallel(ctx, ids, e.workers(), func(ctx context.Context, id component.ID) error {
			out := e.mergeOne(id, strategy, opts)
			resMu.Lock()
			res.add(out)
			resMu.Unlock()
			return nil
		})
	}

	e.runSideEffects(ctx, res, opts)
	return res, nil
}

func (r *ApplyVersionResults) add(c ComponentResult) {
	switch {
	case c.FailureMessage != "" || c.UnchangedLegitimately:
		r.Failed = append(r.Failed, c)
	case c.State == StateAborted:
		r.Aborted = append(r.Aborted, c)
	case c.State == StateConflicted:
		r.Conflicted = append(r.Conflicted, c)
	default:
		r.Merged = append(r.Merged, c)
	}
}

// selectComponents resolves the requested patterns (and lane membership)
// into concrete component identities.
func (e *Engine) selectComponents(patterns []string, opts Options) ([]component.ID, error) {
	var pool []component.ID
	if opts.Lane != "" {
		ln, err := e.Lanes.Get(opts.Lane)
		if err != nil {
			return nil, err
		}
		for key := range ln.Heads {
			id, err := component.Parse(strings.ReplaceAll(key, "__", "/"))
			if err != nil {
				continue
			}
			pool = append(pool, id)
		}
	} else {
		var err error
		pool, err = e.Graph.Components()
		if err != nil {
			return nil, err
		}
	}

	if len(patterns) == 0 {
		if opts.Lane != "" {
			return pool, nil
		}
		return nil, vererr.Validationf("component patterns required unless merging a lane")
	}

	m, err := component.NewMatcher(patterns)
	if err != nil {
		return nil, vererr.Validationf("%v", err)
	}
	var out []component.ID
	for _, id := range pool {
		if m.Match(id) {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil, vererr.NotFoundf("no components match %v", patterns)
	}
	return out, nil
}

// mergeOne walks one component through Comparing and into Merged or
// Conflicted.
func (e *Engine) mergeOne(id component.ID, strategy Strategy, opts Options) ComponentResult {
	out := ComponentResult{Component: id, State: StateComparing}

	if rec, err := e.Records.Get(id); err != nil {
		out.FailureMessage = err.Error()
		return out
	} else if rec != nil {
		if !rec.Resolved {
			out.FailureMessage = "unresolved merge in progress; resolve or abort it first"
			return out
		}
		if err := e.Records.Clear(id); err != nil {
			out.FailureMessage = err.Error()
			return out
		}
	}

	local, err := e.Graph.ResolveHead(id, "")
	if err != nil {
		out.FailureMessage = fmt.Sprintf("local head: %v", err)
		return out
	}

	target, err := e.resolveTarget(id, opts)
	if err != nil {
		if errors.Is(err, errNotInLane) {
			out.UnchangedLegitimately = true
			out.FailureMessage = "not present in lane"
			return out
		}
		out.FailureMessage = err.Error()
		return out
	}

	if target == local {
		out.UnchangedLegitimately = true
		out.FailureMessage = "already up to date"
		return out
	}
	if ok, err := e.Graph.IsAncestor(target, local); err != nil {
		out.FailureMessage = err.Error()
		return out
	} else if ok {
		out.UnchangedLegitimately = true
		out.FailureMessage = "local history already contains target"
		return out
	}

	base, err := e.Graph.CommonAncestor(local, target)
	if err != nil {
		out.FailureMessage = err.Error()
		return out
	}

	baseFiles := map[string]string{}
	if base != "" {
		fs, err := e.filesetOf(base)
		if err != nil {
			out.FailureMessage = err.Error()
			return out
		}
		baseFiles = fs
	}
	oursFiles, err := e.filesetOf(local)
	if err != nil {
		out.FailureMessage = err.Error()
		return out
	}
	theirsFiles, err := e.filesetOf(target)
	if err != nil {
		out.FailureMessage = err.Error()
		return out
	}

	statuses, mergedFiles := classify(baseFiles, oursFiles, theirsFiles, strategy)
	out.FileStatuses = statuses

	if countManual(statuses) > 0 {
		rec := &Record{
			Component:    id,
			Base:         base,
			Ours:         local,
			Theirs:       target,
			PreMergeHead: local,
			FileStatuses: statuses,
			MergedFiles:  mergedFiles,
			CreatedAt:    nowFunc(),
		}
		if err := e.Records.Put(rec); err != nil {
			out.FailureMessage = err.Error()
			return out
		}
		out.State = StateConflicted
		e.log().Info("merge conflicted",
			"component", id.FullName(),
			"conflicts", countManual(statuses))
		return out
	}

	out.State = StateMerged
	if opts.NoSnap {
		return out
	}

	snap, err := e.snapMerge(id, local, target, mergedFiles, opts)
	if err != nil {
		out.FailureMessage = err.Error()
		out.State = StateComparing
		return out
	}
	out.Snap = snap
	e.log().Info("merge completed", "component", id.FullName(), "snap", snap)
	return out
}

var errNotInLane = errors.New("component not present in lane")

// resolveTarget finds the target head: lane head, explicit version,
// explicit snap hash.
func (e *Engine) resolveTarget(id component.ID, opts Options) (string, error) {
	switch {
	case opts.Lane != "":
		ln, err := e.Lanes.Get(opts.Lane)
		if err != nil {
			return "", err
		}
		h, ok := ln.Heads[id.Key()]
		if !ok || h == "" {
			return "", errNotInLane
		}
		return h, nil
	case opts.TargetVersion != "":
		t, err := e.Graph.FindTag(id, opts.TargetVersion)
		if err != nil {
			return "", err
		}
		return t.Snap, nil
	case opts.TargetSnap != "":
		s, err := e.Graph.GetSnap(opts.TargetSnap)
		if err != nil {
			return "", err
		}
		if !s.Component.Same(id) {
			return "", vererr.NotFoundf("snap %q belongs to %s, not %s",
				opts.TargetSnap, s.Component.FullName(), id.FullName())
		}
		return opts.TargetSnap, nil
	default:
		return "", vererr.Validationf("no merge target: lane, version or snap required")
	}
}

func (e *Engine) filesetOf(snapHash string) (map[string]string, error) {
	s, err := e.Graph.GetSnap(snapHash)
	if err != nil {
		return nil, err
	}
	if s.Fileset == "" {
		return map[string]string{}, nil
	}
	fs, err := graph.GetFileset(e.Graph.Store(), s.Fileset)
	if err != nil {
		return nil, err
	}
	return fs.Files, nil
}

// snapMerge stores the merged manifest and records the two-parent merge
// snap through the tag engine. The snap is not versioned here.
func (e *Engine) snapMerge(id component.ID, ours, theirs string, files map[string]string, opts Options) (string, error) {
	fsHash, err := graph.PutFileset(e.Graph.Store(), &graph.Fileset{Files: files})
	if err != nil {
		return "", err
	}
	message := opts.Message
	if message == "" {
		message = fmt.Sprintf("merge into %s", id.FullName())
		if opts.Lane != "" {
			message = fmt.Sprintf("merge lane %q into %s", opts.Lane, id.FullName())
		}
	}
	return e.Tags.CreateMergeSnap(id, ours, theirs, fsHash, message, opts.Author, "")
}

// abortOne discards a pending merge and restores the pre-merge head.
func (e *Engine) abortOne(id component.ID) ComponentResult {
	out := ComponentResult{Component: id}

	rec, err := e.Records.Get(id)
	if err != nil {
		out.FailureMessage = err.Error()
		return out
	}
	if rec == nil || rec.Resolved {
		out.FailureMessage = fmt.Sprintf("%v for %s", vererr.ErrNoPendingMerge, id.FullName())
		return out
	}

	if err := e.Graph.SetHead(id, rec.PreMergeHead); err != nil {
		out.FailureMessage = err.Error()
		return out
	}
	if err := e.Records.Clear(id); err != nil {
		out.FailureMessage = err.Error()
		return out
	}
	out.State = StateAborted
	e.log().Info("merge aborted", "component", id.FullName())
	return out
}

// resolveOne finalizes a conflicted merge after the caller hand-edited the
// conflicted files. The resolution manifest comes from the working state
// when a change source is wired, else from the record's kept side.
func (e *Engine) resolveOne(id component.ID, opts Options) ComponentResult {
	out := ComponentResult{Component: id}

	rec, err := e.Records.Get(id)
	if err != nil {
		out.FailureMessage = err.Error()
		return out
	}
	if rec == nil || rec.Resolved {
		out.FailureMessage = fmt.Sprintf("%v for %s", vererr.ErrNoPendingMerge, id.FullName())
		return out
	}

	// MergedFiles still holds the ours placeholder for conflicted paths;
	// the working manifest takes precedence, and a scan failure keeps the
	// record pending.
	files := rec.MergedFiles
	if e.Changes != nil {
		fs, err := e.Changes.Fileset(id)
		if err != nil && !errors.Is(err, vererr.ErrNotFound) {
			out.FailureMessage = fmt.Sprintf("scan %s: %v", id.FullName(), err)
			out.State = StateConflicted
			return out
		}
		if fs != nil {
			files = fs.Files
		}
	}

	statuses := map[string]FileStatus{}
	for p, st := range rec.FileStatuses {
		if st == StatusManual {
			st = StatusModified
		}
		statuses[p] = st
	}
	out.FileStatuses = statuses
	out.State = StateMerged

	if !opts.NoSnap {
		snap, err := e.snapMerge(id, rec.Ours, rec.Theirs, files, opts)
		if err != nil {
			out.FailureMessage = err.Error()
			out.State = StateConflicted
			return out
		}
		out.Snap = snap
	}

	rec.Resolved = true
	if err := e.Records.Put(rec); err != nil {
		out.FailureMessage = err.Error()
		return out
	}
	if err := e.Records.Clear(id); err != nil {
		out.FailureMessage = err.Error()
		return out
	}
	e.log().Info("merge resolved", "component", id.FullName(), "snap", out.Snap)
	return out
}

// runSideEffects triggers the post-merge install/compile collaborators for
// successfully merged components. Their failures never invalidate the
// merge.
func (e *Engine) runSideEffects(ctx context.Context, res *ApplyVersionResults, opts Options) {
	if len(res.Merged) == 0 {
		return
	}
	if opts.RunInstall && e.Install != nil {
		for _, m := range res.Merged {
			if out, err := e.Install.Run(ctx, m.Component); err != nil || !out.Success {
				res.InstallationError = sideEffectError("install", m.Component, out, err)
				break
			}
		}
	}
	if opts.RunCompile && e.Compile != nil {
		for _, m := range res.Merged {
			if out, err := e.Compile.Run(ctx, m.Component); err != nil || !out.Success {
				res.CompilationError = sideEffectError("compile", m.Component, out, err)
				break
			}
		}
	}
}

func sideEffectError(kind string, id component.ID, out pipeline.Result, err error) string {
	if err != nil {
		return fmt.Sprintf("%s %s: %v", kind, id.FullName(), err)
	}
	if out.Err != nil {
		return fmt.Sprintf("%s %s: %v", kind, id.FullName(), out.Err)
	}
	return fmt.Sprintf("%s %s: failed", kind, id.FullName())
}

// Package tag implements the tag engine: candidate resolution, dependency-
// aware auto-tag expansion, semver bump computation, soft staging and
// snap+tag persistence.
package tag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/keshon/snapver/internal/component"
	"github.com/keshon/snapver/internal/deps"
	"github.com/keshon/snapver/internal/graph"
	"github.com/keshon/snapver/internal/lane"
	"github.com/keshon/snapver/internal/pipeline"
	"github.com/keshon/snapver/internal/semrel"
	"github.com/keshon/snapver/internal/util"
	"github.com/keshon/snapver/internal/vererr"
)

// ChangeSource reports pending working changes. Workspace scanning itself
// is an external concern; the engine only consumes its result contract.
type ChangeSource interface {
	// Modified lists components whose working state differs from their head.
	Modified() ([]component.ID, error)
	// Fileset returns the current file manifest of a component.
	Fileset(id component.ID) (*graph.Fileset, error)
}

// Engine drives tagging. Graph writes are serialized per component through
// the keyed mutex; independent components proceed concurrently.
type Engine struct {
	Graph    *graph.Graph
	Deps     deps.Provider
	Pipeline pipeline.Runner
	Staged   *StagedStore
	Lanes    *lane.Store
	Changes  ChangeSource
	// Known lists the workspace's declared components, including ones that
	// have never been snapped.
	Known   []component.ID
	Workers int
	Log     *slog.Logger

	mu util.KeyedMutex
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

// candidate is one component scheduled for tagging in the current batch.
type candidate struct {
	id          component.ID
	current     string
	next        string
	auto        bool
	triggeredBy string
	reason      string
	isNew       bool
	baseSnap    string // head at resolution time; empty for a first snap

	pipelineFailed bool
	pipelineDetail string
}

// Tag runs one tag operation over the components selected by patterns
// (empty patterns mean "all modified"). Validation failures abort before
// any mutation; per-component problems are collected into the results.
func (e *Engine) Tag(ctx context.Context, patterns []string, opts Options) (*Results, error) {
	ro, err := opts.validate()
	if err != nil {
		return nil, err
	}

	ro.laneName = opts.Lane
	if ro.laneName == "" && e.Lanes != nil {
		active, err := e.Lanes.Active()
		if err != nil {
			return nil, err
		}
		ro.laneName = active
	}

	if ro.Persist {
		return e.persistStaged(ctx, patterns, ro)
	}

	res := &Results{IsSoftTag: ro.Soft}

	cands, err := e.resolveCandidates(patterns, ro, res)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		res.NothingToTag = true
		return res, nil
	}

	if !ro.SkipAutoTag {
		cands = e.expandAutoTag(cands, res)
	}

	cands, err = e.computeVersions(cands, ro, res)
	if err != nil {
		return nil, err
	}

	if ro.RunPipeline && e.Pipeline != nil {
		cands = e.runPipeline(ctx, cands, ro, res)
	}

	if len(cands) == 0 {
		return res, nil
	}

	if ro.Soft {
		return res, e.stageAll(cands, ro, res)
	}

	e.persistCandidates(ctx, cands, ro, res)
	return res, nil
}

// resolveCandidates turns requested patterns into concrete components with
// pending changes (or all selected ones with Unmodified).
func (e *Engine) resolveCandidates(patterns []string, ro resolved, res *Results) ([]*candidate, error) {
	var modified []component.ID
	if e.Changes != nil {
		var err error
		modified, err = e.Changes.Modified()
		if err != nil {
			return nil, fmt.Errorf("detect modified components: %w", err)
		}
	}
	// Explicitly requested components are tagged even without pending
	// changes; the modified filter applies to the "tag everything" form,
	// where unchanged components are excluded silently (NOTHING_TO_TAG,
	// not an error) unless Unmodified is set.
	var selected []component.ID
	if len(patterns) == 0 {
		if ro.Unmodified {
			selected = e.componentPool(modified)
		} else {
			selected = modified
		}
	} else {
		m, err := component.NewMatcher(patterns)
		if err != nil {
			return nil, vererr.Validationf("%v", err)
		}
		for _, id := range e.componentPool(modified) {
			if m.Match(id) {
				selected = append(selected, id)
			}
		}
		if len(selected) == 0 {
			return nil, vererr.NotFoundf("no components match %v", patterns)
		}
	}

	var cands []*candidate
	seen := map[string]bool{}
	for _, id := range selected {
		key := id.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		cands = append(cands, &candidate{id: component.ID{Scope: id.Scope, Name: id.Name}})
	}
	return cands, nil
}

// componentPool unions declared components, components with snaps, and
// currently modified ones.
func (e *Engine) componentPool(modified []component.ID) []component.ID {
	seen := map[string]bool{}
	var pool []component.ID
	add := func(ids []component.ID) {
		for _, id := range ids {
			if !seen[id.Key()] {
				seen[id.Key()] = true
				pool = append(pool, id)
			}
		}
	}
	add(e.Known)
	if withHeads, err := e.Graph.Components(); err == nil {
		add(withHeads)
	}
	add(modified)
	return pool
}

// expandAutoTag grows the candidate set with every component that
// transitively depends on a candidate, to a fixed point. The visited set
// guarantees termination on cyclic graphs; a detected cycle becomes a
// warning, not a crash.
func (e *Engine) expandAutoTag(cands []*candidate, res *Results) []*candidate {
	inSet := map[string]bool{}
	trigger := map[string]string{}
	for _, c := range cands {
		inSet[c.id.Key()] = true
	}

	warned := map[string]bool{}
	for i := 0; i < len(cands); i++ {
		c := cands[i]
		dependents, err := e.Deps.DependentsOf(c.id)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("dependents of %s: %v", c.id.FullName(), err))
			continue
		}
		for _, d := range dependents {
			dk := d.Key()
			if inSet[dk] {
				if chainContains(trigger, c.id.Key(), dk) && !warned[dk] {
					warned[dk] = true
					res.Warnings = append(res.Warnings,
						fmt.Sprintf("dependency cycle involving %s and %s", d.FullName(), c.id.FullName()))
				}
				continue
			}
			inSet[dk] = true
			trigger[dk] = c.id.Key()
			cands = append(cands, &candidate{
				id:          component.ID{Scope: d.Scope, Name: d.Name},
				auto:        true,
				triggeredBy: c.id.FullName(),
				reason:      fmt.Sprintf("depends on %s", c.id.FullName()),
			})
		}
	}
	return cands
}

// chainContains walks the trigger chain upward from key and reports whether
// target appears in it.
func chainContains(trigger map[string]string, key, target string) bool {
	seen := map[string]bool{}
	for k := key; k != "" && !seen[k]; k = trigger[k] {
		if k == target {
			return true
		}
		seen[k] = true
	}
	return false
}

// computeVersions fills current and next versions. Monotonicity problems
// are per-component failures collected before anything persists.
func (e *Engine) computeVersions(cands []*candidate, ro resolved, res *Results) ([]*candidate, error) {
	var keep []*candidate
	for _, c := range cands {
		latest, err := e.Graph.LatestTag(c.id)
		if err != nil {
			return nil, err
		}
		c.current = semrel.ZeroVersion
		if latest != nil {
			c.current = latest.Version
		} else {
			c.isNew = true
		}

		switch {
		case c.auto:
			// an auto candidate keeps a pending explicit version if one
			// was staged earlier
			if staged, err := e.Staged.Get(c.id); err == nil && staged != nil {
				c.next = staged.IntendedVersion
			} else {
				c.next, err = semrel.Next(c.current, ro.releaseType, ro.IncrementBy, ro.PreID)
				if err != nil {
					return nil, err
				}
			}
		case ro.Version != "":
			cmp, err := semrel.Compare(ro.Version, c.current)
			if err != nil {
				return nil, err
			}
			if cmp <= 0 {
				res.Failed = append(res.Failed, Failure{
					Component:      c.id,
					FailureMessage: fmt.Sprintf("version %s does not advance current %s", ro.Version, c.current),
				})
				continue
			}
			c.next = ro.Version
		default:
			var err error
			c.next, err = semrel.Next(c.current, ro.releaseType, ro.IncrementBy, ro.PreID)
			if err != nil {
				return nil, err
			}
		}
		keep = append(keep, c)
	}
	return keep, nil
}

// runPipeline executes the build/test pipeline per candidate, bounded by
// the worker pool. A failure excludes the candidate unless ForceDeploy is
// set, in which case it degrades to a warning.
func (e *Engine) runPipeline(ctx context.Context, cands []*candidate, ro resolved, res *Results) []*candidate {
	_ = util.Parallel(ctx, cands, e.workers(), func(ctx context.Context, c *candidate) error {
		out, err := e.Pipeline.Run(ctx, c.id)
		if err != nil {
			c.pipelineFailed = true
			c.pipelineDetail = err.Error()
			return nil
		}
		if !out.Success {
			c.pipelineFailed = true
			if out.Err != nil {
				c.pipelineDetail = out.Err.Error()
			} else {
				c.pipelineDetail = "pipeline reported failure"
			}
		}
		return nil
	})

	var keep []*candidate
	for _, c := range cands {
		if !c.pipelineFailed {
			keep = append(keep, c)
			continue
		}
		if ro.ForceDeploy {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("%s: pipeline failed but force-deploy set: %s", c.id.FullName(), c.pipelineDetail))
			keep = append(keep, c)
			continue
		}
		res.Failed = append(res.Failed, Failure{
			Component:      c.id,
			FailureMessage: fmt.Sprintf("pipeline failed: %s", c.pipelineDetail),
		})
	}
	return keep
}

// stageAll writes staged records for every candidate; no snap or tag is
// created.
func (e *Engine) stageAll(cands []*candidate, ro resolved, res *Results) error {
	for _, c := range cands {
		base, err := e.Graph.ResolveHead(c.id, ro.laneName)
		if err != nil && !errors.Is(err, vererr.ErrNotFound) {
			return err
		}
		rec := StagedTag{
			Component:       c.id,
			IntendedVersion: c.next,
			BaseSnap:        base,
			Message:         ro.Message,
			StagedAt:        time.Now(),
		}
		if err := e.Staged.Stage(rec); err != nil {
			return err
		}
		e.appendResult(res, c, "")
	}
	e.log().Info("soft tag staged", "components", len(cands))
	return nil
}

// persistCandidates snaps and tags every candidate. Per-component work is
// independent: one failure never rolls back another component.
func (e *Engine) persistCandidates(ctx context.Context, cands []*candidate, ro resolved, res *Results) {
	var resMu sync.Mutex
	_ = util.Parallel(ctx, cands, e.workers(), func(ctx context.Context, c *candidate) error {
		snapHash, err := e.snapAndTag(c, ro)
		resMu.Lock()
		defer resMu.Unlock()
		if err != nil {
			res.Failed = append(res.Failed, Failure{Component: c.id, FailureMessage: err.Error()})
			return nil
		}
		e.appendResult(res, c, snapHash)
		return nil
	})
}

func (e *Engine) appendResult(res *Results, c *candidate, snapHash string) {
	r := Result{
		Component:   c.id.WithVersion(c.next),
		Version:     c.next,
		Snap:        snapHash,
		TriggeredBy: c.triggeredBy,
		Reason:      c.reason,
	}
	if c.auto {
		res.AutoTagged = append(res.AutoTagged, r)
	} else {
		res.Tagged = append(res.Tagged, r)
	}
	if c.isNew {
		res.NewComponents = append(res.NewComponents, c.id)
	}
}

// snapAndTag creates the snap+tag pair for one candidate under the
// component's write lock. The pair is one logical unit: the head only moves
// after both the snap and its tag exist; a snap object left behind by a
// failed tag write is unreferenced and harmless.
func (e *Engine) snapAndTag(c *candidate, ro resolved) (string, error) {
	unlock := e.mu.Lock(c.id.Key())
	defer unlock()

	head, err := e.Graph.ResolveHead(c.id, ro.laneName)
	if err != nil {
		if !errors.Is(err, vererr.ErrNotFound) {
			return "", err
		}
		head = ""
	}

	filesetHash, err := e.filesetFor(c.id, head)
	if err != nil {
		return "", err
	}

	message := ro.Message
	if message == "" {
		message = fmt.Sprintf("release %s %s", c.id.FullName(), c.next)
	}

	snap := &graph.Snap{
		Component: component.ID{Scope: c.id.Scope, Name: c.id.Name},
		Fileset:   filesetHash,
		Message:   message,
		Author:    ro.Author,
		Timestamp: time.Now(),
	}
	if head != "" {
		snap.Parents = []string{head}
	}

	snapHash, err := e.Graph.PutSnap(snap)
	if err != nil {
		return "", err
	}
	if err := e.Graph.PutTag(graph.Tag{Component: c.id, Version: c.next, Snap: snapHash}); err != nil {
		return "", err
	}

	if err := e.advanceHead(c.id, snapHash, ro.laneName); err != nil {
		return "", err
	}
	if err := e.Staged.Clear(c.id); err != nil {
		return "", err
	}

	e.log().Info("component tagged",
		"component", c.id.FullName(),
		"version", c.next,
		"snap", snapHash,
		"auto", c.auto)
	return snapHash, nil
}

// filesetFor picks the manifest for a new snap: the pending working
// manifest when the component is modified, otherwise the head's manifest
// (auto candidates re-version unchanged content). A component not declared
// in the workspace has no directory to scan and keeps its head manifest;
// any other scan failure fails the component rather than tagging stale
// content.
func (e *Engine) filesetFor(id component.ID, head string) (string, error) {
	if e.Changes != nil {
		fs, err := e.Changes.Fileset(id)
		if err != nil && !errors.Is(err, vererr.ErrNotFound) {
			return "", fmt.Errorf("scan %s: %w", id.FullName(), err)
		}
		if fs != nil {
			return graph.PutFileset(e.Graph.Store(), fs)
		}
	}
	if head != "" {
		s, err := e.Graph.GetSnap(head)
		if err != nil {
			return "", err
		}
		return s.Fileset, nil
	}
	return graph.PutFileset(e.Graph.Store(), &graph.Fileset{Files: map[string]string{}})
}

func (e *Engine) advanceHead(id component.ID, snapHash, laneName string) error {
	if laneName != "" {
		return e.Lanes.Advance(laneName, id, snapHash)
	}
	return e.Graph.SetHead(id, snapHash)
}

// persistStaged finalizes previously staged tags. Each record is atomic at
// single-component granularity: one stale or failing record never touches
// the others. A staged base that no longer matches the component head is
// rejected rather than silently rebased.
func (e *Engine) persistStaged(ctx context.Context, patterns []string, ro resolved) (*Results, error) {
	res := &Results{}

	staged, err := e.Staged.List()
	if err != nil {
		return nil, err
	}
	if len(patterns) > 0 {
		m, err := component.NewMatcher(patterns)
		if err != nil {
			return nil, vererr.Validationf("%v", err)
		}
		var filtered []StagedTag
		for _, s := range staged {
			if m.Match(s.Component) {
				filtered = append(filtered, s)
			}
		}
		staged = filtered
	}
	if len(staged) == 0 {
		res.NothingToTag = true
		return res, nil
	}

	var resMu sync.Mutex
	_ = util.Parallel(ctx, staged, e.workers(), func(ctx context.Context, rec StagedTag) error {
		r, err := e.persistOne(rec, ro)
		resMu.Lock()
		defer resMu.Unlock()
		if err != nil {
			res.Failed = append(res.Failed, Failure{Component: rec.Component, FailureMessage: err.Error()})
			return nil
		}
		res.Tagged = append(res.Tagged, r)
		return nil
	})
	return res, nil
}

func (e *Engine) persistOne(rec StagedTag, ro resolved) (Result, error) {
	unlock := e.mu.Lock(rec.Component.Key())
	defer unlock()

	head, err := e.Graph.ResolveHead(rec.Component, ro.laneName)
	if err != nil {
		if !errors.Is(err, vererr.ErrNotFound) {
			return Result{}, err
		}
		head = ""
	}
	if rec.BaseSnap != head {
		return Result{}, fmt.Errorf("staged base %q is stale: head moved to %q", rec.BaseSnap, head)
	}

	latest, err := e.Graph.LatestTag(rec.Component)
	if err != nil {
		return Result{}, err
	}
	if latest != nil {
		cmp, err := semrel.Compare(rec.IntendedVersion, latest.Version)
		if err != nil {
			return Result{}, err
		}
		if cmp <= 0 {
			return Result{}, fmt.Errorf("staged version %s does not advance current %s", rec.IntendedVersion, latest.Version)
		}
	}

	filesetHash, err := e.filesetFor(rec.Component, head)
	if err != nil {
		return Result{}, err
	}

	message := rec.Message
	if message == "" {
		message = fmt.Sprintf("release %s %s", rec.Component.FullName(), rec.IntendedVersion)
	}

	snap := &graph.Snap{
		Component: rec.Component,
		Fileset:   filesetHash,
		Message:   message,
		Author:    ro.Author,
		Timestamp: time.Now(),
	}
	if head != "" {
		snap.Parents = []string{head}
	}

	snapHash, err := e.Graph.PutSnap(snap)
	if err != nil {
		return Result{}, err
	}
	if err := e.Graph.PutTag(graph.Tag{Component: rec.Component, Version: rec.IntendedVersion, Snap: snapHash}); err != nil {
		return Result{}, err
	}
	if err := e.advanceHead(rec.Component, snapHash, ro.laneName); err != nil {
		return Result{}, err
	}
	if err := e.Staged.Clear(rec.Component); err != nil {
		return Result{}, err
	}

	e.log().Info("staged tag persisted",
		"component", rec.Component.FullName(),
		"version", rec.IntendedVersion,
		"snap", snapHash)
	return Result{
		Component: rec.Component.WithVersion(rec.IntendedVersion),
		Version:   rec.IntendedVersion,
		Snap:      snapHash,
	}, nil
}

// CreateMergeSnap records a two-parent merge snap (ours, theirs order
// preserved) and advances the head of the requested line. The snap is not
// versioned; tagging it is a separate request.
func (e *Engine) CreateMergeSnap(id component.ID, ours, theirs, filesetHash, message, author, laneName string) (string, error) {
	unlock := e.mu.Lock(id.Key())
	defer unlock()

	if message == "" {
		message = fmt.Sprintf("merge into %s", id.FullName())
	}
	snap := &graph.Snap{
		Parents:   []string{ours, theirs},
		Component: component.ID{Scope: id.Scope, Name: id.Name},
		Fileset:   filesetHash,
		Message:   message,
		Author:    author,
		Timestamp: time.Now(),
	}
	snapHash, err := e.Graph.PutSnap(snap)
	if err != nil {
		return "", err
	}
	if err := e.advanceHead(id, snapHash, laneName); err != nil {
		return "", err
	}
	e.log().Info("merge snap created", "component", id.FullName(), "snap", snapHash)
	return snapHash, nil
}

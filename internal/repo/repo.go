// Package repo wires the engines together over one repository directory.
package repo

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/keshon/snapver/internal/component"
	"github.com/keshon/snapver/internal/config"
	"github.com/keshon/snapver/internal/deps"
	"github.com/keshon/snapver/internal/graph"
	"github.com/keshon/snapver/internal/lane"
	"github.com/keshon/snapver/internal/merge"
	"github.com/keshon/snapver/internal/pipeline"
	"github.com/keshon/snapver/internal/store"
	"github.com/keshon/snapver/internal/tag"
	"github.com/keshon/snapver/internal/util"
	"github.com/keshon/snapver/internal/workspace"
)

// StoreBackend selects the object-store implementation.
const (
	StoreFS     = "fs"
	StoreBadger = "badger"
)

// repoConfig is the persisted per-repository config.json.
type repoConfig struct {
	Store string `json:"store"`
}

// Repository is an initialized repository with its engines wired.
type Repository struct {
	Layout    *config.Layout
	Workspace config.Workspace
	Store     store.Store
	Graph     *graph.Graph
	Lanes     *lane.Store
	Staged    *tag.StagedStore
	Records   *merge.RecordStore
	Tag       *tag.Engine
	Merge     *merge.Engine

	closer func() error
}

// InitAt initializes a repository at the given workspace directory.
// Returns (repo, created, error); an existing repository is opened.
func InitAt(workdir, backend string, ws config.Workspace, log *slog.Logger) (*Repository, bool, error) {
	layout := config.NewLayout(workdir)

	if _, err := os.Stat(layout.ConfigFile()); err == nil {
		r, err := OpenAt(workdir, ws, log)
		return r, false, err
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("check repository at %q: %w", workdir, err)
	}

	if backend == "" {
		backend = StoreFS
	}
	if backend != StoreFS && backend != StoreBadger {
		return nil, false, fmt.Errorf("unknown store backend %q", backend)
	}

	for _, d := range layout.AllDirs() {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, false, fmt.Errorf("failed to create dir %q: %w", d, err)
		}
	}
	if err := util.WriteJSON(layout.ConfigFile(), &repoConfig{Store: backend}); err != nil {
		return nil, false, fmt.Errorf("failed to save config.json: %w", err)
	}

	r, err := OpenAt(workdir, ws, log)
	return r, err == nil, err
}

// OpenAt opens an existing repository and wires the engines.
func OpenAt(workdir string, ws config.Workspace, log *slog.Logger) (*Repository, error) {
	if log == nil {
		log = slog.Default()
	}
	layout := config.NewLayout(workdir)

	var rc repoConfig
	if err := util.ReadJSON(layout.ConfigFile(), &rc); err != nil {
		return nil, fmt.Errorf("not a repository (missing %s): %w", layout.ConfigFile(), err)
	}

	var st store.Store
	closer := func() error { return nil }
	switch rc.Store {
	case StoreBadger:
		bs, err := store.OpenBadgerStore(layout.ObjectsDir())
		if err != nil {
			return nil, err
		}
		st = bs
		closer = bs.Close
	default:
		fsStore, err := store.NewFSStore(layout.ObjectsDir())
		if err != nil {
			return nil, err
		}
		st = fsStore
	}

	lanes := lane.NewStore(layout)
	g := graph.New(st, layout, lanes, log)

	provider, err := deps.NewStaticProvider(ws.Components)
	if err != nil {
		return nil, err
	}

	known := make([]component.ID, 0, len(ws.Components))
	for _, c := range ws.Components {
		known = append(known, component.ID{Scope: c.Scope, Name: c.Name})
	}

	changes := &workspace.Source{Root: workdir, Components: ws.Components, Graph: g}

	runner := &pipeline.ExecRunner{
		Command: ws.Pipeline.Command,
		Dir:     workdir,
		Timeout: time.Duration(ws.Pipeline.Timeout) * time.Second,
		Log:     log,
	}

	staged := tag.NewStagedStore(layout.StagedDir())
	tagEngine := &tag.Engine{
		Graph:    g,
		Deps:     provider,
		Pipeline: runner,
		Staged:   staged,
		Lanes:    lanes,
		Changes:  changes,
		Known:    known,
		Workers:  ws.Workers,
		Log:      log,
	}

	records := merge.NewRecordStore(layout.MergesDir())
	mergeEngine := &merge.Engine{
		Graph:   g,
		Tags:    tagEngine,
		Records: records,
		Lanes:   lanes,
		Changes: changes,
		Install: pipeline.NoopRunner{},
		Compile: runner,
		Workers: ws.Workers,
		Log:     log,
	}

	return &Repository{
		Layout:    layout,
		Workspace: ws,
		Store:     st,
		Graph:     g,
		Lanes:     lanes,
		Staged:    staged,
		Records:   records,
		Tag:       tagEngine,
		Merge:     mergeEngine,
		closer:    closer,
	}, nil
}

// Close releases store resources.
func (r *Repository) Close() error {
	return r.closer()
}

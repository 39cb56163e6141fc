// Package graph maintains the per-component version graph: immutable snap
// nodes in content-addressed storage, tag pointers, and head references for
// the default line and named lanes.
package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/keshon/snapver/internal/component"
	"github.com/keshon/snapver/internal/config"
	"github.com/keshon/snapver/internal/lane"
	"github.com/keshon/snapver/internal/store"
	"github.com/keshon/snapver/internal/vererr"
)

// Graph reads and writes the version graph. Read operations are
// side-effect-free and safe for concurrent use; callers serialize writes per
// component (the tag engine holds a keyed mutex for that).
type Graph struct {
	store  store.Store
	layout *config.Layout
	lanes  *lane.Store
	log    *slog.Logger
}

// New opens a graph over the given object store and repository layout.
func New(st store.Store, layout *config.Layout, lanes *lane.Store, log *slog.Logger) *Graph {
	if log == nil {
		log = slog.Default()
	}
	return &Graph{store: st, layout: layout, lanes: lanes, log: log}
}

// Store exposes the underlying object store.
func (g *Graph) Store() store.Store { return g.store }

// GetSnap loads a snap by hash.
func (g *Graph) GetSnap(hash string) (*Snap, error) {
	data, err := g.store.Get(hash)
	if err != nil {
		return nil, err
	}
	return decodeSnap(hash, data)
}

// PutSnap persists a snap and returns its content hash. Parents must exist
// and must not form a cycle with the new node; violations are integrity
// errors. Re-putting identical content returns the same hash with no new
// object.
func (g *Graph) PutSnap(s *Snap) (string, error) {
	if len(s.Parents) > 2 {
		return "", vererr.Validationf("snap may have at most 2 parents, got %d", len(s.Parents))
	}

	data, err := s.encode()
	if err != nil {
		return "", err
	}
	hash := store.HashBytes(data)

	for _, p := range s.Parents {
		if p == "" {
			return "", vererr.Integrityf("snap for %s has an empty parent hash", s.Component)
		}
		ok, err := g.store.Exists(p)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", vererr.Integrityf("snap for %s references missing parent %q", s.Component, p)
		}
		reachable, err := g.reachableFrom(p, hash)
		if err != nil {
			return "", err
		}
		if reachable {
			return "", vererr.Integrityf("snap %q would create a parent cycle via %q", hash, p)
		}
	}

	stored, err := g.store.Put(data)
	if err != nil {
		return "", fmt.Errorf("store snap for %s: %w", s.Component, err)
	}
	s.Hash = stored

	g.log.Debug("snap stored",
		"component", s.Component.FullName(),
		"snap", stored,
		"parents", len(s.Parents))
	return stored, nil
}

// reachableFrom reports whether target is reachable from start by parent
// edges.
func (g *Graph) reachableFrom(start, target string) (bool, error) {
	seen := map[string]bool{}
	stack := []string{start}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		if h == target {
			return true, nil
		}
		s, err := g.GetSnap(h)
		if err != nil {
			if errors.Is(err, vererr.ErrNotFound) {
				continue
			}
			return false, err
		}
		stack = append(stack, s.Parents...)
	}
	return false, nil
}

// headPath returns the default-line head ref file for a component.
func (g *Graph) headPath(id component.ID) string {
	return filepath.Join(g.layout.HeadsDir(), id.Key())
}

// ResolveHead returns the head snap hash of a component. With a lane name,
// the lane's head is preferred; a component never snapped inside the lane
// falls back to the default line. A component with no snaps at all fails
// with ErrNotFound.
func (g *Graph) ResolveHead(id component.ID, laneName string) (string, error) {
	if laneName != config.DefaultLine {
		ln, err := g.lanes.Get(laneName)
		if err != nil {
			return "", err
		}
		if h, ok := ln.Heads[id.Key()]; ok && h != "" {
			return h, nil
		}
	}

	data, err := os.ReadFile(g.headPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", vererr.NotFoundf("component %s has no snaps", id.FullName())
		}
		return "", fmt.Errorf("read head for %s: %w", id.FullName(), err)
	}
	h := strings.TrimSpace(string(data))
	if h == "" {
		return "", vererr.NotFoundf("component %s has no snaps", id.FullName())
	}
	return h, nil
}

// SetHead moves the default-line head ref of a component.
func (g *Graph) SetHead(id component.ID, snapHash string) error {
	if err := os.MkdirAll(g.layout.HeadsDir(), 0o755); err != nil {
		return fmt.Errorf("create heads dir: %w", err)
	}
	if err := os.WriteFile(g.headPath(id), []byte(snapHash), 0o644); err != nil {
		return fmt.Errorf("write head for %s: %w", id.FullName(), err)
	}
	return nil
}

// Components lists every component with a default-line head.
func (g *Graph) Components() ([]component.ID, error) {
	entries, err := os.ReadDir(g.layout.HeadsDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read heads dir: %w", err)
	}
	ids := make([]component.ID, 0, len(entries))
	for _, e := range entries {
		id, err := component.Parse(strings.ReplaceAll(e.Name(), "__", "/"))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Package workspace provides a filesystem-backed change source: it hashes
// component directories into file manifests and compares them against each
// component's head snap.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/keshon/snapver/internal/component"
	"github.com/keshon/snapver/internal/config"
	"github.com/keshon/snapver/internal/graph"
	"github.com/keshon/snapver/internal/store"
	"github.com/keshon/snapver/internal/vererr"
)

// Source scans declared component directories.
type Source struct {
	// Root is the workspace directory containing the components.
	Root       string
	Components []config.ComponentConfig
	Graph      *graph.Graph
}

var ignored = map[string]bool{
	config.RepoDir:  true,
	".snapver.yaml": true,
	".git":          true,
}

func (s *Source) componentDir(id component.ID) (string, bool) {
	for _, c := range s.Components {
		if c.Name == id.Name && c.Scope == id.Scope {
			p := c.Path
			if p == "" {
				p = id.FullName()
			}
			return filepath.Join(s.Root, p), true
		}
	}
	return "", false
}

// Fileset hashes every regular file under the component's directory into a
// manifest of workspace-relative paths.
func (s *Source) Fileset(id component.ID) (*graph.Fileset, error) {
	dir, ok := s.componentDir(id)
	if !ok {
		return nil, vererr.NotFoundf("component %s is not declared in the workspace", id.FullName())
	}

	files := map[string]string{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if ignored[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if ignored[d.Name()] || !d.Type().IsRegular() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %q: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = store.HashBytes(data)
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &graph.Fileset{Files: map[string]string{}}, nil
		}
		return nil, err
	}
	return &graph.Fileset{Files: files}, nil
}

// Modified lists components whose working manifest differs from their head
// snap's manifest. A component with no snaps and a non-empty directory
// counts as modified.
func (s *Source) Modified() ([]component.ID, error) {
	var out []component.ID
	for _, c := range s.Components {
		id := component.ID{Scope: c.Scope, Name: c.Name}

		current, err := s.Fileset(id)
		if err != nil {
			return nil, err
		}

		head, err := s.Graph.ResolveHead(id, "")
		if err != nil {
			if errors.Is(err, vererr.ErrNotFound) {
				if len(current.Files) > 0 {
					out = append(out, id)
				}
				continue
			}
			return nil, err
		}

		snap, err := s.Graph.GetSnap(head)
		if err != nil {
			return nil, err
		}
		headFS, err := graph.GetFileset(s.Graph.Store(), snap.Fileset)
		if err != nil {
			return nil, err
		}
		if !equalManifest(current.Files, headFS.Files) {
			out = append(out, id)
		}
	}
	return out, nil
}

func equalManifest(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for p, h := range a {
		if b[p] != h {
			return false
		}
	}
	return true
}

package workspace_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/snapver/internal/component"
	"github.com/keshon/snapver/internal/config"
	"github.com/keshon/snapver/internal/graph"
	"github.com/keshon/snapver/internal/lane"
	"github.com/keshon/snapver/internal/store"
	"github.com/keshon/snapver/internal/workspace"
)

func newTestSource(t *testing.T) (*workspace.Source, *graph.Graph, string) {
	t.Helper()
	root := t.TempDir()
	layout := config.NewLayout(filepath.Join(root, config.RepoDir))
	g := graph.New(store.NewMemStore(), layout, lane.NewStore(layout), nil)
	src := &workspace.Source{
		Root: root,
		Components: []config.ComponentConfig{
			{Scope: "core", Name: "a", Path: "core/a"},
		},
		Graph: g,
	}
	return src, g, root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFilesetHashesComponentFiles(t *testing.T) {
	src, _, root := newTestSource(t)
	id := component.MustParse("core/a")

	writeFile(t, root, "core/a/main.go", "package a")
	writeFile(t, root, "core/a/sub/util.go", "package sub")
	writeFile(t, root, "core/a/.git/config", "ignored")

	fs, err := src.Fileset(id)
	require.NoError(t, err)
	assert.Len(t, fs.Files, 2)
	assert.Contains(t, fs.Files, "main.go")
	assert.Contains(t, fs.Files, "sub/util.go")
}

func TestFilesetUndeclaredComponent(t *testing.T) {
	src, _, _ := newTestSource(t)
	_, err := src.Fileset(component.MustParse("nope/x"))
	require.Error(t, err)
}

func TestModifiedTracksHead(t *testing.T) {
	src, g, root := newTestSource(t)
	id := component.MustParse("core/a")

	// new component with files counts as modified
	writeFile(t, root, "core/a/main.go", "package a")
	mod, err := src.Modified()
	require.NoError(t, err)
	require.Len(t, mod, 1)
	assert.True(t, mod[0].Same(id))

	// snap the current manifest; the component becomes clean
	fs, err := src.Fileset(id)
	require.NoError(t, err)
	fsHash, err := graph.PutFileset(g.Store(), fs)
	require.NoError(t, err)
	hash, err := g.PutSnap(&graph.Snap{
		Component: id,
		Fileset:   fsHash,
		Message:   "v1",
		Timestamp: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, g.SetHead(id, hash))

	mod, err = src.Modified()
	require.NoError(t, err)
	assert.Empty(t, mod)

	// edit a file; the component is modified again
	writeFile(t, root, "core/a/main.go", "package a // changed")
	mod, err = src.Modified()
	require.NoError(t, err)
	require.Len(t, mod, 1)
}

package graph_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/snapver/internal/component"
	"github.com/keshon/snapver/internal/config"
	"github.com/keshon/snapver/internal/graph"
	"github.com/keshon/snapver/internal/lane"
	"github.com/keshon/snapver/internal/store"
	"github.com/keshon/snapver/internal/vererr"
)

func newTestGraph(t *testing.T) (*graph.Graph, *lane.Store) {
	t.Helper()
	layout := config.NewLayout(t.TempDir())
	lanes := lane.NewStore(layout)
	return graph.New(store.NewMemStore(), layout, lanes, nil), lanes
}

var fixedTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func putSnap(t *testing.T, g *graph.Graph, id component.ID, message string, parents ...string) string {
	t.Helper()
	fsHash, err := graph.PutFileset(g.Store(), &graph.Fileset{Files: map[string]string{"main.go": message}})
	require.NoError(t, err)
	hash, err := g.PutSnap(&graph.Snap{
		Parents:   parents,
		Component: id,
		Fileset:   fsHash,
		Message:   message,
		Timestamp: fixedTime,
	})
	require.NoError(t, err)
	require.NoError(t, g.SetHead(id, hash))
	return hash
}

func TestPutSnapIdempotent(t *testing.T) {
	g, _ := newTestGraph(t)
	id := component.MustParse("core")

	s := &graph.Snap{Component: id, Message: "root", Timestamp: fixedTime}
	h1, err := g.PutSnap(s)
	require.NoError(t, err)
	h2, err := g.PutSnap(&graph.Snap{Component: id, Message: "root", Timestamp: fixedTime})
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "identical content and parents must yield the same snap")
}

func TestPutSnapRejectsDanglingParent(t *testing.T) {
	g, _ := newTestGraph(t)
	_, err := g.PutSnap(&graph.Snap{
		Component: component.MustParse("core"),
		Parents:   []string{"feedface"},
		Timestamp: fixedTime,
	})
	assert.True(t, errors.Is(err, vererr.ErrIntegrity))
}

func TestPutSnapRejectsTooManyParents(t *testing.T) {
	g, _ := newTestGraph(t)
	_, err := g.PutSnap(&graph.Snap{
		Component: component.MustParse("core"),
		Parents:   []string{"a", "b", "c"},
		Timestamp: fixedTime,
	})
	assert.True(t, errors.Is(err, vererr.ErrValidation))
}

func TestResolveHead(t *testing.T) {
	g, _ := newTestGraph(t)
	id := component.MustParse("core")

	_, err := g.ResolveHead(id, "")
	assert.True(t, errors.Is(err, vererr.ErrNotFound))

	h := putSnap(t, g, id, "first")
	got, err := g.ResolveHead(id, "")
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestResolveHeadInLane(t *testing.T) {
	g, lanes := newTestGraph(t)
	id := component.MustParse("core")

	h1 := putSnap(t, g, id, "first")
	_, err := lanes.Create("feature-x")
	require.NoError(t, err)

	// component not snapped in the lane falls back to the default line
	got, err := g.ResolveHead(id, "feature-x")
	require.NoError(t, err)
	assert.Equal(t, h1, got)

	fsHash, err := graph.PutFileset(g.Store(), &graph.Fileset{Files: map[string]string{"main.go": "lane"}})
	require.NoError(t, err)
	h2, err := g.PutSnap(&graph.Snap{Parents: []string{h1}, Component: id, Fileset: fsHash, Message: "lane work", Timestamp: fixedTime})
	require.NoError(t, err)
	require.NoError(t, lanes.Advance("feature-x", id, h2))

	got, err = g.ResolveHead(id, "feature-x")
	require.NoError(t, err)
	assert.Equal(t, h2, got)

	// default line is untouched by the lane
	got, err = g.ResolveHead(id, "")
	require.NoError(t, err)
	assert.Equal(t, h1, got)
}

func TestAncestorsNewestFirstAndRestartable(t *testing.T) {
	g, _ := newTestGraph(t)
	id := component.MustParse("core")

	h1 := putSnap(t, g, id, "one")
	h2 := putSnap(t, g, id, "two", h1)
	h3 := putSnap(t, g, id, "three", h2)

	walk := g.Ancestors(h3)
	var got []string
	for {
		s, err := walk.Next()
		require.NoError(t, err)
		if s == nil {
			break
		}
		got = append(got, s.Hash)
	}
	assert.Equal(t, []string{h3, h2, h1}, got)

	walk.Reset()
	s, err := walk.Next()
	require.NoError(t, err)
	assert.Equal(t, h3, s.Hash)
}

func TestCommonAncestor(t *testing.T) {
	g, _ := newTestGraph(t)
	id := component.MustParse("core")

	h0 := putSnap(t, g, id, "base")
	a := putSnap(t, g, id, "ours", h0)
	b := putSnap(t, g, id, "theirs", h0)

	base, err := g.CommonAncestor(a, b)
	require.NoError(t, err)
	assert.Equal(t, h0, base)

	// unrelated roots have no common ancestor
	other := putSnap(t, g, component.MustParse("api"), "unrelated root")
	base, err = g.CommonAncestor(a, other)
	require.NoError(t, err)
	assert.Empty(t, base)
}

func TestTagRules(t *testing.T) {
	g, _ := newTestGraph(t)
	id := component.MustParse("core")
	other := component.MustParse("api")

	h := putSnap(t, g, id, "first")

	require.NoError(t, g.PutTag(graph.Tag{Component: id, Version: "1.0.0", Snap: h}))

	// duplicate version
	err := g.PutTag(graph.Tag{Component: id, Version: "1.0.0", Snap: h})
	assert.True(t, errors.Is(err, vererr.ErrValidation))

	// missing snap
	err = g.PutTag(graph.Tag{Component: id, Version: "1.0.1", Snap: "feedface"})
	assert.True(t, errors.Is(err, vererr.ErrIntegrity))

	// snap of another component
	err = g.PutTag(graph.Tag{Component: other, Version: "1.0.0", Snap: h})
	assert.True(t, errors.Is(err, vererr.ErrIntegrity))

	// bad version string
	err = g.PutTag(graph.Tag{Component: id, Version: "one-point-oh", Snap: h})
	assert.True(t, errors.Is(err, vererr.ErrValidation))
}

func TestTagsSortedBySemverPrecedence(t *testing.T) {
	g, _ := newTestGraph(t)
	id := component.MustParse("core")

	h1 := putSnap(t, g, id, "one")
	h2 := putSnap(t, g, id, "two", h1)
	h3 := putSnap(t, g, id, "three", h2)

	require.NoError(t, g.PutTag(graph.Tag{Component: id, Version: "1.9.0", Snap: h1}))
	require.NoError(t, g.PutTag(graph.Tag{Component: id, Version: "1.10.0", Snap: h2}))
	require.NoError(t, g.PutTag(graph.Tag{Component: id, Version: "1.10.1-rc.1", Snap: h3}))

	tags, err := g.TagsFor(id)
	require.NoError(t, err)
	require.Len(t, tags, 3)
	assert.Equal(t, "1.9.0", tags[0].Version)
	assert.Equal(t, "1.10.0", tags[1].Version)

	latest, err := g.LatestTag(id)
	require.NoError(t, err)
	assert.Equal(t, "1.10.1-rc.1", latest.Version)
}

func TestVerifyCleanGraph(t *testing.T) {
	g, _ := newTestGraph(t)
	id := component.MustParse("core")

	h := putSnap(t, g, id, "first")
	require.NoError(t, g.PutTag(graph.Tag{Component: id, Version: "1.0.0", Snap: h}))

	problems, err := g.Verify()
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestVerifyReportsDamagedAndMissingObjects(t *testing.T) {
	layout := config.NewLayout(t.TempDir())
	fsStore, err := store.NewFSStore(layout.ObjectsDir())
	require.NoError(t, err)
	g := graph.New(fsStore, layout, lane.NewStore(layout), nil)
	id := component.MustParse("core")

	h1 := putSnap(t, g, id, "one")
	h2 := putSnap(t, g, id, "two", h1)

	objPath := func(hash string) string {
		return filepath.Join(layout.ObjectsDir(), hash+".bin")
	}

	// overwrite the head snap's fileset object with bytes that no longer
	// match its hash
	s, err := g.GetSnap(h2)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(objPath(s.Fileset), []byte("garbage"), 0o644))

	problems, err := g.Verify()
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0].Detail, "damaged")

	// remove the parent snap object entirely
	require.NoError(t, os.Remove(objPath(h1)))

	problems, err = g.Verify()
	require.NoError(t, err)
	require.NotEmpty(t, problems)

	var details []string
	for _, p := range problems {
		details = append(details, p.Detail)
	}
	joined := strings.Join(details, "\n")
	assert.Contains(t, joined, "missing")
	assert.Contains(t, joined, "broken history")
}

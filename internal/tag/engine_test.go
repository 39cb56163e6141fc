package tag_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/snapver/internal/component"
	"github.com/keshon/snapver/internal/config"
	"github.com/keshon/snapver/internal/deps"
	"github.com/keshon/snapver/internal/graph"
	"github.com/keshon/snapver/internal/lane"
	"github.com/keshon/snapver/internal/pipeline"
	"github.com/keshon/snapver/internal/store"
	"github.com/keshon/snapver/internal/tag"
	"github.com/keshon/snapver/internal/vererr"
)

type fakeChanges struct {
	modified   []component.ID
	filesets   map[string]*graph.Fileset
	filesetErr map[string]error
}

func (f *fakeChanges) Modified() ([]component.ID, error) { return f.modified, nil }

func (f *fakeChanges) Fileset(id component.ID) (*graph.Fileset, error) {
	if err := f.filesetErr[id.Key()]; err != nil {
		return nil, err
	}
	return f.filesets[id.Key()], nil
}

type fakePipeline struct {
	mu   sync.Mutex
	fail map[string]bool
	runs []string
}

func (p *fakePipeline) Run(ctx context.Context, id component.ID) (pipeline.Result, error) {
	p.mu.Lock()
	p.runs = append(p.runs, id.FullName())
	p.mu.Unlock()
	if p.fail[id.Key()] {
		return pipeline.Result{Success: false, Err: errors.New("tests failed")}, nil
	}
	return pipeline.Result{Success: true}, nil
}

type fixture struct {
	eng     *tag.Engine
	g       *graph.Graph
	lanes   *lane.Store
	changes *fakeChanges
	pipe    *fakePipeline
}

func newFixture(t *testing.T, cfgs []config.ComponentConfig) *fixture {
	t.Helper()
	layout := config.NewLayout(t.TempDir())
	lanes := lane.NewStore(layout)
	g := graph.New(store.NewMemStore(), layout, lanes, nil)

	provider, err := deps.NewStaticProvider(cfgs)
	require.NoError(t, err)

	known := make([]component.ID, 0, len(cfgs))
	for _, c := range cfgs {
		known = append(known, component.ID{Scope: c.Scope, Name: c.Name})
	}

	f := &fixture{
		g:       g,
		lanes:   lanes,
		changes: &fakeChanges{filesets: map[string]*graph.Fileset{}, filesetErr: map[string]error{}},
		pipe:    &fakePipeline{fail: map[string]bool{}},
	}
	f.eng = &tag.Engine{
		Graph:    g,
		Deps:     provider,
		Pipeline: f.pipe,
		Staged:   tag.NewStagedStore(layout.StagedDir()),
		Lanes:    lanes,
		Changes:  f.changes,
		Known:    known,
		Workers:  2,
	}
	return f
}

func (f *fixture) markModified(t *testing.T, id component.ID, content string) {
	t.Helper()
	f.changes.modified = append(f.changes.modified, id)
	f.changes.filesets[id.Key()] = &graph.Fileset{Files: map[string]string{"main.go": content}}
}

// release seeds one released version directly through the graph, bypassing
// the engine under test.
func (f *fixture) release(t *testing.T, id component.ID, version, content string) string {
	t.Helper()
	fsHash, err := graph.PutFileset(f.g.Store(), &graph.Fileset{Files: map[string]string{"main.go": content}})
	require.NoError(t, err)

	snap := &graph.Snap{
		Component: id,
		Fileset:   fsHash,
		Message:   "release " + version,
		Timestamp: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC),
	}
	if head, err := f.g.ResolveHead(id, ""); err == nil {
		snap.Parents = []string{head}
	}
	hash, err := f.g.PutSnap(snap)
	require.NoError(t, err)
	require.NoError(t, f.g.PutTag(graph.Tag{Component: id, Version: version, Snap: hash}))
	require.NoError(t, f.g.SetHead(id, hash))
	return hash
}

var (
	compA = component.MustParse("core/a")
	compB = component.MustParse("app/b")
)

func depAB() []config.ComponentConfig {
	return []config.ComponentConfig{
		{Scope: "core", Name: "a", Path: "core/a"},
		{Scope: "app", Name: "b", Path: "app/b", DependsOn: []string{"core/a"}},
	}
}

func TestAutoTagPropagatesToDependents(t *testing.T) {
	f := newFixture(t, depAB())
	f.release(t, compA, "1.0.0", "a v1")
	bHead := f.release(t, compB, "2.0.0", "b v2")

	res, err := f.eng.Tag(context.Background(), []string{"core/a"}, tag.Options{ReleaseType: "minor"})
	require.NoError(t, err)

	require.Len(t, res.Tagged, 1)
	assert.True(t, res.Tagged[0].Component.Same(compA))
	assert.Equal(t, "1.1.0", res.Tagged[0].Version)

	require.Len(t, res.AutoTagged, 1)
	auto := res.AutoTagged[0]
	assert.True(t, auto.Component.Same(compB))
	assert.Equal(t, "2.1.0", auto.Version)
	assert.Equal(t, "core/a", auto.TriggeredBy)

	newHead, err := f.g.ResolveHead(compB, "")
	require.NoError(t, err)
	assert.NotEqual(t, bHead, newHead, "dependent head must advance with the auto tag")

	latest, err := f.g.LatestTag(compB)
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", latest.Version)
}

func TestSkipAutoTag(t *testing.T) {
	f := newFixture(t, depAB())
	f.release(t, compA, "1.0.0", "a v1")
	f.release(t, compB, "2.0.0", "b v2")

	res, err := f.eng.Tag(context.Background(), []string{"core/a"}, tag.Options{
		ReleaseType: "minor",
		SkipAutoTag: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Tagged, 1)
	assert.Empty(t, res.AutoTagged)

	latest, err := f.g.LatestTag(compB)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", latest.Version)
}

func TestAutoTagCycleWarns(t *testing.T) {
	f := newFixture(t, []config.ComponentConfig{
		{Scope: "core", Name: "a", DependsOn: []string{"app/b"}},
		{Scope: "app", Name: "b", DependsOn: []string{"core/a"}},
	})
	f.release(t, compA, "1.0.0", "a v1")
	f.release(t, compB, "1.0.0", "b v1")

	res, err := f.eng.Tag(context.Background(), []string{"core/a"}, tag.Options{ReleaseType: "patch"})
	require.NoError(t, err)

	require.Len(t, res.Tagged, 1)
	require.Len(t, res.AutoTagged, 1)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "cycle")
}

func TestSoftTagThenPersist(t *testing.T) {
	f := newFixture(t, depAB())
	f.markModified(t, compA, "new code")

	ctx := context.Background()
	res, err := f.eng.Tag(ctx, []string{"core/a"}, tag.Options{
		ReleaseType: "major",
		Soft:        true,
		SkipAutoTag: true,
	})
	require.NoError(t, err)
	assert.True(t, res.IsSoftTag)
	require.Len(t, res.Tagged, 1)
	assert.Equal(t, "1.0.0", res.Tagged[0].Version)
	assert.Empty(t, res.Tagged[0].Snap, "soft tag must not create a snap")

	staged, err := f.eng.Staged.Get(compA)
	require.NoError(t, err)
	require.NotNil(t, staged)
	assert.Equal(t, "1.0.0", staged.IntendedVersion)

	latest, err := f.g.LatestTag(compA)
	require.NoError(t, err)
	assert.Nil(t, latest, "no tag may exist before persist")

	res, err = f.eng.Tag(ctx, nil, tag.Options{Persist: true})
	require.NoError(t, err)
	require.Len(t, res.Tagged, 1)
	assert.Equal(t, "1.0.0", res.Tagged[0].Version)
	assert.NotEmpty(t, res.Tagged[0].Snap)

	latest, err = f.g.LatestTag(compA)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "1.0.0", latest.Version)

	staged, err = f.eng.Staged.Get(compA)
	require.NoError(t, err)
	assert.Nil(t, staged, "persisting must clear the staged record")
}

func TestPersistRejectsStaleBase(t *testing.T) {
	f := newFixture(t, depAB())
	f.release(t, compA, "1.0.0", "a v1")
	f.markModified(t, compA, "staged work")

	ctx := context.Background()
	_, err := f.eng.Tag(ctx, []string{"core/a"}, tag.Options{
		ReleaseType: "minor",
		Soft:        true,
		SkipAutoTag: true,
	})
	require.NoError(t, err)

	// another release lands underneath the staged record
	f.release(t, compA, "1.0.1", "concurrent fix")

	res, err := f.eng.Tag(ctx, nil, tag.Options{Persist: true})
	require.NoError(t, err)
	assert.Empty(t, res.Tagged)
	require.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed[0].FailureMessage, "stale")
}

func TestExplicitVersionMustAdvance(t *testing.T) {
	f := newFixture(t, depAB())
	f.release(t, compA, "1.0.0", "a v1")

	res, err := f.eng.Tag(context.Background(), []string{"core/a"}, tag.Options{
		Version:     "0.9.0",
		SkipAutoTag: true,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Tagged)
	require.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed[0].FailureMessage, "does not advance")
}

func TestOptionValidation(t *testing.T) {
	f := newFixture(t, depAB())
	ctx := context.Background()

	_, err := f.eng.Tag(ctx, nil, tag.Options{Soft: true, Persist: true})
	assert.True(t, errors.Is(err, vererr.ErrValidation))

	_, err = f.eng.Tag(ctx, nil, tag.Options{Version: "2.0.0", ReleaseType: "minor"})
	assert.True(t, errors.Is(err, vererr.ErrValidation))

	_, err = f.eng.Tag(ctx, nil, tag.Options{ReleaseType: "patch", PreID: "rc"})
	assert.True(t, errors.Is(err, vererr.ErrValidation))

	_, err = f.eng.Tag(ctx, nil, tag.Options{Persist: true, ReleaseType: "minor"})
	assert.True(t, errors.Is(err, vererr.ErrValidation))
}

func TestNothingToTag(t *testing.T) {
	f := newFixture(t, depAB())

	res, err := f.eng.Tag(context.Background(), nil, tag.Options{ReleaseType: "patch"})
	require.NoError(t, err)
	assert.True(t, res.NothingToTag)
	assert.Empty(t, res.Tagged)
}

func TestUnknownPattern(t *testing.T) {
	f := newFixture(t, depAB())

	_, err := f.eng.Tag(context.Background(), []string{"nope/*"}, tag.Options{ReleaseType: "patch"})
	assert.True(t, errors.Is(err, vererr.ErrNotFound))
}

func TestPipelineFailureExcludesCandidate(t *testing.T) {
	f := newFixture(t, depAB())
	f.markModified(t, compA, "a work")
	f.markModified(t, compB, "b work")
	f.pipe.fail[compA.Key()] = true

	res, err := f.eng.Tag(context.Background(), nil, tag.Options{
		ReleaseType: "patch",
		RunPipeline: true,
		SkipAutoTag: true,
	})
	require.NoError(t, err)

	require.Len(t, res.Failed, 1)
	assert.True(t, res.Failed[0].Component.Same(compA))
	assert.Contains(t, res.Failed[0].FailureMessage, "pipeline")

	require.Len(t, res.Tagged, 1)
	assert.True(t, res.Tagged[0].Component.Same(compB))
	assert.Len(t, f.pipe.runs, 2)
}

func TestForceDeployDegradesPipelineFailure(t *testing.T) {
	f := newFixture(t, depAB())
	f.markModified(t, compA, "a work")
	f.pipe.fail[compA.Key()] = true

	res, err := f.eng.Tag(context.Background(), nil, tag.Options{
		ReleaseType: "patch",
		RunPipeline: true,
		ForceDeploy: true,
		SkipAutoTag: true,
	})
	require.NoError(t, err)

	assert.Empty(t, res.Failed)
	require.Len(t, res.Tagged, 1)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "force-deploy")
}

func TestScanFailureFailsComponent(t *testing.T) {
	f := newFixture(t, depAB())
	head := f.release(t, compA, "1.0.0", "a v1")
	f.changes.modified = append(f.changes.modified, compA)
	f.changes.filesetErr[compA.Key()] = errors.New("permission denied")

	res, err := f.eng.Tag(context.Background(), []string{"core/a"}, tag.Options{
		ReleaseType: "minor",
		SkipAutoTag: true,
	})
	require.NoError(t, err)

	assert.Empty(t, res.Tagged)
	require.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed[0].FailureMessage, "permission denied")

	latest, err := f.g.LatestTag(compA)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", latest.Version, "a failed scan must not produce a tag")

	still, err := f.g.ResolveHead(compA, "")
	require.NoError(t, err)
	assert.Equal(t, head, still)
}

func TestFirstSnapOfNewComponent(t *testing.T) {
	f := newFixture(t, depAB())
	f.markModified(t, compA, "hello")

	res, err := f.eng.Tag(context.Background(), []string{"core/a"}, tag.Options{
		ReleaseType: "minor",
		SkipAutoTag: true,
	})
	require.NoError(t, err)

	require.Len(t, res.Tagged, 1)
	assert.Equal(t, "0.1.0", res.Tagged[0].Version)
	require.Len(t, res.NewComponents, 1)
	assert.True(t, res.NewComponents[0].Same(compA))

	snap, err := f.g.GetSnap(res.Tagged[0].Snap)
	require.NoError(t, err)
	assert.Empty(t, snap.Parents, "first snap has no parents")
}

func TestTagInLaneLeavesDefaultLine(t *testing.T) {
	f := newFixture(t, depAB())
	defaultHead := f.release(t, compA, "1.0.0", "a v1")

	_, err := f.lanes.Create("feature-x")
	require.NoError(t, err)

	f.markModified(t, compA, "lane work")
	res, err := f.eng.Tag(context.Background(), []string{"core/a"}, tag.Options{
		ReleaseType: "minor",
		SkipAutoTag: true,
		Lane:        "feature-x",
	})
	require.NoError(t, err)
	require.Len(t, res.Tagged, 1)

	laneHead, err := f.g.ResolveHead(compA, "feature-x")
	require.NoError(t, err)
	assert.Equal(t, res.Tagged[0].Snap, laneHead)

	still, err := f.g.ResolveHead(compA, "")
	require.NoError(t, err)
	assert.Equal(t, defaultHead, still, "default line must not move for a lane tag")
}

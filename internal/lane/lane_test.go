package lane_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/snapver/internal/component"
	"github.com/keshon/snapver/internal/config"
	"github.com/keshon/snapver/internal/lane"
	"github.com/keshon/snapver/internal/vererr"
)

func newTestStore(t *testing.T) *lane.Store {
	t.Helper()
	return lane.NewStore(config.NewLayout(t.TempDir()))
}

func TestCreateAndList(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create("feature-x")
	require.NoError(t, err)

	_, err = s.Create("feature-x")
	assert.True(t, errors.Is(err, vererr.ErrValidation), "duplicate lane must fail validation")

	_, err = s.Create("bad/name")
	assert.True(t, errors.Is(err, vererr.ErrValidation))

	_, err = s.Create("alpha")
	require.NoError(t, err)

	lanes, err := s.List()
	require.NoError(t, err)
	require.Len(t, lanes, 2)
	assert.Equal(t, "alpha", lanes[0].Name)
	assert.Equal(t, "feature-x", lanes[1].Name)
}

func TestAdvanceKeepsLanesIndependent(t *testing.T) {
	s := newTestStore(t)
	id := component.MustParse("ui/button")

	_, err := s.Create("one")
	require.NoError(t, err)
	_, err = s.Create("two")
	require.NoError(t, err)

	require.NoError(t, s.Advance("one", id, "aaaa"))
	require.NoError(t, s.Advance("two", id, "bbbb"))

	one, err := s.Get("one")
	require.NoError(t, err)
	two, err := s.Get("two")
	require.NoError(t, err)

	assert.Equal(t, "aaaa", one.Heads[id.Key()])
	assert.Equal(t, "bbbb", two.Heads[id.Key()])
}

func TestActiveLane(t *testing.T) {
	s := newTestStore(t)

	active, err := s.Active()
	require.NoError(t, err)
	assert.Empty(t, active, "no HEADLANE file means the default line")

	err = s.SetActive("ghost")
	assert.True(t, errors.Is(err, vererr.ErrNotFound))

	_, err = s.Create("feature-x")
	require.NoError(t, err)
	require.NoError(t, s.SetActive("feature-x"))

	active, err = s.Active()
	require.NoError(t, err)
	assert.Equal(t, "feature-x", active)

	require.NoError(t, s.SetActive(""))
	active, err = s.Active()
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	err := s.Delete("missing")
	assert.True(t, errors.Is(err, vererr.ErrNotFound))

	_, err = s.Create("doomed")
	require.NoError(t, err)
	require.NoError(t, s.Delete("doomed"))

	_, err = s.Get("doomed")
	assert.True(t, errors.Is(err, vererr.ErrNotFound))
}

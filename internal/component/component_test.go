package component_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/snapver/internal/component"
)

func TestParse(t *testing.T) {
	id, err := component.Parse("ui/button@1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "ui", id.Scope)
	assert.Equal(t, "button", id.Name)
	assert.Equal(t, "1.2.3", id.Version)
	assert.Equal(t, "ui/button", id.FullName())
	assert.Equal(t, "ui/button@1.2.3", id.String())

	id, err = component.Parse("core")
	require.NoError(t, err)
	assert.Empty(t, id.Scope)
	assert.Equal(t, "core", id.Name)
	assert.Equal(t, "core", id.FullName())

	_, err = component.Parse("")
	assert.Error(t, err)
}

func TestSameIgnoresVersion(t *testing.T) {
	a := component.MustParse("ui/button@1.0.0")
	b := component.MustParse("ui/button@2.0.0")
	c := component.MustParse("ui/input@1.0.0")

	assert.True(t, a.Same(b))
	assert.False(t, a.Same(c))
}

func TestKeyIsFilesystemSafe(t *testing.T) {
	id := component.MustParse("ui/button")
	assert.Equal(t, "ui__button", id.Key())
	assert.Equal(t, "core", component.MustParse("core").Key())
}

func TestMatcher(t *testing.T) {
	m, err := component.NewMatcher([]string{"ui/*", "core"})
	require.NoError(t, err)

	assert.True(t, m.Match(component.MustParse("ui/button")))
	assert.True(t, m.Match(component.MustParse("core")))
	assert.False(t, m.Match(component.MustParse("api/server")))

	_, err = component.NewMatcher([]string{"ui/["})
	assert.Error(t, err)
}

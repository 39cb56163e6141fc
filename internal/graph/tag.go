package graph

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/keshon/snapver/internal/component"
	"github.com/keshon/snapver/internal/semrel"
	"github.com/keshon/snapver/internal/util"
	"github.com/keshon/snapver/internal/vererr"
)

// Tag is an immutable pointer from a semver version to a snap. At most one
// tag exists per (component, version).
type Tag struct {
	Component component.ID `json:"component"`
	Version   string       `json:"version"`
	Snap      string       `json:"snap"`
}

func (g *Graph) tagsPath(id component.ID) string {
	return filepath.Join(g.layout.TagsDir(), id.Key()+".json")
}

// TagsFor returns a component's tags sorted ascending by semver precedence.
func (g *Graph) TagsFor(id component.ID) ([]Tag, error) {
	var tags []Tag
	if err := util.ReadJSON(g.tagsPath(id), &tags); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tags for %s: %w", id.FullName(), err)
	}
	sort.Slice(tags, func(i, j int) bool {
		c, err := semrel.Compare(tags[i].Version, tags[j].Version)
		if err != nil {
			return tags[i].Version < tags[j].Version
		}
		return c < 0
	})
	return tags, nil
}

// LatestTag returns the highest-precedence tag of a component, or nil when
// the component has never been tagged.
func (g *Graph) LatestTag(id component.ID) (*Tag, error) {
	tags, err := g.TagsFor(id)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, nil
	}
	t := tags[len(tags)-1]
	return &t, nil
}

// FindTag resolves a (component, version) pair.
func (g *Graph) FindTag(id component.ID, version string) (*Tag, error) {
	tags, err := g.TagsFor(id)
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		if t.Version == version {
			return &t, nil
		}
	}
	return nil, vererr.NotFoundf("version %s of %s", version, id.FullName())
}

// PutTag persists a tag. The snap must exist and belong to the same
// component; a duplicate version is a validation error.
func (g *Graph) PutTag(t Tag) error {
	if !semrel.Valid(t.Version) {
		return vererr.Validationf("invalid version %q for %s", t.Version, t.Component.FullName())
	}
	s, err := g.GetSnap(t.Snap)
	if err != nil {
		if errors.Is(err, vererr.ErrNotFound) {
			return vererr.Integrityf("tag %s@%s references missing snap %q", t.Component.FullName(), t.Version, t.Snap)
		}
		return err
	}
	if !s.Component.Same(t.Component) {
		return vererr.Integrityf("tag %s@%s points at snap of %s", t.Component.FullName(), t.Version, s.Component.FullName())
	}

	tags, err := g.TagsFor(t.Component)
	if err != nil {
		return err
	}
	for _, existing := range tags {
		if existing.Version == t.Version {
			return vererr.Validationf("%s@%s already exists", t.Component.FullName(), t.Version)
		}
	}

	tags = append(tags, t)
	if err := util.WriteJSON(g.tagsPath(t.Component), tags); err != nil {
		return fmt.Errorf("write tags for %s: %w", t.Component.FullName(), err)
	}
	g.log.Debug("tag stored", "component", t.Component.FullName(), "version", t.Version, "snap", t.Snap)
	return nil
}

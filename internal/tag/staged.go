package tag

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/keshon/snapver/internal/component"
	"github.com/keshon/snapver/internal/util"
)

// StagedTag is a mutable pre-persistence record of a tag decision. Staging
// the same component again overwrites the previous record; persisting turns
// it into a real snap+tag pair.
type StagedTag struct {
	Component       component.ID `json:"component"`
	IntendedVersion string       `json:"intended_version"`
	BaseSnap        string       `json:"base_snap"` // head at stage time; empty for a first snap
	Message         string       `json:"message"`
	StagedAt        time.Time    `json:"staged_at"`
}

// StagedStore keeps one staged record per component, as JSON files.
type StagedStore struct {
	dir string
	mu  sync.Mutex
}

func NewStagedStore(dir string) *StagedStore {
	return &StagedStore{dir: dir}
}

func (s *StagedStore) path(id component.ID) string {
	return filepath.Join(s.dir, id.Key()+".json")
}

// Stage records a staged tag, replacing any previous record for the same
// component (last write wins).
func (s *StagedStore) Stage(t StagedTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := util.WriteJSON(s.path(t.Component), &t); err != nil {
		return fmt.Errorf("stage tag for %s: %w", t.Component.FullName(), err)
	}
	return nil
}

// Get returns the staged record for a component, or nil when none exists.
func (s *StagedStore) Get(id component.ID) (*StagedTag, error) {
	var t StagedTag
	if err := util.ReadJSON(s.path(id), &t); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read staged tag for %s: %w", id.FullName(), err)
	}
	return &t, nil
}

// List returns all staged records sorted by component name.
func (s *StagedStore) List() ([]StagedTag, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read staged dir: %w", err)
	}
	out := make([]StagedTag, 0, len(entries))
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var t StagedTag
		if err := util.ReadJSON(filepath.Join(s.dir, e.Name()), &t); err != nil {
			return nil, fmt.Errorf("read staged record %q: %w", e.Name(), err)
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Component.FullName() < out[j].Component.FullName()
	})
	return out, nil
}

// Clear removes a component's staged record; clearing a missing record is
// not an error.
func (s *StagedStore) Clear(id component.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear staged tag for %s: %w", id.FullName(), err)
	}
	return nil
}

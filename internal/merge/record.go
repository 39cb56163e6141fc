package merge

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

// Record tracks one unresolved merge. It exists only while a component has
// outstanding conflicts and is cleared on abort or resolve; a component may
// have at most one at a time.
type Record struct {
	Component    component.ID          `json:"component"`
	Base         string                `json:"base"`
	Ours         string                `json:"ours"`
	Theirs       string                `json:"theirs"`
	PreMergeHead string                `json:"pre_merge_head"`
	FileStatuses map[string]FileStatus `json:"file_statuses"`
	// MergedFiles is the auto-merged part of the manifest, with the ours
	// side kept as placeholder for conflicted paths.
	MergedFiles map[string]string `json:"merged_files"`
	// Resolved is persisted just before the record is cleared; a surviving
	// resolved record is leftover from an interrupted resolve and does not
	// count as a pending merge.
	Resolved  bool      `json:"resolved"`
	CreatedAt time.Time `json:"created_at"`
}

// nowFunc is overridable in tests.
var nowFunc = time.Now

// RecordStore persists in-flight merge records, one JSON file per
// component.
type RecordStore struct {
	dir string
	mu  sync.Mutex
}

func NewRecordStore(dir string) *RecordStore {
	return &RecordStore{dir: dir}
}

func (s *RecordStore) path(id component.ID) string {
	return filepath.Join(s.dir, id.Key()+".json")
}

// Get returns the pending record for a component, or nil when none exists.
func (s *RecordStore) Get(id component.ID) (*Record, error) {
	var r Record
	if err := util.ReadJSON(s.path(id), &r); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read merge record for %s: %w", id.FullName(), err)
	}
	return &r, nil
}

// Put writes a record, replacing any previous one for the component.
func (s *RecordStore) Put(r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := util.WriteJSON(s.path(r.Component), r); err != nil {
		return fmt.Errorf("write merge record for %s: %w", r.Component.FullName(), err)
	}
	return nil
}

// Clear removes a component's record; clearing a missing record is not an
// error.
func (s *RecordStore) Clear(id component.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear merge record for %s: %w", id.FullName(), err)
	}
	return nil
}

// List returns all pending records sorted by component name.
func (s *RecordStore) List() ([]*Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read merges dir: %w", err)
	}
	var out []*Record
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var r Record
		if err := util.ReadJSON(filepath.Join(s.dir, e.Name()), &r); err != nil {
			return nil, fmt.Errorf("read merge record %q: %w", e.Name(), err)
		}
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Component.FullName() < out[j].Component.FullName()
	})
	return out, nil
}

// Package lane manages named parallel lines of development. A lane is a
// movable set of per-component head pointers, independent from the default
// line; the same component may sit at divergent heads in different lanes.
package lane

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/keshon/snapver/internal/component"
	"github.com/keshon/snapver/internal/config"
	"github.com/keshon/snapver/internal/util"
	"github.com/keshon/snapver/internal/vererr"
)

// Lane is a named collection of per-component head pointers, keyed by
// component key.
type Lane struct {
	Name  string            `json:"name"`
	Heads map[string]string `json:"heads"`
}

// Store persists lanes, one JSON record per lane, plus the active-lane ref.
type Store struct {
	layout *config.Layout
	mu     sync.Mutex
}

func NewStore(layout *config.Layout) *Store {
	return &Store{layout: layout}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.layout.LanesDir(), name+".json")
}

// Create makes a new empty lane. An existing name is a validation error.
func (s *Store) Create(name string) (*Lane, error) {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return nil, vererr.Validationf("invalid lane name %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path(name)); err == nil {
		return nil, vererr.Validationf("lane %q already exists", name)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("check lane %q: %w", name, err)
	}

	ln := &Lane{Name: name, Heads: map[string]string{}}
	if err := util.WriteJSON(s.path(name), ln); err != nil {
		return nil, fmt.Errorf("write lane %q: %w", name, err)
	}
	return ln, nil
}

// Get loads a lane by name.
func (s *Store) Get(name string) (*Lane, error) {
	var ln Lane
	if err := util.ReadJSON(s.path(name), &ln); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, vererr.NotFoundf("lane %q", name)
		}
		return nil, fmt.Errorf("read lane %q: %w", name, err)
	}
	if ln.Heads == nil {
		ln.Heads = map[string]string{}
	}
	return &ln, nil
}

// List returns all lanes sorted by name.
func (s *Store) List() ([]*Lane, error) {
	entries, err := os.ReadDir(s.layout.LanesDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read lanes dir: %w", err)
	}
	lanes := make([]*Lane, 0, len(entries))
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".json")
		if name == e.Name() {
			continue
		}
		ln, err := s.Get(name)
		if err != nil {
			return nil, err
		}
		lanes = append(lanes, ln)
	}
	sort.Slice(lanes, func(i, j int) bool { return lanes[i].Name < lanes[j].Name })
	return lanes, nil
}

// Advance moves a lane's head for one component. Invoked by the tag engine
// when a snap lands while the lane is active.
func (s *Store) Advance(name string, id component.ID, snapHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ln, err := s.Get(name)
	if err != nil {
		return err
	}
	ln.Heads[id.Key()] = snapHash
	if err := util.WriteJSON(s.path(name), ln); err != nil {
		return fmt.Errorf("advance lane %q: %w", name, err)
	}
	return nil
}

// Delete removes a lane record.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return vererr.NotFoundf("lane %q", name)
		}
		return fmt.Errorf("delete lane %q: %w", name, err)
	}
	return nil
}

// Active returns the currently active lane name, or the empty string for
// the default line.
func (s *Store) Active() (string, error) {
	data, err := os.ReadFile(s.layout.HeadLaneFile())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.DefaultLine, nil
		}
		return "", fmt.Errorf("read active lane: %w", err)
	}
	const prefix = "ref: lanes/"
	ref := strings.TrimSpace(string(data))
	if ref == "" {
		return config.DefaultLine, nil
	}
	if !strings.HasPrefix(ref, prefix) {
		return "", fmt.Errorf("invalid active lane ref %q", ref)
	}
	return strings.TrimPrefix(ref, prefix), nil
}

// SetActive switches the active lane. The empty string returns to the
// default line.
func (s *Store) SetActive(name string) error {
	if name == config.DefaultLine {
		err := os.Remove(s.layout.HeadLaneFile())
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("clear active lane: %w", err)
		}
		return nil
	}
	if _, err := s.Get(name); err != nil {
		return err
	}
	content := "ref: lanes/" + name
	if err := os.WriteFile(s.layout.HeadLaneFile(), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write active lane: %w", err)
	}
	return nil
}

package store

import (
	"sync"

	"github.com/keshon/snapver/internal/vererr"
)

// MemStore is an in-memory Store, used by tests and by callers that build
// throwaway graphs.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{objects: map[string][]byte{}}
}

func (s *MemStore) Get(hash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[hash]
	if !ok {
		return nil, vererr.NotFoundf("object %q", hash)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemStore) Put(data []byte) (string, error) {
	hash := HashBytes(data)
	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	s.objects[hash] = cp
	s.mu.Unlock()
	return hash, nil
}

func (s *MemStore) Exists(hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[hash]
	return ok, nil
}

func (s *MemStore) Stat(hash string) (Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[hash]; !ok {
		return Missing, nil
	}
	return OK, nil
}

// Len reports the number of stored objects.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/keshon/snapver/internal/vererr"
)

// FSStore keeps each object in a hash-named file under one directory.
// Writes go through a temp file and rename so readers never observe a
// partial object.
type FSStore struct {
	dir string
}

// NewFSStore opens (creating if needed) an object directory.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create objects dir %q: %w", dir, err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) path(hash string) string {
	return filepath.Join(s.dir, hash+".bin")
}

// Get retrieves an object by its hash.
func (s *FSStore) Get(hash string) ([]byte, error) {
	data, err := os.ReadFile(s.path(hash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, vererr.NotFoundf("object %q", hash)
		}
		return nil, fmt.Errorf("read object %q: %w", hash, err)
	}
	return data, nil
}

// Put stores data under its content hash. Re-putting existing content is a
// no-op.
func (s *FSStore) Put(data []byte) (string, error) {
	hash := HashBytes(data)
	dst := s.path(hash)

	// Skip if object exists with the expected size
	if fi, err := os.Stat(dst); err == nil && fi.Size() == int64(len(data)) {
		return hash, nil
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file in %q: %w", s.dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write object %q: %w", hash, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp for %q: %w", hash, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return "", fmt.Errorf("finalize object %q: %w", hash, err)
	}
	return hash, nil
}

// Exists reports whether an object is present.
func (s *FSStore) Exists(hash string) (bool, error) {
	_, err := os.Stat(s.path(hash))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat object %q: %w", hash, err)
}

// Stat classifies an object as ok, missing, or damaged (bytes no longer
// match the name they are stored under).
func (s *FSStore) Stat(hash string) (Status, error) {
	data, err := os.ReadFile(s.path(hash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Missing, nil
		}
		return Missing, fmt.Errorf("stat object %q: %w", hash, err)
	}
	if HashBytes(data) != hash {
		return Damaged, nil
	}
	return OK, nil
}

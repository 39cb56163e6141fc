package store

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/keshon/snapver/internal/vererr"
)

// BadgerStore keeps objects in an embedded Badger database. It is the
// backend of choice for workspaces with many small objects, where one file
// per object gets slow.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (creating if needed) a Badger database at dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store at %q: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) Get(hash string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(hash))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			out = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, vererr.NotFoundf("object %q", hash)
		}
		return nil, fmt.Errorf("read object %q: %w", hash, err)
	}
	return out, nil
}

func (s *BadgerStore) Put(data []byte) (string, error) {
	hash := HashBytes(data)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(hash), data)
	})
	if err != nil {
		return "", fmt.Errorf("write object %q: %w", hash, err)
	}
	return hash, nil
}

func (s *BadgerStore) Exists(hash string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(hash))
		return err
	})
	if err == nil {
		return true, nil
	}
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("stat object %q: %w", hash, err)
}

func (s *BadgerStore) Stat(hash string) (Status, error) {
	data, err := s.Get(hash)
	if err != nil {
		if errors.Is(err, vererr.ErrNotFound) {
			return Missing, nil
		}
		return Missing, err
	}
	if HashBytes(data) != hash {
		return Damaged, nil
	}
	return OK, nil
}

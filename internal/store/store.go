// Package store provides content-addressable object storage. Objects are
// keyed by the hex xxh3-128 hash of their bytes; identical content always
// yields the same key, so writes are idempotent.
package store

import (
	"encoding/hex"

	"github.com/zeebo/xxh3"
)

// Status indicates the state of a stored object.
type Status int

const (
	OK Status = iota
	Missing
	Damaged
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case Missing:
		return "missing"
	case Damaged:
		return "damaged"
	default:
		return "unknown"
	}
}

// Store is the content-addressable object store contract. Put is durable
// once it returns; Get of an unknown hash returns an error wrapping
// vererr.ErrNotFound.
type Store interface {
	Get(hash string) ([]byte, error)
	Put(data []byte) (string, error)
	Exists(hash string) (bool, error)
	Stat(hash string) (Status, error)
}

// HashBytes computes the content hash used as object key.
func HashBytes(data []byte) string {
	h := xxh3.Hash128(data).Bytes()
	return hex.EncodeToString(h[:])
}

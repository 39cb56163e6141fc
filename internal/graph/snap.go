package graph

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/keshon/snapver/internal/component"
	"github.com/keshon/snapver/internal/store"
)

// Snap is one immutable version node of a component. Zero parents marks a
// root snap, two parents a merge snap (ours first, theirs second). The hash
// is derived from the record's content, so identical creations are
// idempotent.
type Snap struct {
	Hash      string       `json:"-"`
	Parents   []string     `json:"parents"`
	Component component.ID `json:"component"`
	Fileset   string       `json:"fileset"` // hash of the file manifest object
	Message   string       `json:"message"`
	Author    string       `json:"author"`
	Timestamp time.Time    `json:"timestamp"`
}

// IsMerge reports whether the snap joins two histories.
func (s *Snap) IsMerge() bool { return len(s.Parents) == 2 }

// Fileset maps workspace-relative file paths to content hashes. It is the
// opaque file snapshot a snap points to; raw bytes live elsewhere.
type Fileset struct {
	Files map[string]string `json:"files"`
}

// encode renders the canonical bytes a snap is hashed and stored as.
func (s *Snap) encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snap: %w", err)
	}
	return data, nil
}

func decodeSnap(hash string, data []byte) (*Snap, error) {
	var s Snap
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snap %q: %w", hash, err)
	}
	s.Hash = hash
	return &s, nil
}

// PutFileset stores a file manifest and returns its hash.
func PutFileset(st store.Store, fs *Fileset) (string, error) {
	data, err := json.Marshal(fs)
	if err != nil {
		return "", fmt.Errorf("encode fileset: %w", err)
	}
	hash, err := st.Put(data)
	if err != nil {
		return "", fmt.Errorf("store fileset: %w", err)
	}
	return hash, nil
}

// GetFileset loads a file manifest by hash.
func GetFileset(st store.Store, hash string) (*Fileset, error) {
	data, err := st.Get(hash)
	if err != nil {
		return nil, err
	}
	var fs Fileset
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("decode fileset %q: %w", hash, err)
	}
	if fs.Files == nil {
		fs.Files = map[string]string{}
	}
	return &fs, nil
}

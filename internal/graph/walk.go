package graph

import (
	"errors"

	"github.com/keshon/snapver/internal/vererr"
)

// AncestorWalk lazily iterates a snap's history newest-first, each node
// visited once. Reset restarts the walk from the original snap.
type AncestorWalk struct {
	g     *Graph
	start string
	queue []string
	seen  map[string]bool
}

// Ancestors starts a walk at the given snap (the snap itself is yielded
// first).
func (g *Graph) Ancestors(snapHash string) *AncestorWalk {
	w := &AncestorWalk{g: g, start: snapHash}
	w.Reset()
	return w
}

// Reset restarts the walk.
func (w *AncestorWalk) Reset() {
	w.queue = []string{w.start}
	w.seen = map[string]bool{}
}

// Next returns the next snap in the history, or (nil, nil) once exhausted.
func (w *AncestorWalk) Next() (*Snap, error) {
	for len(w.queue) > 0 {
		h := w.queue[0]
		w.queue = w.queue[1:]
		if h == "" || w.seen[h] {
			continue
		}
		w.seen[h] = true

		s, err := w.g.GetSnap(h)
		if err != nil {
			return nil, err
		}
		w.queue = append(w.queue, s.Parents...)
		return s, nil
	}
	return nil, nil
}

// CommonAncestor returns the nearest snap present in both histories, or the
// empty string when the histories are unrelated. Callers treat an empty
// result as a full merge against an empty base.
func (g *Graph) CommonAncestor(aHash, bHash string) (string, error) {
	if aHash == "" || bHash == "" {
		return "", nil
	}

	// collect a's ancestors (including a itself)
	seen := map[string]bool{}
	stack := []string{aHash}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true

		s, err := g.GetSnap(h)
		if err != nil {
			if errors.Is(err, vererr.ErrNotFound) {
				continue
			}
			return "", err
		}
		stack = append(stack, s.Parents...)
	}

	// walk b's ancestors breadth-first and return the first hash in seen
	queue := []string{bHash}
	visited := map[string]bool{}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == "" || visited[h] {
			continue
		}
		visited[h] = true
		if seen[h] {
			return h, nil
		}

		s, err := g.GetSnap(h)
		if err != nil {
			if errors.Is(err, vererr.ErrNotFound) {
				continue
			}
			return "", err
		}
		queue = append(queue, s.Parents...)
	}

	return "", nil // unrelated histories
}

// IsAncestor reports whether maybeAncestor is reachable from snapHash.
func (g *Graph) IsAncestor(maybeAncestor, snapHash string) (bool, error) {
	return g.reachableFrom(snapHash, maybeAncestor)
}

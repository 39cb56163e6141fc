package graph

import (
	"fmt"

	"github.com/keshon/snapver/internal/store"
)

// Problem describes one integrity finding from a Verify sweep.
type Problem struct {
	Component string
	Detail    string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s", p.Component, p.Detail)
}

// Verify sweeps the whole graph: every head resolvable, every reachable
// snap's parents present and undamaged, every tag pointing at an existing
// snap of the same component. Findings are reported, never repaired.
func (g *Graph) Verify() ([]Problem, error) {
	var problems []Problem

	ids, err := g.Components()
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		head, err := g.ResolveHead(id, "")
		if err != nil {
			problems = append(problems, Problem{id.FullName(), fmt.Sprintf("unresolvable head: %v", err)})
			continue
		}

		walk := g.Ancestors(head)
		for {
			s, err := walk.Next()
			if err != nil {
				problems = append(problems, Problem{id.FullName(), fmt.Sprintf("broken history: %v", err)})
				break
			}
			if s == nil {
				break
			}
			for _, p := range s.Parents {
				st, err := g.store.Stat(p)
				if err != nil {
					return nil, err
				}
				if st != store.OK {
					problems = append(problems, Problem{id.FullName(), fmt.Sprintf("snap %s parent %s is %s", s.Hash, p, st)})
				}
			}
			if s.Fileset != "" {
				st, err := g.store.Stat(s.Fileset)
				if err != nil {
					return nil, err
				}
				if st != store.OK {
					problems = append(problems, Problem{id.FullName(), fmt.Sprintf("snap %s fileset %s is %s", s.Hash, s.Fileset, st)})
				}
			}
		}

		tags, err := g.TagsFor(id)
		if err != nil {
			return nil, err
		}
		for _, t := range tags {
			s, err := g.GetSnap(t.Snap)
			if err != nil {
				problems = append(problems, Problem{id.FullName(), fmt.Sprintf("tag %s points at missing snap %s", t.Version, t.Snap)})
				continue
			}
			if !s.Component.Same(t.Component) {
				problems = append(problems, Problem{id.FullName(), fmt.Sprintf("tag %s points at snap of %s", t.Version, s.Component.FullName())})
			}
		}
	}

	return problems, nil
}

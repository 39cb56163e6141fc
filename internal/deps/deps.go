// Package deps exposes the dependency-graph contract the tag engine uses
// for auto-tag expansion.
package deps

import (
	"sort"

	"github.com/keshon/snapver/internal/component"
	"github.com/keshon/snapver/internal/config"
)

// Provider answers "who depends on this component" against a snapshot of
// the workspace consistent with the state being tagged.
type Provider interface {
	DependentsOf(id component.ID) ([]component.ID, error)
}

// StaticProvider precomputes reverse dependency edges from the workspace
// configuration.
type StaticProvider struct {
	dependents map[string][]component.ID
}

// NewStaticProvider reverses the declared depends-on edges.
func NewStaticProvider(components []config.ComponentConfig) (*StaticProvider, error) {
	p := &StaticProvider{dependents: map[string][]component.ID{}}
	for _, c := range components {
		id := component.ID{Scope: c.Scope, Name: c.Name}
		for _, dep := range c.DependsOn {
			depID, err := component.Parse(dep)
			if err != nil {
				return nil, err
			}
			key := depID.Key()
			p.dependents[key] = append(p.dependents[key], id)
		}
	}
	for key := range p.dependents {
		list := p.dependents[key]
		sort.Slice(list, func(i, j int) bool { return list[i].FullName() < list[j].FullName() })
	}
	return p, nil
}

func (p *StaticProvider) DependentsOf(id component.ID) ([]component.ID, error) {
	return p.dependents[id.Key()], nil
}

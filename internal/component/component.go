package component

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// ID identifies a component by scope and name, optionally carrying a version.
// Equality of identity ignores the version part; use Same for that.
type ID struct {
	Scope   string
	Name    string
	Version string
}

// Parse reads "name", "scope/name" or "scope/name@version".
func Parse(s string) (ID, error) {
	if s == "" {
		return ID{}, fmt.Errorf("empty component id")
	}
	var id ID
	if at := strings.LastIndex(s, "@"); at > 0 {
		id.Version = s[at+1:]
		s = s[:at]
	}
	if slash := strings.LastIndex(s, "/"); slash >= 0 {
		id.Scope = s[:slash]
		id.Name = s[slash+1:]
	} else {
		id.Name = s
	}
	if id.Name == "" {
		return ID{}, fmt.Errorf("invalid component id %q: missing name", s)
	}
	return id, nil
}

// MustParse is Parse for known-good literals (tests, defaults).
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// FullName returns "scope/name" without the version.
func (id ID) FullName() string {
	if id.Scope == "" {
		return id.Name
	}
	return id.Scope + "/" + id.Name
}

func (id ID) String() string {
	if id.Version == "" {
		return id.FullName()
	}
	return id.FullName() + "@" + id.Version
}

// Same reports whether other names the same component, ignoring versions.
func (id ID) Same(other ID) bool {
	return id.Scope == other.Scope && id.Name == other.Name
}

// WithVersion returns a copy carrying version v.
func (id ID) WithVersion(v string) ID {
	id.Version = v
	return id
}

// Key returns a filesystem-safe key for the component identity.
func (id ID) Key() string {
	return strings.ReplaceAll(id.FullName(), "/", "__")
}

// Matcher matches component full names against glob patterns.
type Matcher struct {
	globs []glob.Glob
}

// NewMatcher compiles patterns such as "ui/*" or "core". An empty pattern
// list matches nothing; callers treat that case themselves.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid component pattern %q: %w", p, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Match reports whether any pattern matches the component's full name.
func (m *Matcher) Match(id ID) bool {
	for _, g := range m.globs {
		if g.Match(id.FullName()) {
			return true
		}
	}
	return false
}

// Package ignore decides which directory base-names are excluded from
// watching. Entries are glob patterns; a literal name such as ".git"
// matches exactly itself.
package ignore

import (
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

// List holds the compiled ignore patterns.
type List struct {
	names    []string
	patterns []glob.Glob
}

// New compiles the given base-name patterns into a List.
func New(names ...string) (*List, error) {
	l := &List{names: names}
	for _, name := range names {
		g, err := glob.Compile(name)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid ignore pattern: %s", name)
		}
		l.patterns = append(l.patterns, g)
	}
	return l, nil
}

// Match reports whether the directory base-name is ignored.
func (l *List) Match(base string) bool {
	if l == nil {
		return false
	}
	for _, g := range l.patterns {
		if g.Match(base) {
			return true
		}
	}
	return false
}

// Names returns the patterns the list was built from.
func (l *List) Names() []string {
	if l == nil {
		return nil
	}
	return l.names
}

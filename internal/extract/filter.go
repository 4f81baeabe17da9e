package extract

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Filter selects function names by glob patterns. The zero value matches
// everything.
type Filter struct {
	include []glob.Glob
	exclude []glob.Glob
}

// NewFilter compiles the include and exclude patterns. An empty include
// list admits every name.
func NewFilter(include, exclude []string) (Filter, error) {
	var f Filter
	for _, pat := range include {
		g, err := glob.Compile(pat)
		if err != nil {
			return Filter{}, fmt.Errorf("compile include pattern %q: %w", pat, err)
		}
		f.include = append(f.include, g)
	}
	for _, pat := range exclude {
		g, err := glob.Compile(pat)
		if err != nil {
			return Filter{}, fmt.Errorf("compile exclude pattern %q: %w", pat, err)
		}
		f.exclude = append(f.exclude, g)
	}
	return f, nil
}

// Match reports whether name passes the filter.
func (f Filter) Match(name string) bool {
	for _, g := range f.exclude {
		if g.Match(name) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, g := range f.include {
		if g.Match(name) {
			return true
		}
	}
	return false
}

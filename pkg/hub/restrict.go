package hub

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// urlMatcher reports tab URLs that may not host a widget. Entries are glob
// patterns; an entry with no glob syntax matches as a prefix.
type urlMatcher struct {
	globs []glob.Glob
}

func compileRestricted(patterns []string) (*urlMatcher, []error) {
	m := &urlMatcher{}
	var errs []error
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if !strings.ContainsAny(p, `*?[{\`) {
			p = glob.QuoteMeta(p) + "*"
		}
		g, err := glob.Compile(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid restricted pattern %q: %w", p, err))
			continue
		}
		m.globs = append(m.globs, g)
	}
	return m, errs
}

func (m *urlMatcher) Match(url string) bool {
	for _, g := range m.globs {
		if g.Match(url) {
			return true
		}
	}
	return false
}

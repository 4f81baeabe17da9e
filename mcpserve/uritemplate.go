package mcpserve

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// uriMatcher matches concrete addresses against a resource address
// template, extracting placeholder values.
type uriMatcher struct {
	re     *regexp.Regexp
	params []string
}

// Placeholders returns the placeholder names of an address template, in
// order of appearance.
func Placeholders(template string) []string {
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		names = append(names, m[1])
	}
	return names
}

func newURIMatcher(template string) uriMatcher {
	params := Placeholders(template)

	var b strings.Builder
	b.WriteString("^")
	rest := template
	for {
		loc := placeholderPattern.FindStringIndex(rest)
		if loc == nil {
			b.WriteString(regexp.QuoteMeta(rest))
			break
		}
		b.WriteString(regexp.QuoteMeta(rest[:loc[0]]))
		b.WriteString(`([^/]+)`)
		rest = rest[loc[1]:]
	}
	b.WriteString("$")

	return uriMatcher{
		re:     regexp.MustCompile(b.String()),
		params: params,
	}
}

// match reports whether uri fits the template, returning the placeholder
// values keyed by name.
func (m uriMatcher) match(uri string) (map[string]string, bool) {
	groups := m.re.FindStringSubmatch(uri)
	if groups == nil {
		return nil, false
	}
	args := make(map[string]string, len(m.params))
	for i, name := range m.params {
		args[name] = groups[i+1]
	}
	return args, true
}

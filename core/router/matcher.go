package router

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidPattern = errors.New("invalid route pattern")
)

var paramName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Matcher is the compiled form of a route pattern such as /files/:fileName.
// A ":name" segment captures one or more characters, slashes included, so
// /files/:fileName matches /files/a/b.txt. Other segments match literally
// and the whole path must match.
type Matcher struct {
	pattern string
	re      *regexp.Regexp
	names   []string
}

// Compile compiles a pattern. Empty segments are dropped, so //a and /a are
// the same pattern, and a pattern with no segments matches only "/".
func Compile(pattern string) (*Matcher, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("%w %q: must begin with '/'", ErrInvalidPattern, pattern)
	}

	var (
		expr  strings.Builder
		names []string
		seen  = make(map[string]bool)
	)

	expr.WriteByte('^')
	for _, segment := range strings.Split(pattern, "/") {
		if segment == "" {
			continue
		}

		if segment[0] != ':' {
			expr.WriteByte('/')
			expr.WriteString(regexp.QuoteMeta(segment))
			continue
		}

		name := segment[1:]
		if !paramName.MatchString(name) {
			return nil, fmt.Errorf("%w %q: bad parameter name %q", ErrInvalidPattern, pattern, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w %q: duplicate parameter %q", ErrInvalidPattern, pattern, name)
		}
		seen[name] = true
		names = append(names, name)

		expr.WriteString("/(?P<")
		expr.WriteString(name)
		expr.WriteString(">.+)")
	}
	if expr.Len() == 1 {
		expr.WriteByte('/')
	}
	expr.WriteByte('$')

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, pattern, err)
	}

	return &Matcher{
		pattern: pattern,
		re:      re,
		names:   names,
	}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(pattern string) *Matcher {
	m, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// Match reports whether path matches and returns the captured parameters.
// The map is non-nil on a match, empty for literal patterns.
func (m *Matcher) Match(path string) (map[string]string, bool) {
	if len(m.names) == 0 {
		if !m.re.MatchString(path) {
			return nil, false
		}
		return map[string]string{}, true
	}

	sub := m.re.FindStringSubmatch(path)
	if sub == nil {
		return nil, false
	}

	params := make(map[string]string, len(m.names))
	for i, name := range m.re.SubexpNames() {
		if name != "" {
			params[name] = sub[i]
		}
	}
	return params, true
}

// Pattern returns the source pattern.
func (m *Matcher) Pattern() string {
	return m.pattern
}

// Names returns the parameter names in pattern order.
func (m *Matcher) Names() []string {
	return append([]string(nil), m.names...)
}

// String returns the compiled expression.
func (m *Matcher) String() string {
	return m.re.String()
}

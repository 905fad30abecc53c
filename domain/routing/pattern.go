package routing

import (
	"strings"

	"github.com/spinlet-dev/spinlet/domain/errors"
)

// WildcardSuffix marks a route that matches its prefix and everything below it.
const WildcardSuffix = "/..."

// Kind distinguishes literal routes from prefix routes.
type Kind int

const (
	// Exact matches a single path.
	Exact Kind = iota
	// Wildcard matches a prefix and every path under it.
	Wildcard
)

func (k Kind) String() string {
	if k == Wildcard {
		return "wildcard"
	}
	return "exact"
}

// Pattern is a parsed route with the base path already applied.
// Prefix never carries a trailing slash; the catch-all route has an empty prefix.
type Pattern struct {
	Prefix string
	Kind   Kind
}

// ParsePattern joins base and route and parses the result.
func ParsePattern(base, route string) (Pattern, error) {
	if !strings.HasPrefix(route, "/") {
		return Pattern{}, &errors.PatternError{Pattern: route, Reason: "route must start with '/'"}
	}
	if base != "" && !strings.HasPrefix(base, "/") {
		return Pattern{}, &errors.PatternError{Pattern: base, Reason: "base path must start with '/'"}
	}

	full := sanitize(base) + sanitize(route)
	if prefix, ok := strings.CutSuffix(full, WildcardSuffix); ok {
		if strings.Contains(prefix, "...") {
			return Pattern{}, &errors.PatternError{Pattern: route, Reason: "'...' is only allowed as the final segment"}
		}
		return Pattern{Kind: Wildcard, Prefix: prefix}, nil
	}
	if strings.Contains(full, "...") {
		return Pattern{}, &errors.PatternError{Pattern: route, Reason: "'...' is only allowed as the final segment"}
	}
	return Pattern{Kind: Exact, Prefix: full}, nil
}

// MustParsePattern is like ParsePattern but panics on error. For tests and constants.
func MustParsePattern(base, route string) Pattern {
	p, err := ParsePattern(base, route)
	if err != nil {
		panic(err)
	}
	return p
}

// Matches reports whether path is served by the pattern.
// A single trailing slash on the path is ignored.
func (p Pattern) Matches(path string) bool {
	path = sanitize(path)
	switch p.Kind {
	case Wildcard:
		return path == p.Prefix || strings.HasPrefix(path, p.Prefix+"/")
	default:
		return path == p.Prefix
	}
}

// Relative returns the part of path below the pattern's literal prefix.
// For exact matches this is empty.
func (p Pattern) Relative(path string) string {
	if p.Kind == Exact {
		return ""
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	rest, ok := strings.CutPrefix(path, p.Prefix)
	if !ok {
		return ""
	}
	return rest
}

// LiteralLen is the specificity used to rank competing matches.
func (p Pattern) LiteralLen() int {
	return len(p.Prefix)
}

// String renders the pattern in route syntax.
func (p Pattern) String() string {
	if p.Kind == Wildcard {
		return p.Prefix + WildcardSuffix
	}
	if p.Prefix == "" {
		return "/"
	}
	return p.Prefix
}

func sanitize(s string) string {
	return strings.TrimSuffix(s, "/")
}

// Package routing maps inbound (method, path) pairs to components.
//
// A Table is built once from the application descriptor and never mutated.
// Resolve is a pure function of the table and its arguments, so a Table can be
// shared by every request goroutine without locking.
package routing

import (
	"net/http"
	"sort"
	"strings"

	"github.com/spinlet-dev/spinlet/domain/errors"
)

// Entry is one route declaration as it appears in the descriptor.
type Entry struct {
	Component string
	Route     string
	Method    string // empty means any method
}

// Route is a parsed, based route bound to a component.
type Route struct {
	Component string
	Raw       string // route as declared, without the base path
	Method    string
	Pattern   Pattern
}

// Match describes how a request path was resolved.
type Match struct {
	Component string
	Pattern   Pattern

	// BasedRoute is the route including the base path and the wildcard marker.
	BasedRoute string
	// RawRoute is the route exactly as the component declared it.
	RawRoute string
	// ComponentRoute is RawRoute with the wildcard marker removed.
	ComponentRoute string
	// BasePath is the application base path.
	BasePath string
	// PathInfo is the part of the path consumed by the wildcard.
	PathInfo string
}

// LiteralPrefix is the portion of the path matched literally.
func (m Match) LiteralPrefix() string {
	return m.Pattern.Prefix
}

// Table is the immutable route table of one application.
type Table struct {
	base   string
	routes []Route
}

// NewTable parses entries against base and rejects ambiguous declarations.
func NewTable(base string, entries []Entry) (*Table, error) {
	if base == "" {
		base = "/"
	}

	routes := make([]Route, 0, len(entries))
	byPattern := make(map[Pattern][]Route, len(entries))

	for _, e := range entries {
		p, err := ParsePattern(base, e.Route)
		if err != nil {
			return nil, err
		}
		r := Route{
			Component: e.Component,
			Raw:       e.Route,
			Method:    strings.ToUpper(strings.TrimSpace(e.Method)),
			Pattern:   p,
		}

		for _, other := range byPattern[p] {
			if methodsOverlap(other.Method, r.Method) {
				return nil, &errors.RouteConflictError{
					Pattern: p.String(),
					Method:  r.Method,
					First:   other.Component,
					Second:  r.Component,
				}
			}
		}

		byPattern[p] = append(byPattern[p], r)
		routes = append(routes, r)
	}

	return &Table{base: base, routes: routes}, nil
}

// methodsOverlap reports whether some request method would match both filters.
func methodsOverlap(a, b string) bool {
	return a == "" || b == "" || a == b
}

// Resolve finds the component serving method and path. The longest literal
// prefix wins; at equal length an exact route beats a wildcard.
func (t *Table) Resolve(method, path string) (Match, bool) {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	method = strings.ToUpper(method)

	best := -1
	for i := range t.routes {
		r := &t.routes[i]
		if r.Method != "" && r.Method != method {
			continue
		}
		if !r.Pattern.Matches(path) {
			continue
		}
		if best < 0 || outranks(r, &t.routes[best]) {
			best = i
		}
	}
	if best < 0 {
		return Match{}, false
	}

	r := t.routes[best]
	return Match{
		Component:      r.Component,
		Pattern:        r.Pattern,
		BasedRoute:     basedRoute(t.base, r.Raw),
		RawRoute:       r.Raw,
		ComponentRoute: strings.TrimSuffix(r.Raw, WildcardSuffix),
		BasePath:       t.base,
		PathInfo:       r.Pattern.Relative(path),
	}, true
}

func basedRoute(base, raw string) string {
	based := sanitize(base) + sanitize(raw)
	if based == "" {
		return "/"
	}
	return based
}

func outranks(a, b *Route) bool {
	if a.Pattern.LiteralLen() != b.Pattern.LiteralLen() {
		return a.Pattern.LiteralLen() > b.Pattern.LiteralLen()
	}
	if a.Pattern.Kind != b.Pattern.Kind {
		return a.Pattern.Kind == Exact
	}
	return false
}

// Base returns the application base path.
func (t *Table) Base() string {
	return t.base
}

// Len returns the number of routes.
func (t *Table) Len() int {
	return len(t.routes)
}

// Routes returns the routes sorted by pattern and method.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Pattern.String(), out[j].Pattern.String()
		if pi != pj {
			return pi < pj
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// IsStandardMethod reports whether method is one the guest ABI can express.
func IsStandardMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete,
		http.MethodPatch, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

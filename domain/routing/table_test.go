package routing

import (
	"errors"
	"testing"

	domainerrors "github.com/spinlet-dev/spinlet/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePattern(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		route  string
		kind   Kind
		prefix string
		str    string
	}{
		{"exact", "/", "/foo/bar", Exact, "/foo/bar", "/foo/bar"},
		{"exact trailing slash", "/", "/foo/", Exact, "/foo", "/foo"},
		{"exact with base", "/base", "/foo", Exact, "/base/foo", "/base/foo"},
		{"base trailing slash", "/base/", "/foo/", Exact, "/base/foo", "/base/foo"},
		{"root", "/", "/", Exact, "", "/"},
		{"wildcard", "/", "/foo/...", Wildcard, "/foo", "/foo/..."},
		{"catch-all", "/", "/...", Wildcard, "", "/..."},
		{"catch-all with base", "/base", "/...", Wildcard, "/base", "/base/..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := ParsePattern(tc.base, tc.route)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, p.Kind)
			assert.Equal(t, tc.prefix, p.Prefix)
			assert.Equal(t, tc.str, p.String())
		})
	}
}

func TestParsePattern_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		route string
	}{
		{"no leading slash", "/", "foo"},
		{"ellipsis mid route", "/", "/foo/.../bar"},
		{"ellipsis without slash", "/", "/foo..."},
		{"bad base", "base", "/foo"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePattern(tc.base, tc.route)
			require.Error(t, err)
			var perr *domainerrors.PatternError
			assert.True(t, errors.As(err, &perr))
		})
	}
}

func TestPattern_Matches(t *testing.T) {
	exact := MustParsePattern("/", "/foo/bar")
	assert.True(t, exact.Matches("/foo/bar"))
	assert.True(t, exact.Matches("/foo/bar/"))
	assert.False(t, exact.Matches("/foo"))
	assert.False(t, exact.Matches("/foo/bar/thisshouldbefalse"))

	wild := MustParsePattern("/", "/foo/...")
	assert.True(t, wild.Matches("/foo"))
	assert.True(t, wild.Matches("/foo/bar"))
	assert.True(t, wild.Matches("/foo/bar/baz"))
	assert.False(t, wild.Matches("/foobar"))
	assert.False(t, wild.Matches("/"))

	all := MustParsePattern("/", "/...")
	assert.True(t, all.Matches("/"))
	assert.True(t, all.Matches("/this/should/really/match/everything/"))

	based := MustParsePattern("/base", "/...")
	assert.True(t, based.Matches("/base"))
	assert.True(t, based.Matches("/base/foo/bar"))
	assert.False(t, based.Matches("/other"))
}

func TestPattern_Relative(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		route string
		path  string
		want  string
	}{
		{"exact", "/", "/foo", "/foo", ""},
		{"exact with trailing slash", "/", "/foo", "/foo/", ""},
		{"exact under base", "/base", "/foo", "/base/foo", ""},
		{"wildcard", "/", "/static/...", "/static/images/abc.png", "/images/abc.png"},
		{"wildcard under base with query", "/base", "/static/...", "/base/static/images/abc.png?abc=def", "/images/abc.png"},
		{"wildcard trailing slash", "/", "/static/...", "/static/", "/"},
		{"wildcard at prefix", "/", "/static/...", "/static", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MustParsePattern(tc.base, tc.route).Relative(tc.path))
		})
	}
}

func TestTable_Resolve(t *testing.T) {
	table, err := NewTable("/", []Entry{
		{Component: "hello", Route: "/hello"},
		{Component: "hello-wild", Route: "/hello/..."},
		{Component: "b", Route: "/test/hello/..."},
		{Component: "one", Route: "/one/..."},
		{Component: "onetwo", Route: "/one/two/..."},
		{Component: "onetwothree", Route: "/one/two/three"},
	})
	require.NoError(t, err)

	tests := []struct {
		name      string
		path      string
		component string
		pathInfo  string
	}{
		{"exact beats wildcard with same prefix", "/hello", "hello", ""},
		{"exact with trailing slash", "/hello/", "hello", ""},
		{"wildcard below exact", "/hello/world", "hello-wild", "/world"},
		{"deep wildcard", "/test/hello/wildcards/should/be/handled", "b", "/wildcards/should/be/handled"},
		{"longest prefix", "/one/two/x", "onetwo", "/x"},
		{"longest prefix exact", "/one/two/three", "onetwothree", ""},
		{"shorter prefix", "/one/x", "one", "/x"},
		{"query is ignored", "/one/two/x?a=b", "onetwo", "/x"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, ok := table.Resolve("GET", tc.path)
			require.True(t, ok)
			assert.Equal(t, tc.component, m.Component)
			assert.Equal(t, tc.pathInfo, m.PathInfo)
		})
	}

	_, ok := table.Resolve("GET", "/thisshouldfail")
	assert.False(t, ok)
	_, ok = table.Resolve("GET", "/helloworld")
	assert.False(t, ok)
}

func TestTable_ResolveMetadata(t *testing.T) {
	table, err := NewTable("/base", []Entry{
		{Component: "static", Route: "/static/..."},
		{Component: "api", Route: "/api"},
	})
	require.NoError(t, err)

	m, ok := table.Resolve("GET", "/base/static/images/abc.png")
	require.True(t, ok)
	assert.Equal(t, "/base/static/...", m.BasedRoute)
	assert.Equal(t, "/static/...", m.RawRoute)
	assert.Equal(t, "/static", m.ComponentRoute)
	assert.Equal(t, "/base", m.BasePath)
	assert.Equal(t, "/base/static", m.LiteralPrefix())
	assert.Equal(t, "/images/abc.png", m.PathInfo)

	m, ok = table.Resolve("POST", "/base/api")
	require.True(t, ok)
	assert.Equal(t, "/api", m.ComponentRoute)
	assert.Empty(t, m.PathInfo)
}

func TestTable_MethodFilter(t *testing.T) {
	table, err := NewTable("/", []Entry{
		{Component: "reader", Route: "/items", Method: "get"},
		{Component: "writer", Route: "/items", Method: "POST"},
		{Component: "fallback", Route: "/..."},
	})
	require.NoError(t, err)

	m, ok := table.Resolve("GET", "/items")
	require.True(t, ok)
	assert.Equal(t, "reader", m.Component)

	m, ok = table.Resolve("post", "/items")
	require.True(t, ok)
	assert.Equal(t, "writer", m.Component)

	m, ok = table.Resolve("DELETE", "/items")
	require.True(t, ok)
	assert.Equal(t, "fallback", m.Component)
}

func TestNewTable_Conflicts(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{"same route twice", []Entry{{Component: "a", Route: "/x"}, {Component: "b", Route: "/x"}}},
		{"trailing slash is the same route", []Entry{{Component: "a", Route: "/x"}, {Component: "b", Route: "/x/"}}},
		{"same wildcard twice", []Entry{{Component: "a", Route: "/x/..."}, {Component: "b", Route: "/x/..."}}},
		{"same method twice", []Entry{{Component: "a", Route: "/x", Method: "GET"}, {Component: "b", Route: "/x", Method: "get"}}},
		{"filter against any", []Entry{{Component: "a", Route: "/x", Method: "GET"}, {Component: "b", Route: "/x"}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTable("/", tc.entries)
			require.Error(t, err)
			var conflict *domainerrors.RouteConflictError
			require.True(t, errors.As(err, &conflict))
			assert.Equal(t, "a", conflict.First)
			assert.Equal(t, "b", conflict.Second)
		})
	}
}

func TestNewTable_ExactAndWildcardDoNotConflict(t *testing.T) {
	_, err := NewTable("/", []Entry{
		{Component: "a", Route: "/x"},
		{Component: "b", Route: "/x/..."},
	})
	assert.NoError(t, err)
}

func TestTable_Routes(t *testing.T) {
	table, err := NewTable("", []Entry{
		{Component: "z", Route: "/z"},
		{Component: "a", Route: "/a/..."},
	})
	require.NoError(t, err)

	assert.Equal(t, "/", table.Base())
	assert.Equal(t, 2, table.Len())
	routes := table.Routes()
	require.Len(t, routes, 2)
	assert.Equal(t, "a", routes[0].Component)
	assert.Equal(t, "z", routes[1].Component)
}

func TestTable_ResolveIsDeterministic(t *testing.T) {
	table, err := NewTable("/", []Entry{
		{Component: "a", Route: "/..."},
		{Component: "b", Route: "/b/..."},
	})
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		m, ok := table.Resolve("GET", "/b/c")
		require.True(t, ok)
		assert.Equal(t, "b", m.Component)
	}
}

func TestIsStandardMethod(t *testing.T) {
	assert.True(t, IsStandardMethod("get"))
	assert.True(t, IsStandardMethod("OPTIONS"))
	assert.False(t, IsStandardMethod("PROPFIND"))
	assert.False(t, IsStandardMethod("CONNECT"))
}

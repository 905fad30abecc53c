package normalize

import (
	"net/http"
	"net/textproto"
	"strings"

	"github.com/spinlet-dev/spinlet/domain/routing"
)

// Synthetic header names, as seen by spin guests.
const (
	HeaderFullURL           = "spin-full-url"
	HeaderPathInfo          = "spin-path-info"
	HeaderMatchedRoute      = "spin-matched-route"
	HeaderComponentRoute    = "spin-component-route"
	HeaderRawComponentRoute = "spin-raw-component-route"
	HeaderBasePath          = "spin-base-path"
	HeaderClientAddr        = "spin-client-addr"
)

// Synthetic holds the routing facts injected into every guest request.
type Synthetic struct {
	FullURL           string
	PathInfo          string
	MatchedRoute      string
	ComponentRoute    string
	RawComponentRoute string
	BasePath          string
	ClientAddr        string
}

// NewSynthetic derives the synthetic values of a routed request.
func NewSynthetic(fullURL, clientAddr string, m routing.Match) Synthetic {
	return Synthetic{
		FullURL:           fullURL,
		PathInfo:          m.PathInfo,
		MatchedRoute:      m.BasedRoute,
		ComponentRoute:    m.ComponentRoute,
		RawComponentRoute: m.RawRoute,
		BasePath:          m.BasePath,
		ClientAddr:        clientAddr,
	}
}

type syntheticField struct {
	header string
	cgi    string
	value  func(Synthetic) string
}

var syntheticFields = []syntheticField{
	{HeaderFullURL, "X_FULL_URL", func(s Synthetic) string { return s.FullURL }},
	{HeaderPathInfo, "", func(s Synthetic) string { return s.PathInfo }},
	{HeaderMatchedRoute, "X_MATCHED_ROUTE", func(s Synthetic) string { return s.MatchedRoute }},
	{HeaderComponentRoute, "X_COMPONENT_ROUTE", func(s Synthetic) string { return s.ComponentRoute }},
	{HeaderRawComponentRoute, "X_RAW_COMPONENT_ROUTE", func(s Synthetic) string { return s.RawComponentRoute }},
	{HeaderBasePath, "X_BASE_PATH", func(s Synthetic) string { return s.BasePath }},
	{HeaderClientAddr, "X_CLIENT_ADDR", func(s Synthetic) string { return s.ClientAddr }},
}

// Apply replaces any client-supplied synthetic headers in h with s.
func (s Synthetic) Apply(h http.Header) {
	for _, f := range syntheticFields {
		h.Set(f.header, f.value(s))
	}
}

// IsSynthetic reports whether name is reserved for injected values.
func IsSynthetic(name string) bool {
	name = strings.ToLower(name)
	for _, f := range syntheticFields {
		if f.header == name {
			return true
		}
	}
	return false
}

// hopByHop are connection-scoped headers never forwarded to a guest.
var hopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Transfer-Encoding",
	"Upgrade",
	"Te",
	"Trailer",
}

// StripHopByHop removes connection-scoped headers from h, including those
// named by the Connection header.
func StripHopByHop(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(textproto.CanonicalMIMEHeaderKey(name))
			}
		}
	}
	for _, name := range hopByHop {
		h.Del(name)
	}
}

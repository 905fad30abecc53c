package policy

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/spinlet-dev/spinlet/domain/errors"
)

// AllowAllLegacy is the legacy allowed_http_hosts entry that permits every destination.
const AllowAllLegacy = "insecure:allow-all"

// Origin is the scheme and authority the application is served on.
type Origin struct {
	Scheme string
	Host   string
	Port   int
}

// ParseOrigin parses a base URL such as "http://127.0.0.1:3000".
func ParseOrigin(base string) (*Origin, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing origin %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin %q must be absolute", base)
	}
	scheme := strings.ToLower(u.Scheme)
	port, ok := WellKnownPort(scheme)
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("origin %q has an invalid port: %w", base, err)
		}
	} else if !ok {
		return nil, fmt.Errorf("origin %q has no port and no well-known default", base)
	}
	return &Origin{Scheme: scheme, Host: hostOnly(u.Hostname()), Port: port}, nil
}

// String renders the origin as scheme://host:port.
func (o *Origin) String() string {
	return o.Scheme + "://" + net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// URL returns the origin as a URL with an empty path.
func (o *Origin) URL() *url.URL {
	return &url.URL{Scheme: o.Scheme, Host: net.JoinHostPort(o.Host, strconv.Itoa(o.Port))}
}

// Target is a parsed outbound destination.
type Target struct {
	URL      *url.URL
	Scheme   string
	Host     string
	Port     int
	Relative bool // the guest asked for a path on its own application
}

// ParseTarget parses an outbound URL. Relative URLs resolve against origin.
func ParseTarget(raw string, origin *Origin) (Target, error) {
	if strings.HasPrefix(raw, "/") {
		if origin == nil {
			return Target{}, fmt.Errorf("relative URL %q requires a known application origin", raw)
		}
		ref, err := url.Parse(raw)
		if err != nil {
			return Target{}, fmt.Errorf("parsing URL %q: %w", raw, err)
		}
		u := origin.URL().ResolveReference(ref)
		return Target{URL: u, Scheme: origin.Scheme, Host: origin.Host, Port: origin.Port, Relative: true}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("parsing URL %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Target{}, fmt.Errorf("URL %q must be absolute or start with '/'", raw)
	}

	t := Target{URL: u, Scheme: strings.ToLower(u.Scheme), Host: hostOnly(u.Hostname())}
	if p := u.Port(); p != "" {
		t.Port, err = strconv.Atoi(p)
		if err != nil {
			return Target{}, fmt.Errorf("URL %q has an invalid port: %w", raw, err)
		}
	} else {
		t.Port, _ = WellKnownPort(t.Scheme)
	}
	return t, nil
}

// Decision is the outcome of an allow-list check.
type Decision struct {
	Err     error // set when the URL could not be parsed
	Target  Target
	Pattern string // the entry that granted access
	Reason  string
	Allowed bool
}

// Hint returns the allow-list entry that would have permitted a denied target.
func (d Decision) Hint() string {
	if d.Allowed || d.Err != nil {
		return ""
	}
	if d.Target.Relative {
		return `allowed_outbound_hosts = ["self"]`
	}
	host := d.Target.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf(`allowed_outbound_hosts = ["%s://%s:%d"]`, d.Target.Scheme, host, d.Target.Port)
}

// AllowList is the immutable set of egress patterns of one component.
// The zero value denies everything.
type AllowList struct {
	patterns []HostPattern
}

// NewAllowList parses the component's allowed_outbound_hosts and legacy
// allowed_http_hosts entries into one list.
func NewAllowList(outbound, legacy []string) (*AllowList, error) {
	a := &AllowList{patterns: make([]HostPattern, 0, len(outbound)+len(legacy))}
	for _, entry := range outbound {
		p, err := ParseHostPattern(entry)
		if err != nil {
			return nil, err
		}
		a.patterns = append(a.patterns, p)
	}
	for _, entry := range legacy {
		p, err := ParseLegacyHost(entry)
		if err != nil {
			return nil, err
		}
		a.patterns = append(a.patterns, p)
	}
	return a, nil
}

// ParseLegacyHost parses an allowed_http_hosts entry. Only http and https
// destinations can be expressed in the legacy form.
func ParseLegacyHost(entry string) (HostPattern, error) {
	raw := strings.TrimSpace(entry)
	if raw == AllowAllLegacy {
		return HostPattern{raw: raw, scheme: "*", webish: true, kind: HostAny, port: portSpec{kind: portAny}}, nil
	}
	if scheme, _, ok := strings.Cut(raw, "://"); ok {
		if s := strings.ToLower(scheme); s != "http" && s != "https" {
			return HostPattern{}, &errors.PatternError{Pattern: raw, Reason: "allowed_http_hosts only supports http and https"}
		}
	}
	return ParseHostPattern(raw)
}

// Len returns the number of patterns.
func (a *AllowList) Len() int {
	if a == nil {
		return 0
	}
	return len(a.patterns)
}

// Patterns returns the entries as written.
func (a *AllowList) Patterns() []string {
	if a == nil {
		return nil
	}
	out := make([]string, len(a.patterns))
	for i, p := range a.patterns {
		out[i] = p.String()
	}
	return out
}

// Check evaluates raw against the list. It performs no I/O.
func (a *AllowList) Check(raw string, origin *Origin) Decision {
	target, err := ParseTarget(raw, origin)
	if err != nil {
		return Decision{Err: err, Reason: err.Error()}
	}
	if a.Len() == 0 {
		return Decision{Target: target, Reason: "component has no allowed outbound hosts"}
	}

	for _, p := range a.patterns {
		if target.Relative {
			if p.AllowsRelative() && p.allowsScheme(target.Scheme, origin) {
				return Decision{Allowed: true, Target: target, Pattern: p.String()}
			}
			continue
		}
		if p.Allows(target, origin) {
			return Decision{Allowed: true, Target: target, Pattern: p.String()}
		}
	}
	return Decision{Target: target, Reason: "destination not in allowed outbound hosts"}
}

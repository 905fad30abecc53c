package policy

import (
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/spinlet-dev/spinlet/domain/errors"
)

// HostKind classifies the host part of a pattern.
type HostKind int

const (
	HostExact HostKind = iota
	HostAny
	HostSelf
	HostSubdomain
	HostCIDR
)

// portKind classifies the port part of a pattern.
type portKind int

const (
	portDefault portKind = iota // well-known port of the compared scheme
	portAny
	portRange
	portOrigin // the origin's own port, used by bare "self"
)

type portSpec struct {
	kind     portKind
	min, max int // half-open range [min, max); single ports use max = min+1
}

func (p portSpec) allows(port int, scheme string, origin *Origin) bool {
	switch p.kind {
	case portAny:
		return true
	case portRange:
		return port >= p.min && port < p.max
	case portOrigin:
		return origin != nil && port == origin.Port
	default:
		def, ok := WellKnownPort(scheme)
		return ok && port == def
	}
}

// HostPattern is one parsed allow-list entry.
type HostPattern struct {
	raw    string
	scheme string // "*", a scheme name, or "" for the origin's scheme
	webish bool   // "*" limited to http and https
	kind   HostKind
	host   string // lower-cased literal host, or ".domain" for HostSubdomain
	prefix netip.Prefix
	port   portSpec
}

// Kind returns the host classification.
func (p HostPattern) Kind() HostKind {
	return p.kind
}

// String returns the entry as written in the descriptor.
func (p HostPattern) String() string {
	return p.raw
}

// ParseHostPattern parses an allowed_outbound_hosts entry.
//
// Accepted forms are scheme://host[:port] where scheme may be "*", host may be
// "*", "self", "*.domain", a CIDR or a literal, and port may be a number, "*" or
// a range "a..b". Entries without a scheme are treated as http or https.
func ParseHostPattern(entry string) (HostPattern, error) {
	raw := strings.TrimSpace(entry)
	if raw == "" {
		return HostPattern{}, &errors.PatternError{Pattern: entry, Reason: "empty allowed host"}
	}
	if raw == "self" {
		return HostPattern{raw: raw, kind: HostSelf, port: portSpec{kind: portOrigin}}, nil
	}

	scheme, rest, hasScheme := strings.Cut(raw, "://")
	p := HostPattern{raw: raw}
	if hasScheme {
		if err := p.parseScheme(scheme); err != nil {
			return HostPattern{}, err
		}
	} else {
		rest = raw
		p.scheme = "*"
		p.webish = true
	}

	host, port, err := splitHostPort(raw, rest)
	if err != nil {
		return HostPattern{}, err
	}
	if err := p.parseHost(host); err != nil {
		return HostPattern{}, err
	}
	if err := p.parsePort(port); err != nil {
		return HostPattern{}, err
	}
	return p, nil
}

func (p *HostPattern) parseScheme(scheme string) error {
	if scheme == "*" {
		p.scheme = "*"
		return nil
	}
	if scheme == "" {
		return &errors.PatternError{Pattern: p.raw, Reason: "missing scheme"}
	}
	for _, c := range scheme {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return &errors.PatternError{Pattern: p.raw, Reason: "scheme contains non alphabetic character"}
		}
	}
	p.scheme = strings.ToLower(scheme)
	return nil
}

// splitHostPort separates the authority from the port and rejects paths.
// CIDR hosts contain a '/', so the port is split off from the right first.
func splitHostPort(raw, rest string) (string, string, error) {
	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", "", &errors.PatternError{Pattern: raw, Reason: "unterminated IPv6 literal"}
		}
		port, err := stripEmptyPath(raw, strings.TrimPrefix(rest[end+1:], ":"))
		return rest[1:end], port, err
	}

	i := strings.LastIndexByte(rest, ':')
	switch {
	case i < 0:
		return rest, "", nil
	case !strings.Contains(rest[:i], ":"):
		port, err := stripEmptyPath(raw, rest[i+1:])
		return rest[:i], port, err
	}

	// IPv6 CIDR such as ff00::/8:80. Without a prefix length the whole
	// string is an address.
	if j := strings.IndexByte(rest, '/'); j >= 0 && j < i {
		port, err := stripEmptyPath(raw, rest[i+1:])
		return rest[:i], port, err
	}
	return rest, "", nil
}

func stripEmptyPath(raw, port string) (string, error) {
	p, path, found := strings.Cut(port, "/")
	if found && path != "" {
		return "", &errors.PatternError{Pattern: raw, Reason: "allowed hosts must not contain a path"}
	}
	return p, nil
}

func (p *HostPattern) parseHost(host string) error {
	host = strings.TrimSpace(host)
	switch {
	case host == "*":
		p.kind = HostAny
		return nil
	case host == "self":
		p.kind = HostSelf
		return nil
	case host == "":
		return &errors.PatternError{Pattern: p.raw, Reason: "missing host"}
	}

	if prefix, err := netip.ParsePrefix(host); err == nil {
		p.kind = HostCIDR
		p.prefix = prefix.Masked()
		return nil
	}

	if _, path, found := strings.Cut(host, "/"); found {
		if path != "" {
			return &errors.PatternError{Pattern: p.raw, Reason: "allowed hosts must not contain a path"}
		}
		host = strings.TrimRight(host, "/")
	}

	if domain, ok := strings.CutPrefix(host, "*."); ok {
		if strings.Contains(domain, "*") || domain == "" {
			return &errors.PatternError{Pattern: p.raw, Reason: "wildcards are allowed only as prefixes"}
		}
		p.kind = HostSubdomain
		p.host = "." + strings.ToLower(domain)
		return nil
	}
	if strings.Contains(host, "*") {
		return &errors.PatternError{Pattern: p.raw, Reason: "wildcards are allowed only as subdomains"}
	}

	p.kind = HostExact
	p.host = strings.ToLower(host)
	return nil
}

func (p *HostPattern) parsePort(port string) error {
	port = strings.TrimSpace(port)
	switch {
	case port == "*":
		p.port = portSpec{kind: portAny}
		return nil
	case port == "":
		if p.scheme != "*" {
			if _, ok := WellKnownPort(p.scheme); !ok {
				return &errors.PatternError{Pattern: p.raw, Reason: "no port was provided and the scheme has no well-known port"}
			}
		}
		p.port = portSpec{kind: portDefault}
		return nil
	}

	if lo, hi, ok := strings.Cut(port, ".."); ok {
		minPort, err1 := strconv.Atoi(lo)
		maxPort, err2 := strconv.Atoi(hi)
		if err1 != nil || err2 != nil {
			return &errors.PatternError{Pattern: p.raw, Reason: "port range contains non-number"}
		}
		if minPort >= maxPort || maxPort > 65536 || minPort < 0 {
			return &errors.PatternError{Pattern: p.raw, Reason: "invalid port range"}
		}
		p.port = portSpec{kind: portRange, min: minPort, max: maxPort}
		return nil
	}

	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return &errors.PatternError{Pattern: p.raw, Reason: "port is not a number"}
	}
	p.port = portSpec{kind: portRange, min: n, max: n + 1}
	return nil
}

func (p HostPattern) allowsScheme(scheme string, origin *Origin) bool {
	switch {
	case p.scheme == "":
		return origin != nil && scheme == origin.Scheme
	case p.scheme == "*":
		return !p.webish || scheme == "http" || scheme == "https"
	default:
		return p.scheme == scheme
	}
}

func (p HostPattern) allowsHost(host string, origin *Origin) bool {
	switch p.kind {
	case HostAny:
		return true
	case HostSelf:
		return origin != nil && strings.EqualFold(host, origin.Host)
	case HostSubdomain:
		return strings.HasSuffix(host, p.host) || host == p.host[1:]
	case HostCIDR:
		addr, err := netip.ParseAddr(host)
		return err == nil && p.prefix.Contains(addr.Unmap())
	default:
		return host == p.host
	}
}

// Allows reports whether the pattern admits target. origin may be nil when the
// application origin is unknown, in which case "self" never matches.
func (p HostPattern) Allows(target Target, origin *Origin) bool {
	return p.allowsScheme(target.Scheme, origin) &&
		p.allowsHost(target.Host, origin) &&
		p.port.allows(target.Port, target.Scheme, origin)
}

// AllowsRelative reports whether the pattern admits a request back to the app itself.
func (p HostPattern) AllowsRelative() bool {
	return p.kind == HostSelf || p.kind == HostAny
}

// WellKnownPort returns the default port for scheme.
func WellKnownPort(scheme string) (int, bool) {
	switch strings.ToLower(scheme) {
	case "http":
		return 80, true
	case "https":
		return 443, true
	case "postgres":
		return 5432, true
	case "mysql":
		return 3306, true
	case "redis":
		return 6379, true
	case "mqtt":
		return 1883, true
	}
	return 0, false
}

// hostOnly strips IPv6 brackets and lower-cases host.
func hostOnly(host string) string {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return strings.ToLower(host)
}

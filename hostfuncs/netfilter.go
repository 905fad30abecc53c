package hostfuncs

import (
	"context"
	"net"
	"net/netip"
	"strconv"
)

// NetfilterResult represents the result of an address validation.
type NetfilterResult struct {
	Reason     string `json:"reason,omitempty"`
	ResolvedIP string `json:"resolved_ip,omitempty"`
	Allowed    bool   `json:"allowed"`
}

// LookupFunc resolves a host name to addresses.
type LookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// NetfilterOption is a functional option for configuring netfilter behavior.
type NetfilterOption func(*netfilterConfig)

type netfilterConfig struct {
	allowlist      []netip.Prefix // exempt from the address class checks
	blockPrivate   bool
	blockLocalhost bool
	blockLinkLocal bool
	blockMulticast bool
	resolveDNS     bool
	lookup         LookupFunc
}

// defaultNetfilterConfig blocks every address class usable for SSRF.
func defaultNetfilterConfig() netfilterConfig {
	return netfilterConfig{
		blockPrivate:   true,
		blockLocalhost: true,
		blockLinkLocal: true,
		blockMulticast: true,
		resolveDNS:     true,
		lookup:         defaultLookup,
	}
}

func defaultLookup(ctx context.Context, host string) ([]netip.Addr, error) {
	return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
}

// WithAllowlist exempts addresses or CIDRs from the class checks. Entries
// that do not parse are ignored.
func WithAllowlist(entries ...string) NetfilterOption {
	return func(c *netfilterConfig) {
		for _, e := range entries {
			if p, err := netip.ParsePrefix(e); err == nil {
				c.allowlist = append(c.allowlist, p.Masked())
				continue
			}
			if a, err := netip.ParseAddr(e); err == nil {
				c.allowlist = append(c.allowlist, netip.PrefixFrom(a, a.BitLen()))
			}
		}
	}
}

// WithBlockPrivate enables/disables blocking of RFC 1918 and ULA addresses.
func WithBlockPrivate(block bool) NetfilterOption {
	return func(c *netfilterConfig) {
		c.blockPrivate = block
	}
}

// WithBlockLocalhost enables/disables blocking of loopback addresses.
func WithBlockLocalhost(block bool) NetfilterOption {
	return func(c *netfilterConfig) {
		c.blockLocalhost = block
	}
}

// WithBlockLinkLocal enables/disables blocking of link-local addresses.
func WithBlockLinkLocal(block bool) NetfilterOption {
	return func(c *netfilterConfig) {
		c.blockLinkLocal = block
	}
}

// WithResolveDNS enables/disables DNS resolution before checking.
// Without resolution, host names pass unchecked.
func WithResolveDNS(resolve bool) NetfilterOption {
	return func(c *netfilterConfig) {
		c.resolveDNS = resolve
	}
}

// WithLookup replaces the resolver.
func WithLookup(fn LookupFunc) NetfilterOption {
	return func(c *netfilterConfig) {
		if fn != nil {
			c.lookup = fn
		}
	}
}

// ValidateAddress reports whether host (optionally host:port) may be dialed.
// Every resolved address must pass; the first one is returned for pinning.
func ValidateAddress(ctx context.Context, address string, opts ...NetfilterOption) NetfilterResult {
	cfg := defaultNetfilterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	host := splitHost(address)
	if host == "" {
		return NetfilterResult{Reason: "invalid address format: empty host"}
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return validateAddr(addr.Unmap(), cfg)
	}
	if !cfg.resolveDNS {
		return NetfilterResult{Allowed: true}
	}

	addrs, err := cfg.lookup(ctx, host)
	if err != nil {
		return NetfilterResult{Reason: "DNS resolution failed: " + err.Error()}
	}
	if len(addrs) == 0 {
		return NetfilterResult{Reason: "DNS resolution returned no addresses"}
	}
	var first NetfilterResult
	for i, a := range addrs {
		res := validateAddr(a.Unmap(), cfg)
		if !res.Allowed {
			return res
		}
		if i == 0 {
			first = res
		}
	}
	return first
}

func splitHost(address string) string {
	if h, p, err := net.SplitHostPort(address); err == nil {
		if _, perr := strconv.Atoi(p); perr == nil {
			return h
		}
	}
	if len(address) > 1 && address[0] == '[' && address[len(address)-1] == ']' {
		return address[1 : len(address)-1]
	}
	return address
}

func validateAddr(ip netip.Addr, cfg netfilterConfig) NetfilterResult {
	for _, p := range cfg.allowlist {
		if p.Contains(ip) {
			return NetfilterResult{Allowed: true, ResolvedIP: ip.String()}
		}
	}

	switch {
	case cfg.blockLocalhost && ip.IsLoopback():
		return NetfilterResult{Reason: "localhost/loopback addresses blocked"}
	case cfg.blockPrivate && ip.IsPrivate():
		return NetfilterResult{Reason: "private addresses blocked (RFC 1918)"}
	case cfg.blockLinkLocal && (ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()):
		return NetfilterResult{Reason: "link-local addresses blocked"}
	case cfg.blockMulticast && ip.IsMulticast():
		return NetfilterResult{Reason: "multicast addresses blocked"}
	case ip.IsUnspecified():
		return NetfilterResult{Reason: "unspecified address blocked"}
	}
	return NetfilterResult{Allowed: true, ResolvedIP: ip.String()}
}

// Package policy decides which outbound destinations a component may reach.
//
// The Table is built once from the application descriptor. Checks are pure
// functions over immutable data and never touch the network.
package policy

import (
	"context"
	"sort"

	"github.com/spinlet-dev/spinlet/domain/ports"
)

// policyConfig holds configuration for the Table.
type policyConfig struct {
	denialHandler ports.DenialHandler // Handler invoked on policy denials
}

func defaultPolicyConfig() policyConfig {
	return policyConfig{
		denialHandler: &LogDenialHandler{},
	}
}

// PolicyOption configures the Table.
type PolicyOption func(*policyConfig)

// WithDenialHandler sets the denial handler.
func WithDenialHandler(h ports.DenialHandler) PolicyOption {
	return func(c *policyConfig) {
		if h != nil {
			c.denialHandler = h
		}
	}
}

// ComponentHosts are the egress declarations of one component.
type ComponentHosts struct {
	Outbound []string // allowed_outbound_hosts
	Legacy   []string // allowed_http_hosts
}

// Table maps component ids to their allow-lists.
type Table struct {
	config policyConfig
	lists  map[string]*AllowList
}

// NewTable parses every component's declarations. Any malformed entry fails the
// whole table, so a bad descriptor never starts serving.
func NewTable(components map[string]ComponentHosts, opts ...PolicyOption) (*Table, error) {
	cfg := defaultPolicyConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ids := make([]string, 0, len(components))
	for id := range components {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lists := make(map[string]*AllowList, len(components))
	for _, id := range ids {
		hosts := components[id]
		list, err := NewAllowList(hosts.Outbound, hosts.Legacy)
		if err != nil {
			return nil, err
		}
		lists[id] = list
	}
	return &Table{config: cfg, lists: lists}, nil
}

// AllowList returns the list of component, or an empty list for unknown ids.
func (t *Table) AllowList(component string) *AllowList {
	if l, ok := t.lists[component]; ok {
		return l
	}
	return &AllowList{}
}

// Check evaluates an outbound URL for component and reports denials to the
// configured handler.
func (t *Table) Check(ctx context.Context, component, rawURL string, origin *Origin) Decision {
	d := t.AllowList(component).Check(rawURL, origin)
	if !d.Allowed {
		t.config.denialHandler.OnDenial(ctx, ports.Denial{
			Component: component,
			URL:       rawURL,
			Reason:    d.Reason,
			Hint:      d.Hint(),
		})
	}
	return d
}

// IsAllowed reports whether component may call requestedURL when the
// application is served at ownBaseURL. An unparsable base URL disables "self".
func (t *Table) IsAllowed(component, requestedURL, ownBaseURL string) bool {
	var origin *Origin
	if ownBaseURL != "" {
		origin, _ = ParseOrigin(ownBaseURL)
	}
	return t.AllowList(component).Check(requestedURL, origin).Allowed
}

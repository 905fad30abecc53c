package entities

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ExecutorKind selects how a component is invoked.
type ExecutorKind string

const (
	// ExecutorSpin calls the guest's handle_http_request export with a JSON request.
	ExecutorSpin ExecutorKind = "spin"
	// ExecutorWagi runs the guest as a WASI command speaking CGI over stdio.
	ExecutorWagi ExecutorKind = "wagi"
)

// Component is one routable unit of an App.
type Component struct {
	ID       string       `json:"id" yaml:"id" validate:"required,component_id"`
	Source   string       `json:"source" yaml:"source" validate:"required"`
	Route    string       `json:"route" yaml:"route" validate:"required,startswith=/"`
	Method   string       `json:"method,omitempty" yaml:"method,omitempty" validate:"omitempty,alpha"`
	Executor ExecutorKind `json:"executor,omitempty" yaml:"executor,omitempty" validate:"omitempty,oneof=spin wagi"`
	Wagi     *WagiConfig  `json:"wagi,omitempty" yaml:"wagi,omitempty"`

	AllowedOutboundHosts []string `json:"allowed_outbound_hosts,omitempty" yaml:"allowed_outbound_hosts,omitempty"`
	// AllowedHTTPHosts is the legacy egress form. Entries are merged into the
	// outbound allow-list and may only name http or https destinations.
	AllowedHTTPHosts []string `json:"allowed_http_hosts,omitempty" yaml:"allowed_http_hosts,omitempty"`

	Environment    map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
	Files          []FileMount       `json:"files,omitempty" yaml:"files,omitempty" validate:"dive"`
	KeyValueStores []string          `json:"key_value_stores,omitempty" yaml:"key_value_stores,omitempty" validate:"dive,required"`
	Limits         Limits            `json:"limits,omitempty" yaml:"limits,omitempty"`
}

// ExecutorKind returns the configured executor, defaulting to spin.
func (c *Component) ExecutorKind() ExecutorKind {
	if c.Executor == "" {
		return ExecutorSpin
	}
	return c.Executor
}

// HasKeyValueStore reports whether the component declared label.
func (c *Component) HasKeyValueStore(label string) bool {
	for _, l := range c.KeyValueStores {
		if l == label {
			return true
		}
	}
	return false
}

// WagiConfig customizes the WAGI executor.
type WagiConfig struct {
	Entrypoint string `json:"entrypoint,omitempty" yaml:"entrypoint,omitempty"`
	Argv       string `json:"argv,omitempty" yaml:"argv,omitempty"`
}

const (
	DefaultWagiEntrypoint = "_start"
	DefaultWagiArgv       = "${SCRIPT_NAME} ${ARGS}"
)

// EntrypointOrDefault returns the export invoked for each request.
func (w *WagiConfig) EntrypointOrDefault() string {
	if w == nil || w.Entrypoint == "" {
		return DefaultWagiEntrypoint
	}
	return w.Entrypoint
}

// ArgvOrDefault returns the argv template.
func (w *WagiConfig) ArgvOrDefault() string {
	if w == nil || w.Argv == "" {
		return DefaultWagiArgv
	}
	return w.Argv
}

// FileMount grants the guest read access to host files.
//
// In YAML a mount is either a glob string ("static/**/*.css"), mapped into the
// guest at the same relative path, or a {source, destination} pair mapping a
// directory to a guest path.
type FileMount struct {
	Source      string `json:"source" yaml:"source" validate:"required"`
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty" validate:"omitempty,startswith=/"`
}

// IsGlob reports whether the mount was given in the pattern form.
func (m FileMount) IsGlob() bool {
	return m.Destination == ""
}

// UnmarshalYAML accepts both the string and the mapping form.
func (m *FileMount) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		m.Source = value.Value
		m.Destination = ""
		return nil
	case yaml.MappingNode:
		type plain FileMount
		var p plain
		if err := value.Decode(&p); err != nil {
			return err
		}
		*m = FileMount(p)
		if m.Destination == "" {
			m.Destination = "/"
		}
		return nil
	default:
		return fmt.Errorf("line %d: file mount must be a string or a mapping", value.Line)
	}
}

// MarshalYAML writes glob mounts back in their short form.
func (m FileMount) MarshalYAML() (interface{}, error) {
	if m.IsGlob() {
		return m.Source, nil
	}
	type plain FileMount
	return plain(m), nil
}

// Limits bounds a single execution.
type Limits struct {
	MemoryMB            int    `json:"memory_mb,omitempty" yaml:"memory_mb,omitempty" validate:"gte=0,lte=4096"`
	Timeout             string `json:"timeout,omitempty" yaml:"timeout,omitempty" validate:"omitempty,duration"`
	MaxOutboundRequests int    `json:"max_outbound_requests,omitempty" yaml:"max_outbound_requests,omitempty" validate:"gte=0"`
}

// Limit defaults applied when a component leaves a field unset.
const (
	DefaultMemoryMB            = 128
	DefaultTimeout             = 30 * time.Second
	DefaultMaxOutboundRequests = 64
)

// MemoryPages returns the memory limit in 64 KiB wasm pages.
func (l Limits) MemoryPages() uint32 {
	mb := l.MemoryMB
	if mb == 0 {
		mb = DefaultMemoryMB
	}
	return uint32(mb) * 16
}

// MemoryBytes returns the memory limit in bytes.
func (l Limits) MemoryBytes() int64 {
	return int64(l.MemoryPages()) * 65536
}

// TimeoutDuration parses the timeout, falling back to DefaultTimeout.
func (l Limits) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(l.Timeout) == "" {
		return DefaultTimeout, nil
	}
	d, err := time.ParseDuration(l.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", l.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %q", l.Timeout)
	}
	return d, nil
}

// OutboundBudget returns how many outbound calls one execution may make.
func (l Limits) OutboundBudget() int {
	if l.MaxOutboundRequests == 0 {
		return DefaultMaxOutboundRequests
	}
	return l.MaxOutboundRequests
}

package kvstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/spinlet-dev/spinlet/domain/ports"
)

// DefaultLabel is the store every application can use without configuration.
const DefaultLabel = "default"

// registryConfig holds configuration for the Registry.
type registryConfig struct {
	strictMode bool // Fail on duplicate registrations
}

func defaultRegistryConfig() registryConfig {
	return registryConfig{
		strictMode: true,
	}
}

// RegistryOption configures a Registry instance.
type RegistryOption func(*registryConfig)

// WithStrictMode enables/disables strict mode for duplicate registrations.
// Default is true (fail on duplicates).
func WithStrictMode(enabled bool) RegistryOption {
	return func(c *registryConfig) {
		c.strictMode = enabled
	}
}

// Registry maps store labels to backends. It implements ports.KeyValueResolver.
type Registry struct {
	config registryConfig
	stores sync.Map // map[string]ports.KeyValueStore
}

var _ ports.KeyValueResolver = (*Registry)(nil)

// NewRegistry creates a new Registry with the given options.
func NewRegistry(opts ...RegistryOption) *Registry {
	cfg := defaultRegistryConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Registry{config: cfg}
}

// Register binds store to label.
func (r *Registry) Register(label string, store ports.KeyValueStore) error {
	if label == "" {
		return fmt.Errorf("store label must not be empty")
	}
	if store == nil {
		return fmt.Errorf("store %q is nil", label)
	}
	if r.config.strictMode {
		if _, loaded := r.stores.LoadOrStore(label, store); loaded {
			return fmt.Errorf("key-value store %q already registered", label)
		}
		return nil
	}
	r.stores.Store(label, store)
	return nil
}

// Store returns the backend registered under label.
func (r *Registry) Store(label string) (ports.KeyValueStore, bool) {
	v, ok := r.stores.Load(label)
	if !ok {
		return nil, false
	}
	return v.(ports.KeyValueStore), true
}

// Labels returns all registered labels in lexical order.
func (r *Registry) Labels() []string {
	var labels []string
	r.stores.Range(func(k, _ any) bool {
		labels = append(labels, k.(string))
		return true
	})
	sort.Strings(labels)
	return labels
}

// Close closes every backend that holds a connection.
func (r *Registry) Close() error {
	var errs []error
	r.stores.Range(func(k, v any) bool {
		if c, ok := v.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing store %q: %w", k, err))
			}
		}
		return true
	})
	return errors.Join(errs...)
}

// Backend types accepted by Open.
const (
	TypeMemory = "memory"
	TypeRedis  = "redis"
)

// Spec selects the backend of one label.
type Spec struct {
	Type string
	URL  string
}

// Open builds a registry from specs. The default label gets an in-memory
// store unless specs configure it.
func Open(ctx context.Context, specs map[string]Spec) (*Registry, error) {
	r := NewRegistry()
	labels := make([]string, 0, len(specs))
	for label := range specs {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		spec := specs[label]
		var store ports.KeyValueStore
		switch spec.Type {
		case "", TypeMemory:
			store = NewMemory()
		case TypeRedis:
			rs, err := OpenRedis(ctx, spec.URL, label)
			if err != nil {
				_ = r.Close()
				return nil, err
			}
			store = rs
		default:
			_ = r.Close()
			return nil, fmt.Errorf("key-value store %q: unknown type %q", label, spec.Type)
		}
		if err := r.Register(label, store); err != nil {
			_ = r.Close()
			return nil, err
		}
	}
	if _, ok := r.Store(DefaultLabel); !ok {
		_ = r.Register(DefaultLabel, NewMemory())
	}
	return r, nil
}

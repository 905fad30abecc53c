package host

import (
	"log/slog"

	"github.com/spinlet-dev/spinlet/domain/ports"
	"github.com/spinlet-dev/spinlet/hostfuncs"
	wz "github.com/spinlet-dev/spinlet/infrastructure/wazero"
	"github.com/tetratelabs/wazero"
)

// poolConfig holds configuration for the Pool.
type poolConfig struct {
	logger    *slog.Logger
	registry  *hostfuncs.HandlerRegistry
	stores    ports.KeyValueResolver
	cache     wazero.CompilationCache
	adapter   []wz.AdapterOption
	maxStdout int
}

func defaultPoolConfig() poolConfig {
	return poolConfig{
		logger:    slog.Default(),
		maxStdout: hostfuncs.DefaultMaxOutputSize,
	}
}

// PoolOption configures the Pool.
type PoolOption func(*poolConfig)

// WithHostFunctions exposes registry to every component as the spin_host module.
func WithHostFunctions(registry *hostfuncs.HandlerRegistry) PoolOption {
	return func(c *poolConfig) {
		c.registry = registry
	}
}

// WithKeyValueStores sets the resolver for declared key_value_stores labels.
// Without one, any component declaring a store fails to instantiate.
func WithKeyValueStores(r ports.KeyValueResolver) PoolOption {
	return func(c *poolConfig) {
		c.stores = r
	}
}

// WithLogger sets the logger used for pool events and guest stderr.
func WithLogger(l *slog.Logger) PoolOption {
	return func(c *poolConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCompilationCache shares compiled code between the per-component runtimes.
func WithCompilationCache(cache wazero.CompilationCache) PoolOption {
	return func(c *poolConfig) {
		c.cache = cache
	}
}

// WithAdapterOptions passes options to the host function adapter.
func WithAdapterOptions(opts ...wz.AdapterOption) PoolOption {
	return func(c *poolConfig) {
		c.adapter = append(c.adapter, opts...)
	}
}

// WithMaxStdout caps the captured stdout of one execution.
func WithMaxStdout(limit int) PoolOption {
	return func(c *poolConfig) {
		if limit > 0 {
			c.maxStdout = limit
		}
	}
}

package wazero

import (
	"context"
	"fmt"

	"github.com/spinlet-dev/spinlet/hostfuncs"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// RuntimeConfig configures a component runtime.
type RuntimeConfig struct {
	Cache            wazero.CompilationCache
	Registry         *hostfuncs.HandlerRegistry
	Adapter          []AdapterOption
	MemoryLimitPages uint32
}

// NewRuntime creates a runtime that aborts guests when their context is done,
// caps linear memory at cfg.MemoryLimitPages and has WASI preview1 and the
// host function module instantiated.
func NewRuntime(ctx context.Context, cfg RuntimeConfig) (wazero.Runtime, error) {
	rc := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	if cfg.Cache != nil {
		rc = rc.WithCompilationCache(cfg.Cache)
	}
	r := wazero.NewRuntimeWithConfig(ctx, rc)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("instantiating WASI: %w", err)
	}
	if cfg.Registry != nil {
		if err := RegisterWithRuntime(ctx, r, cfg.Registry, cfg.Adapter...); err != nil {
			_ = r.Close(ctx)
			return nil, err
		}
	}
	return r, nil
}

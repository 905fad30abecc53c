// Package wazero bridges spinlet's host functions and guest modules with the
// wazero WebAssembly runtime.
//
// It handles:
//
//   - Converting between the packed i64 pointer+length format and byte slices
//   - Reading request data from guest memory
//   - Allocating and writing response data to guest memory
//   - Creating component runtimes with WASI and the spin_host module
//   - Mapping guest exit conditions onto domain errors
//
// # Basic Usage
//
//	registry, err := hostfuncs.NewRegistry(
//	    hostfuncs.WithMiddleware(hostfuncs.PanicRecoveryMiddleware()),
//	    hostfuncs.WithBundle(hostfuncs.SpinBundle(hostfuncs.NewOutbound())),
//	)
//	if err != nil {
//	    return err
//	}
//
//	runtime, err := wazero.NewRuntime(ctx, wazero.RuntimeConfig{
//	    Registry:         registry,
//	    MemoryLimitPages: 2048,
//	})
package wazero

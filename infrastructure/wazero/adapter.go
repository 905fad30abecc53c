package wazero

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spinlet-dev/spinlet/hostfuncs"
	"github.com/spinlet-dev/spinlet/internal/abi"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// AdapterConfig holds configuration for the wazero adapter.
type AdapterConfig struct {
	// Logger receives ABI failures. Default: slog.Default().
	Logger *slog.Logger

	// ModuleName is the host module name (default: "spin_host").
	ModuleName string

	// MaxRequestSize limits the size of incoming requests from guest memory.
	// Default is 1MB.
	MaxRequestSize uint32
}

// AdapterOption configures the adapter.
type AdapterOption func(*AdapterConfig)

// WithModuleName sets the host module name (default: "spin_host").
func WithModuleName(name string) AdapterOption {
	return func(c *AdapterConfig) {
		if name != "" {
			c.ModuleName = name
		}
	}
}

// WithMaxRequestSize sets the maximum request size from guest memory.
func WithMaxRequestSize(size uint32) AdapterOption {
	return func(c *AdapterConfig) {
		if size > 0 {
			c.MaxRequestSize = size
		}
	}
}

// WithAdapterLogger sets the logger used for ABI failures.
func WithAdapterLogger(l *slog.Logger) AdapterOption {
	return func(c *AdapterConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		Logger:         slog.Default(),
		ModuleName:     abi.HostModuleName,
		MaxRequestSize: hostfuncs.DefaultMaxRequestSize,
	}
}

// RegisterWithRuntime instantiates a host module exporting every handler of
// registry on runtime.
//
// Each export has the signature (i64) -> i64. The argument is the packed
// pointer and length of a JSON request in guest memory. The result is the
// packed pointer and length of the JSON response, written into memory the
// host obtained from the guest's "allocate" export. Zero means the response
// could not be delivered.
func RegisterWithRuntime(ctx context.Context, runtime wazero.Runtime, registry *hostfuncs.HandlerRegistry, opts ...AdapterOption) error {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	builder := runtime.NewHostModuleBuilder(cfg.ModuleName)
	for _, name := range registry.Names() {
		funcName := name
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				stack[0] = handleRegistryCall(ctx, mod, stack[0], registry, funcName, cfg)
			}), []api.ValueType{api.ValueTypeI64}, []api.ValueType{api.ValueTypeI64}).
			Export(funcName)
	}

	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiating host module %q: %w", cfg.ModuleName, err)
	}
	return nil
}

func handleRegistryCall(ctx context.Context, mod api.Module, packed uint64, registry *hostfuncs.HandlerRegistry, name string, cfg AdapterConfig) uint64 {
	ptr, length := abi.UnpackPtrLen(packed)

	if length > cfg.MaxRequestSize {
		msg := fmt.Sprintf("request size %d exceeds maximum %d bytes", length, cfg.MaxRequestSize)
		cfg.Logger.WarnContext(ctx, "wazero: "+msg, "function", name)
		return writeResponse(ctx, mod, hostfuncs.NewValidationError(msg).ToJSON(), cfg.Logger)
	}

	request, ok := mod.Memory().Read(ptr, length)
	if !ok {
		cfg.Logger.ErrorContext(ctx, "wazero: request out of guest memory bounds", "function", name, "ptr", ptr, "len", length)
		return writeResponse(ctx, mod, hostfuncs.NewInternalError("failed to read request from guest memory").ToJSON(), cfg.Logger)
	}
	// Memory.Read returns a view; handlers may outlive the next guest write.
	request = append([]byte(nil), request...)

	response, err := registry.Invoke(ctx, name, request)
	if err != nil {
		cfg.Logger.ErrorContext(ctx, "wazero: handler invocation failed", "function", name, "error", err)
		return writeResponse(ctx, mod, hostfuncs.NewInternalError(err.Error()).ToJSON(), cfg.Logger)
	}
	return writeResponse(ctx, mod, response, cfg.Logger)
}

// writeResponse allocates memory in the guest and writes data there.
// Returns packed ptr+len or 0 on failure.
func writeResponse(ctx context.Context, mod api.Module, data []byte, logger *slog.Logger) uint64 {
	ptr, err := WriteGuestBytes(ctx, mod, data)
	if err != nil {
		logger.ErrorContext(ctx, "wazero: delivering response", "error", err)
		return 0
	}
	return abi.PackPtrLen(ptr, uint32(len(data))) //nolint:gosec // G115: bounded by guest allocation
}

// WriteGuestBytes copies data into memory obtained from the guest allocator
// and returns its address.
func WriteGuestBytes(ctx context.Context, mod api.Module, data []byte) (uint32, error) {
	allocate := mod.ExportedFunction(abi.ExportAllocate)
	if allocate == nil {
		return 0, fmt.Errorf("guest module does not export %q", abi.ExportAllocate)
	}
	results, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("calling guest %s: %w", abi.ExportAllocate, err)
	}
	ptr := uint32(results[0]) //nolint:gosec // G115: WASM32 pointers are always 32-bit
	if !mod.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("writing %d bytes at %#x out of guest memory bounds", len(data), ptr)
	}
	return ptr, nil
}

// ReadGuestBytes copies the packed ptr+len region out of guest memory.
func ReadGuestBytes(mod api.Module, packed uint64, limit uint32) ([]byte, error) {
	ptr, length := abi.UnpackPtrLen(packed)
	if limit > 0 && length > limit {
		return nil, fmt.Errorf("guest payload of %d bytes exceeds maximum %d", length, limit)
	}
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("guest payload at %#x+%d out of memory bounds", ptr, length)
	}
	return append([]byte(nil), data...), nil
}

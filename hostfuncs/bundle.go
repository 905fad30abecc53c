package hostfuncs

// Host function names exported in the spin_host module.
const (
	FuncOutboundHTTP = "outbound_http"
	FuncKVGet        = "kv_get"
	FuncKVSet        = "kv_set"
	FuncKVDelete     = "kv_delete"
	FuncKVExists     = "kv_exists"
	FuncKVKeys       = "kv_keys"
	FuncLogMessage   = "log_message"
)

// HostFuncBundle is a pre-configured set of related host functions.
// Bundles allow registering multiple handlers at once.
type HostFuncBundle interface {
	// Handlers returns a map of handler names to ByteHandler functions.
	Handlers() map[string]ByteHandler
}

// staticBundle implements HostFuncBundle with a fixed set of handlers.
type staticBundle struct {
	handlers map[string]ByteHandler
}

func (b *staticBundle) Handlers() map[string]ByteHandler {
	return b.handlers
}

// OutboundBundle returns outbound_http backed by o.
func OutboundBundle(o *Outbound) HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			FuncOutboundHTTP: NewJSONHandler(o.Handle),
		},
	}
}

// KeyValueBundle returns the kv_get, kv_set, kv_delete, kv_exists and kv_keys functions.
func KeyValueBundle() HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			FuncKVGet:    NewJSONHandler(KeyValueGet),
			FuncKVSet:    NewJSONHandler(KeyValueSet),
			FuncKVDelete: NewJSONHandler(KeyValueDelete),
			FuncKVExists: NewJSONHandler(KeyValueExists),
			FuncKVKeys:   NewJSONHandler(KeyValueKeys),
		},
	}
}

// LogBundle returns log_message.
func LogBundle() HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			FuncLogMessage: NewJSONHandler(LogMessage),
		},
	}
}

// compositeBundle combines multiple bundles into one.
type compositeBundle struct {
	bundles []HostFuncBundle
}

func (b *compositeBundle) Handlers() map[string]ByteHandler {
	result := make(map[string]ByteHandler)
	for _, bundle := range b.bundles {
		for name, handler := range bundle.Handlers() {
			result[name] = handler
		}
	}
	return result
}

// SpinBundle returns every host function a component may import.
func SpinBundle(o *Outbound) HostFuncBundle {
	return &compositeBundle{
		bundles: []HostFuncBundle{
			OutboundBundle(o),
			KeyValueBundle(),
			LogBundle(),
		},
	}
}

// WithBundle registers all handlers from a bundle.
func WithBundle(bundle HostFuncBundle) RegistryOption {
	return func(b *registryBuilder) {
		for name, handler := range bundle.Handlers() {
			if err := b.addHandler(name, handler); err != nil {
				b.errors = append(b.errors, err)
			}
		}
	}
}

// WithHandler registers a typed host function with automatic JSON handling.
func WithHandler[Req any, Resp any](name string, fn HostFunc[Req, Resp]) RegistryOption {
	return func(b *registryBuilder) {
		if err := b.addHandler(name, NewJSONHandler(fn)); err != nil {
			b.errors = append(b.errors, err)
		}
	}
}

package hostfuncs

import (
	"context"
	"log/slog"
	"time"
)

// Middleware wraps a ByteHandler to add cross-cutting behavior.
// Middleware executes in FIFO order (first registered wraps first, onion model).
type Middleware func(next ByteHandler) ByteHandler

// RegistryOption is a functional option for configuring a HandlerRegistry.
type RegistryOption func(*registryBuilder)

// PanicRecoveryMiddleware returns a middleware that catches panics and converts
// them to structured ErrorResponse JSON instead of crashing the host.
func PanicRecoveryMiddleware() Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp = NewPanicError(r).ToJSON()
					err = nil
				}
			}()
			return next(ctx, payload)
		}
	}
}

// LoggingMiddleware records every host function call at debug level,
// tagged with the calling component when one is bound to the context.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			c, ok := CallFrom(ctx)
			if !ok {
				c = &Call{Function: "unknown", Started: time.Now()}
			}
			attrs := append(c.Attrs(), "payload_bytes", len(payload))

			resp, err := next(ctx, payload)
			attrs = append(attrs, "duration", time.Since(c.Started))
			if err != nil {
				logger.ErrorContext(ctx, "host function failed", append(attrs, "error", err)...)
			} else {
				logger.DebugContext(ctx, "host function completed", attrs...)
			}
			return resp, err
		}
	}
}

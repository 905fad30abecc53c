package hostfuncs

import (
	"context"
	"time"
)

// Call describes one host function invocation. The registry binds it to the
// context before the middleware chain runs.
type Call struct {
	Function string
	Guest    *Guest // nil for calls made outside an execution
	Started  time.Time
}

type callKey struct{}

func withCall(ctx context.Context, function string) context.Context {
	c := &Call{Function: function, Started: time.Now()}
	if g, ok := GuestFrom(ctx); ok {
		c.Guest = g
	}
	return context.WithValue(ctx, callKey{}, c)
}

// CallFrom returns the invocation ctx was created for.
func CallFrom(ctx context.Context) (*Call, bool) {
	c, ok := ctx.Value(callKey{}).(*Call)
	return c, ok
}

// Attrs returns slog attributes naming the function and, when bound, the
// calling component and request.
func (c *Call) Attrs() []any {
	attrs := []any{"function", c.Function}
	if c.Guest != nil {
		attrs = append(attrs, "component", c.Guest.Component, "request_id", c.Guest.RequestID)
	}
	return attrs
}

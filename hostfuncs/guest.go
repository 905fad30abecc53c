package hostfuncs

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/spinlet-dev/spinlet/domain/policy"
	"github.com/spinlet-dev/spinlet/domain/ports"
)

// DefaultKeyValueStore is the label used when a guest omits one.
const DefaultKeyValueStore = "default"

// SelfDispatcher serves requests a guest addresses to its own application
// without going through a socket.
type SelfDispatcher interface {
	DispatchSelf(ctx context.Context, req *http.Request, depth int) (*http.Response, error)
}

// Guest is the host-side state of one execution. It is created per request
// and must not be shared between executions.
type Guest struct {
	Component string
	RequestID string
	Origin    *policy.Origin
	Policy    *policy.Table
	Logger    *slog.Logger
	Stores    map[string]ports.KeyValueStore // declared and configured stores only
	Self      SelfDispatcher
	Depth     int // self-request nesting level of this execution

	outbound atomic.Int64
	budget   int
}

// NewGuest creates the state for one execution of component with an outbound
// budget of maxOutbound calls.
func NewGuest(component string, maxOutbound int) *Guest {
	g := &Guest{Component: component, budget: maxOutbound}
	g.outbound.Store(int64(maxOutbound))
	return g
}

// TakeOutbound consumes one outbound call from the budget. It reports false
// once the budget is exhausted.
func (g *Guest) TakeOutbound() bool {
	return g.outbound.Add(-1) >= 0
}

// OutboundUsed returns how many outbound calls were attempted.
func (g *Guest) OutboundUsed() int {
	used := int64(g.budget) - g.outbound.Load()
	if used > int64(g.budget) {
		return g.budget
	}
	return int(used)
}

// Log returns the guest logger tagged with the component and request id.
func (g *Guest) Log() *slog.Logger {
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", g.Component, "request_id", g.RequestID)
}

// Store returns the store with label if the component declared it.
func (g *Guest) Store(label string) (ports.KeyValueStore, *GuestError) {
	if label == "" {
		label = DefaultKeyValueStore
	}
	s, ok := g.Stores[label]
	if !ok {
		return nil, NewGuestError(CodeAccessDenied, "component %q has no access to key-value store %q", g.Component, label)
	}
	return s, nil
}

// IsSelf reports whether target addresses the application serving this guest.
func (g *Guest) IsSelf(target policy.Target) bool {
	if g.Origin == nil {
		return false
	}
	return target.Relative || (target.Scheme == g.Origin.Scheme && target.Host == g.Origin.Host && target.Port == g.Origin.Port)
}

type guestKey struct{}

// WithGuest binds g to ctx. Host functions invoked with the returned context
// act on behalf of g.
func WithGuest(ctx context.Context, g *Guest) context.Context {
	return context.WithValue(ctx, guestKey{}, g)
}

// GuestFrom returns the guest bound to ctx.
func GuestFrom(ctx context.Context) (*Guest, bool) {
	g, ok := ctx.Value(guestKey{}).(*Guest)
	return g, ok && g != nil
}

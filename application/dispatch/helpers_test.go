package dispatch_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spinlet-dev/spinlet/application/dispatch"
	"github.com/spinlet-dev/spinlet/domain/entities"
	"github.com/spinlet-dev/spinlet/domain/policy"
	"github.com/spinlet-dev/spinlet/domain/routing"
	"github.com/spinlet-dev/spinlet/host"
	"github.com/spinlet-dev/spinlet/hostfuncs"
	"github.com/spinlet-dev/spinlet/infrastructure/kvstore"
)

// fakeTransport answers every outbound request with 200 "upstream".
type fakeTransport struct {
	mu   sync.Mutex
	urls []string
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.urls = append(f.urls, req.URL.String())
	f.mu.Unlock()
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Body:       io.NopCloser(strings.NewReader("upstream")),
		Request:    req,
	}, nil
}

func (f *fakeTransport) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

type fixture struct {
	dispatcher *dispatch.Dispatcher
	pool       *host.Pool
	transport  *fakeTransport
}

// newFixture prepares every component of an application and wires a
// dispatcher around it.
func newFixture(t *testing.T, bins host.MemoryProvider, components []entities.Component, opts ...dispatch.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	app := &entities.App{Name: "test", Dir: t.TempDir(), Components: components}

	entries := make([]routing.Entry, 0, len(components))
	hosts := make(map[string]policy.ComponentHosts, len(components))
	for _, c := range components {
		entries = append(entries, routing.Entry{Component: c.ID, Route: c.Route, Method: c.Method})
		hosts[c.ID] = policy.ComponentHosts{Outbound: c.AllowedOutboundHosts, Legacy: c.AllowedHTTPHosts}
	}
	routes, err := routing.NewTable(app.BasePath(), entries)
	require.NoError(t, err)
	policies, err := policy.NewTable(hosts)
	require.NoError(t, err)

	transport := &fakeTransport{}
	registry, err := hostfuncs.NewRegistry(
		hostfuncs.WithMiddleware(hostfuncs.PanicRecoveryMiddleware()),
		hostfuncs.WithBundle(hostfuncs.SpinBundle(hostfuncs.NewOutbound(hostfuncs.WithHTTPTransport(transport)))),
	)
	require.NoError(t, err)

	stores := kvstore.NewRegistry()
	require.NoError(t, stores.Register(kvstore.DefaultLabel, kvstore.NewMemory()))

	pool := host.NewPool(ctx, bins, host.WithHostFunctions(registry), host.WithKeyValueStores(stores))
	t.Cleanup(func() { _ = pool.Close(context.Background()) })
	require.NoError(t, pool.PrepareAll(ctx, app))

	return &fixture{
		dispatcher: dispatch.New(routes, policies, pool, opts...),
		pool:       pool,
		transport:  transport,
	}
}

func (f *fixture) assertBaseline(t *testing.T) {
	t.Helper()
	stats := f.pool.Stats()
	require.Zero(t, stats.Live, "live contexts")
	require.Zero(t, stats.ReservedBytes, "reserved bytes")
}

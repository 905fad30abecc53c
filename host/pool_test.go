package host_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spinlet-dev/spinlet/domain/entities"
	domainerrors "github.com/spinlet-dev/spinlet/domain/errors"
	"github.com/spinlet-dev/spinlet/host"
	"github.com/spinlet-dev/spinlet/infrastructure/kvstore"
	"github.com/spinlet-dev/spinlet/internal/abi"
	"github.com/spinlet-dev/spinlet/internal/wasmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T, bins host.MemoryProvider, opts ...host.PoolOption) *host.Pool {
	t.Helper()
	p := host.NewPool(context.Background(), bins, opts...)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func prepare(t *testing.T, p *host.Pool, c entities.Component) *host.Template {
	t.Helper()
	app := &entities.App{Name: "test", Dir: t.TempDir(), Components: []entities.Component{c}}
	tpl, err := p.Prepare(context.Background(), app, &app.Components[0])
	require.NoError(t, err)
	return tpl
}

// invoke runs one spin request on ec and decodes the guest response.
func invoke(t *testing.T, ec *host.ExecutionContext) (abi.Response, error) {
	t.Helper()
	req := []byte(`{"method":"GET","uri":"/","headers":[]}`)
	ptr, err := ec.WriteBytes(req)
	if err != nil {
		return abi.Response{}, err
	}
	res, err := ec.Call(abi.ExportHandle, uint64(ptr), uint64(len(req)))
	if err != nil {
		return abi.Response{}, err
	}
	data, err := ec.ReadBytes(res[0], 0)
	require.NoError(t, err)
	var resp abi.Response
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp, nil
}

func assertBaseline(t *testing.T, p *host.Pool) {
	t.Helper()
	stats := p.Stats()
	assert.Zero(t, stats.Live, "live contexts")
	assert.Zero(t, stats.ReservedBytes, "reserved bytes")
}

func TestPool_PrepareAndInstantiate(t *testing.T) {
	p := newPool(t, host.MemoryProvider{"hello": wasmtest.SpinStatic(wasmtest.StatusResponse(200, "hello"))})
	tpl := prepare(t, p, entities.Component{ID: "hello", Route: "/hello"})
	assert.Equal(t, "hello", tpl.ID())
	assert.Equal(t, entities.ExecutorSpin, tpl.Executor())
	assert.Equal(t, entities.DefaultTimeout, tpl.Timeout())
	assert.Equal(t, entities.DefaultMaxOutboundRequests, tpl.OutboundBudget())

	cached, ok := p.Template("hello")
	require.True(t, ok)
	assert.Same(t, tpl, cached)

	ec, err := p.Instantiate(context.Background(), "hello", host.InstanceConfig{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Stats().Live)
	assert.Equal(t, entities.Limits{}.MemoryBytes(), p.Stats().ReservedBytes)
	assert.Equal(t, "hello", ec.Guest().Component)

	resp, err := invoke(t, ec)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "hello", string(resp.Body))

	require.NoError(t, ec.Close())
	require.NoError(t, ec.Close())
	assertBaseline(t, p)
	assert.Equal(t, uint64(1), p.Stats().Total)
}

func TestPool_FreshInstancePerExecution(t *testing.T) {
	p := newPool(t, host.MemoryProvider{"counter": wasmtest.SpinCounter()})
	prepare(t, p, entities.Component{ID: "counter", Route: "/"})

	const n = 16
	statuses := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ec, err := p.Instantiate(context.Background(), "counter", host.InstanceConfig{})
			if !assert.NoError(t, err) {
				return
			}
			defer func() { _ = ec.Close() }()
			resp, err := invoke(t, ec)
			if assert.NoError(t, err) {
				statuses[i] = resp.Status
			}
		}(i)
	}
	wg.Wait()

	for i, s := range statuses {
		assert.Equal(t, 201, s, "execution %d saw state from another execution", i)
	}
	assertBaseline(t, p)
	assert.Equal(t, uint64(n), p.Stats().Total)
}

func TestPool_SameInstanceKeepsState(t *testing.T) {
	p := newPool(t, host.MemoryProvider{"counter": wasmtest.SpinCounter()})
	prepare(t, p, entities.Component{ID: "counter", Route: "/"})

	ec, err := p.Instantiate(context.Background(), "counter", host.InstanceConfig{})
	require.NoError(t, err)
	defer func() { _ = ec.Close() }()

	first, err := invoke(t, ec)
	require.NoError(t, err)
	second, err := invoke(t, ec)
	require.NoError(t, err)
	assert.Equal(t, 201, first.Status)
	assert.Equal(t, 202, second.Status)
}

func TestPool_GuestFailures(t *testing.T) {
	tests := []struct {
		name   string
		bin    []byte
		limits entities.Limits
		cancel time.Duration
		check  func(t *testing.T, err error)
	}{
		{
			name:   "timeout",
			bin:    wasmtest.SpinLoop(),
			limits: entities.Limits{Timeout: "50ms"},
			check: func(t *testing.T, err error) {
				var te *domainerrors.TimeoutError
				require.True(t, errors.As(err, &te), "got %v", err)
				assert.Equal(t, 50*time.Millisecond, te.Duration)
			},
		},
		{
			name:   "cancelled",
			bin:    wasmtest.SpinLoop(),
			cancel: 30 * time.Millisecond,
			check: func(t *testing.T, err error) {
				var ce *domainerrors.CancelledError
				assert.True(t, errors.As(err, &ce), "got %v", err)
			},
		},
		{
			name: "trap",
			bin:  wasmtest.SpinTrap(),
			check: func(t *testing.T, err error) {
				var te *domainerrors.TrapError
				assert.True(t, errors.As(err, &te), "got %v", err)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newPool(t, host.MemoryProvider{"c": tc.bin})
			prepare(t, p, entities.Component{ID: "c", Route: "/", Limits: tc.limits})

			ctx := context.Background()
			if tc.cancel > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithCancel(ctx)
				time.AfterFunc(tc.cancel, cancel)
			}

			ec, err := p.Instantiate(ctx, "c", host.InstanceConfig{})
			require.NoError(t, err)
			_, err = invoke(t, ec)
			require.Error(t, err)
			tc.check(t, err)

			require.NoError(t, ec.Close())
			assertBaseline(t, p)
		})
	}
}

func TestPool_PrepareErrors(t *testing.T) {
	tests := []struct {
		name      string
		bins      host.MemoryProvider
		component entities.Component
		resource  string
	}{
		{"unknown source", host.MemoryProvider{}, entities.Component{ID: "x", Route: "/"}, "source"},
		{"not wasm", host.MemoryProvider{"x": []byte("nope")}, entities.Component{ID: "x", Route: "/"}, "source"},
		{"missing handler", host.MemoryProvider{"x": wasmtest.SpinMissingHandler()}, entities.Component{ID: "x", Route: "/"}, "source"},
		{"missing entrypoint", host.MemoryProvider{"x": wasmtest.WagiExit(0)}, entities.Component{
			ID: "x", Route: "/", Executor: entities.ExecutorWagi, Wagi: &entities.WagiConfig{Entrypoint: "main"},
		}, "source"},
		{"bad timeout", host.MemoryProvider{"x": wasmtest.SpinTrap()}, entities.Component{ID: "x", Route: "/", Limits: entities.Limits{Timeout: "soon"}}, "limits.timeout"},
		{"unresolved host import", host.MemoryProvider{"x": wasmtest.SpinOutbound(`{}`)}, entities.Component{ID: "x", Route: "/"}, ""},
		{"foreign import", host.MemoryProvider{"x": wasmtest.SpinImport("spin_sqlite", "open")}, entities.Component{ID: "x", Route: "/"}, ""},
		{"trapping initializer", host.MemoryProvider{"x": wasmtest.SpinInitTrap()}, entities.Component{ID: "x", Route: "/"}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newPool(t, tc.bins)
			app := &entities.App{Name: "t", Components: []entities.Component{tc.component}}
			_, err := p.Prepare(context.Background(), app, &app.Components[0])
			if tc.resource == "" {
				// Imports are only linked at instantiation.
				require.NoError(t, err)
				_, err = p.Instantiate(context.Background(), "x", host.InstanceConfig{})
				var ie *domainerrors.InstantiationError
				require.True(t, errors.As(err, &ie), "got %v", err)
				assert.Equal(t, "module", ie.Resource)
				assert.NotErrorAs(t, err, new(*domainerrors.CancelledError))
				assertBaseline(t, p)
				return
			}
			var ie *domainerrors.InstantiationError
			require.True(t, errors.As(err, &ie), "got %v", err)
			assert.Equal(t, "x", ie.Component)
			assert.Equal(t, tc.resource, ie.Resource)
			_, ok := p.Template("x")
			assert.False(t, ok)
		})
	}
}

func TestPool_UnknownTemplate(t *testing.T) {
	p := newPool(t, host.MemoryProvider{})
	_, err := p.Instantiate(context.Background(), "ghost", host.InstanceConfig{})
	var ie *domainerrors.InstantiationError
	require.True(t, errors.As(err, &ie))
	assert.ErrorIs(t, err, host.ErrUnknownComponent)
}

func TestPool_KeyValueStores(t *testing.T) {
	bins := host.MemoryProvider{"kv": wasmtest.SpinStatic(wasmtest.StatusResponse(200, ""))}
	component := entities.Component{ID: "kv", Route: "/", KeyValueStores: []string{"default", "cache"}}

	t.Run("unconfigured label fails", func(t *testing.T) {
		stores := kvstore.NewRegistry()
		require.NoError(t, stores.Register("default", kvstore.NewMemory()))
		p := newPool(t, bins, host.WithKeyValueStores(stores))
		prepare(t, p, component)

		_, err := p.Instantiate(context.Background(), "kv", host.InstanceConfig{})
		var ie *domainerrors.InstantiationError
		require.True(t, errors.As(err, &ie), "got %v", err)
		assert.Equal(t, "key_value_stores.cache", ie.Resource)
		assert.Equal(t, 500, domainerrors.StatusOf(err))
		assertBaseline(t, p)
	})

	t.Run("no resolver", func(t *testing.T) {
		p := newPool(t, bins)
		prepare(t, p, component)
		_, err := p.Instantiate(context.Background(), "kv", host.InstanceConfig{})
		require.Error(t, err)
	})

	t.Run("declared stores are bound", func(t *testing.T) {
		stores, err := kvstore.Open(context.Background(), map[string]kvstore.Spec{"cache": {}})
		require.NoError(t, err)
		p := newPool(t, bins, host.WithKeyValueStores(stores))
		prepare(t, p, component)

		ec, err := p.Instantiate(context.Background(), "kv", host.InstanceConfig{})
		require.NoError(t, err)
		defer func() { _ = ec.Close() }()
		assert.Len(t, ec.Guest().Stores, 2)
		_, gerr := ec.Guest().Store("cache")
		assert.Nil(t, gerr)
	})
}

func TestPool_FileMounts(t *testing.T) {
	bins := host.MemoryProvider{"c": wasmtest.SpinStatic(wasmtest.StatusResponse(200, ""))}
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "assets"), 0o755))

	p := newPool(t, bins)
	app := &entities.App{Name: "t", Dir: dir, Components: []entities.Component{{
		ID: "c", Route: "/",
		Files: []entities.FileMount{{Source: "assets", Destination: "/assets"}, {Source: "gone", Destination: "/gone"}},
	}}}
	_, err := p.Prepare(context.Background(), app, &app.Components[0])
	require.NoError(t, err)

	_, err = p.Instantiate(context.Background(), "c", host.InstanceConfig{})
	var ie *domainerrors.InstantiationError
	require.True(t, errors.As(err, &ie), "got %v", err)
	assert.Equal(t, "files.gone", ie.Resource)
	assertBaseline(t, p)
}

func TestPool_Wagi(t *testing.T) {
	wagi := func(id string) entities.Component {
		return entities.Component{
			ID: id, Route: "/" + id, Executor: entities.ExecutorWagi,
			Environment: map[string]string{"GREETING": "hello", "SHADOWED": "component"},
		}
	}
	p := newPool(t, host.MemoryProvider{
		"static": wasmtest.WagiStatic("Content-Type: text/plain\n\nhi"),
		"env":    wasmtest.WagiEnv(),
		"ok":     wasmtest.WagiExit(0),
		"fail":   wasmtest.WagiExit(3),
	})
	for _, id := range []string{"static", "env", "ok", "fail"} {
		prepare(t, p, wagi(id))
	}

	run := func(id string, cfg host.InstanceConfig) (string, error) {
		ec, err := p.Instantiate(context.Background(), id, cfg)
		require.NoError(t, err)
		defer func() { _ = ec.Close() }()
		_, err = ec.Call(entities.DefaultWagiEntrypoint)
		return ec.Stdout().String(), err
	}

	out, err := run("static", host.InstanceConfig{})
	require.NoError(t, err)
	assert.Equal(t, "Content-Type: text/plain\n\nhi", out)

	out, err = run("env", host.InstanceConfig{Env: map[string]string{"SHADOWED": "request", "X_EXTRA": "1"}})
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	assert.Contains(t, lines, "GREETING=hello")
	assert.Contains(t, lines, "SHADOWED=request")
	assert.Contains(t, lines, "X_EXTRA=1")

	_, err = run("ok", host.InstanceConfig{})
	assert.NoError(t, err, "proc_exit(0) is success")

	_, err = run("fail", host.InstanceConfig{})
	var te *domainerrors.TrapError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, uint32(3), te.ExitCode)

	assertBaseline(t, p)
}

func TestPool_PrepareAllAndClose(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.wasm"), wasmtest.SpinTrap(), 0o644))
	app := &entities.App{Name: "t", Dir: dir, Components: []entities.Component{
		{ID: "a", Source: "a.wasm", Route: "/a"},
		{ID: "b", Source: "a.wasm", Route: "/b"},
	}}

	p := host.NewPool(context.Background(), host.NewFileProvider(app))
	require.NoError(t, p.PrepareAll(context.Background(), app))
	assert.Equal(t, 2, p.Stats().Templates)

	require.NoError(t, p.Close(context.Background()))
	assert.Zero(t, p.Stats().Templates)
	_, err := p.Prepare(context.Background(), app, &app.Components[0])
	assert.Error(t, err)
}

func TestPool_PrepareAllFailureClosesPool(t *testing.T) {
	app := &entities.App{Name: "t", Dir: t.TempDir(), Components: []entities.Component{
		{ID: "a", Source: "missing.wasm", Route: "/a"},
	}}
	p := host.NewPool(context.Background(), host.NewFileProvider(app))
	err := p.PrepareAll(context.Background(), app)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

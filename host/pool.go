package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spinlet-dev/spinlet/domain/entities"
	domainerrors "github.com/spinlet-dev/spinlet/domain/errors"
	"github.com/spinlet-dev/spinlet/domain/ports"
	wz "github.com/spinlet-dev/spinlet/infrastructure/wazero"
	"github.com/spinlet-dev/spinlet/internal/abi"
	"github.com/tetratelabs/wazero"
)

// Template is the compiled, instantiation-ready form of one component.
// It is shared read-only by every execution of the component.
type Template struct {
	id       string
	executor entities.ExecutorKind
	wagi     *entities.WagiConfig
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	timeout  time.Duration
	memory   int64
	outbound int
	env      map[string]string
	stores   []string
	mounts   *mountPlan
	hasInit  bool
}

// ID returns the component id.
func (t *Template) ID() string { return t.id }

// Executor returns how the component is invoked.
func (t *Template) Executor() entities.ExecutorKind { return t.executor }

// Wagi returns the WAGI settings, possibly nil.
func (t *Template) Wagi() *entities.WagiConfig { return t.wagi }

// Timeout returns the execution budget.
func (t *Template) Timeout() time.Duration { return t.timeout }

// OutboundBudget returns the outbound calls allowed per execution.
func (t *Template) OutboundBudget() int { return t.outbound }

// Pool owns the compiled templates of an application and creates a fresh
// ExecutionContext for every request.
type Pool struct {
	config     poolConfig
	provider   ports.ComponentProvider
	mu         sync.Mutex // serializes preparation
	templates  atomic.Pointer[map[string]*Template]
	accounting Accounting
	closed     atomic.Bool
}

// NewPool creates an empty pool. Components are compiled by Prepare.
func NewPool(_ context.Context, provider ports.ComponentProvider, opts ...PoolOption) *Pool {
	cfg := defaultPoolConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	p := &Pool{config: cfg, provider: provider}
	empty := map[string]*Template{}
	p.templates.Store(&empty)
	return p
}

// PrepareAll compiles every component of app. On failure nothing stays prepared.
func (p *Pool) PrepareAll(ctx context.Context, app *entities.App) error {
	for i := range app.Components {
		if _, err := p.Prepare(ctx, app, &app.Components[i]); err != nil {
			_ = p.Close(ctx)
			return err
		}
	}
	return nil
}

// Prepare compiles c once on its own runtime and caches the template.
// Preparing an id twice returns the cached template.
func (p *Pool) Prepare(ctx context.Context, app *entities.App, c *entities.Component) (*Template, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return nil, fmt.Errorf("pool is closed")
	}
	current := *p.templates.Load()
	if t, ok := current[c.ID]; ok {
		return t, nil
	}

	fail := func(resource string, err error) error {
		return &domainerrors.InstantiationError{Component: c.ID, Resource: resource, Err: err}
	}

	timeout, err := c.Limits.TimeoutDuration()
	if err != nil {
		return nil, fail("limits.timeout", err)
	}
	mounts, err := planMounts(app, c)
	if err != nil {
		return nil, fail("files", err)
	}
	bin, err := p.provider.Source(ctx, c.ID)
	if err != nil {
		return nil, fail("source", err)
	}

	rt, err := wz.NewRuntime(ctx, wz.RuntimeConfig{
		Cache:            p.config.cache,
		Registry:         p.config.registry,
		Adapter:          p.config.adapter,
		MemoryLimitPages: c.Limits.MemoryPages(),
	})
	if err != nil {
		return nil, fail("runtime", err)
	}
	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fail("source", fmt.Errorf("compiling: %w", err))
	}

	exports := compiled.ExportedFunctions()
	var required []string
	switch c.ExecutorKind() {
	case entities.ExecutorWagi:
		required = []string{c.Wagi.EntrypointOrDefault()}
	default:
		required = []string{abi.ExportAllocate, abi.ExportHandle}
	}
	for _, name := range required {
		if _, ok := exports[name]; !ok {
			_ = rt.Close(ctx)
			return nil, fail("source", fmt.Errorf("module does not export %q", name))
		}
	}
	_, hasInit := exports[abi.ExportInitialize]

	t := &Template{
		id:       c.ID,
		executor: c.ExecutorKind(),
		wagi:     c.Wagi,
		runtime:  rt,
		compiled: compiled,
		timeout:  timeout,
		memory:   c.Limits.MemoryBytes(),
		outbound: c.Limits.OutboundBudget(),
		env:      c.Environment,
		stores:   c.KeyValueStores,
		mounts:   mounts,
		hasInit:  hasInit && c.ExecutorKind() == entities.ExecutorSpin,
	}

	next := make(map[string]*Template, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[c.ID] = t
	p.templates.Store(&next)

	p.config.logger.DebugContext(ctx, "component prepared",
		"component", c.ID,
		"executor", string(t.executor),
		"memory_bytes", t.memory,
		"timeout", t.timeout,
	)
	return t, nil
}

// Template returns the cached template of id.
func (p *Pool) Template(id string) (*Template, bool) {
	t, ok := (*p.templates.Load())[id]
	return t, ok
}

// Stats returns a snapshot of the resource accounting.
func (p *Pool) Stats() Stats {
	return Stats{
		Templates:     len(*p.templates.Load()),
		Live:          p.accounting.Live(),
		ReservedBytes: p.accounting.ReservedBytes(),
		Total:         p.accounting.Total(),
	}
}

// Close releases every runtime. Open execution contexts fail once their
// runtime is gone.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for id, t := range *p.templates.Load() {
		if err := t.runtime.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing runtime of %q: %w", id, err)
		}
	}
	empty := map[string]*Template{}
	p.templates.Store(&empty)
	p.closed.Store(true)
	return firstErr
}

func (p *Pool) logger() *slog.Logger {
	return p.config.logger
}

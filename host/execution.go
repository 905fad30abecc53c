package host

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/spinlet-dev/spinlet/domain/entities"
	domainerrors "github.com/spinlet-dev/spinlet/domain/errors"
	"github.com/spinlet-dev/spinlet/domain/ports"
	"github.com/spinlet-dev/spinlet/hostfuncs"
	wz "github.com/spinlet-dev/spinlet/infrastructure/wazero"
	"github.com/spinlet-dev/spinlet/internal/abi"
	"github.com/spinlet-dev/spinlet/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// InstanceConfig carries the per-request inputs of an instantiation.
type InstanceConfig struct {
	Guest *hostfuncs.Guest  // host-side state; created from the template when nil
	Env   map[string]string // merged over the component environment
	Args  []string
	Stdin []byte
}

// ExecutionContext is one isolated instance of a component. It serves a
// single request and must be closed on every exit path.
type ExecutionContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	template *Template
	module   api.Module
	guest    *hostfuncs.Guest
	stdout   *hostfuncs.BoundedBuffer
	stderr   *log.LineWriter
	release  func()
	once     sync.Once
}

// Instantiate creates a fresh instance of component id bounded by the
// component's limits. The returned context stops at the execution deadline
// or when ctx is cancelled.
func (p *Pool) Instantiate(ctx context.Context, id string, cfg InstanceConfig) (*ExecutionContext, error) {
	t, ok := p.Template(id)
	if !ok {
		return nil, &domainerrors.InstantiationError{Component: id, Resource: "template", Err: ErrUnknownComponent}
	}

	g := cfg.Guest
	if g == nil {
		g = hostfuncs.NewGuest(id, t.outbound)
	}
	if g.Logger == nil {
		g.Logger = p.logger()
	}
	stores, err := p.resolveStores(t)
	if err != nil {
		return nil, err
	}
	g.Stores = stores

	fsConfig, missing, err := t.mounts.fsConfig()
	if err != nil {
		return nil, &domainerrors.InstantiationError{Component: id, Resource: "files." + missing, Err: err}
	}

	execCtx, cancel := context.WithTimeout(ctx, t.timeout)
	execCtx = hostfuncs.WithGuest(execCtx, g)

	ec := &ExecutionContext{
		ctx:      execCtx,
		cancel:   cancel,
		template: t,
		guest:    g,
		stdout:   hostfuncs.NewBoundedBuffer(p.config.maxStdout),
		stderr:   log.NewLineWriter(g.Log().With("stream", "stderr"), slog.LevelInfo),
		release:  p.accounting.acquire(t.memory),
	}

	mc := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions().
		WithStdin(bytes.NewReader(cfg.Stdin)).
		WithStdout(ec.stdout).
		WithStderr(ec.stderr).
		WithFSConfig(fsConfig).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader)
	if len(cfg.Args) > 0 {
		mc = mc.WithArgs(cfg.Args...)
	}
	for _, kv := range mergeEnv(t.env, cfg.Env) {
		mc = mc.WithEnv(kv[0], kv[1])
	}

	mod, err := t.runtime.InstantiateModule(execCtx, t.compiled, mc)
	if err != nil {
		err = instantiationFailure(execCtx, t, err)
		_ = ec.Close()
		return nil, err
	}
	ec.module = mod

	if t.hasInit {
		if _, err := mod.ExportedFunction(abi.ExportInitialize).Call(execCtx); err != nil {
			err = instantiationFailure(execCtx, t, err)
			_ = ec.Close()
			return nil, err
		}
	}
	return ec, nil
}

// instantiationFailure keeps timeouts and cancellations distinguishable from
// a module that cannot be instantiated. It must run before the execution
// context is cancelled by Close.
func instantiationFailure(ctx context.Context, t *Template, err error) error {
	classified := wz.ClassifyError(ctx, t.id, t.timeout, err)
	var timeout *domainerrors.TimeoutError
	var cancelled *domainerrors.CancelledError
	if errors.As(classified, &timeout) || errors.As(classified, &cancelled) {
		return classified
	}
	return &domainerrors.InstantiationError{Component: t.id, Resource: "module", Err: err}
}

func (p *Pool) resolveStores(t *Template) (map[string]ports.KeyValueStore, error) {
	if len(t.stores) == 0 {
		return nil, nil
	}
	stores := make(map[string]ports.KeyValueStore, len(t.stores))
	for _, label := range t.stores {
		var (
			s  ports.KeyValueStore
			ok bool
		)
		if p.config.stores != nil {
			s, ok = p.config.stores.Store(label)
		}
		if !ok {
			return nil, &domainerrors.InstantiationError{
				Component: t.id,
				Resource:  "key_value_stores." + label,
				Err:       fmt.Errorf("no store configured for label %q", label),
			}
		}
		stores[label] = s
	}
	return stores, nil
}

func mergeEnv(base, override map[string]string) [][2]string {
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][2]string, len(keys))
	for i, k := range keys {
		out[i] = [2]string{k, merged[k]}
	}
	return out
}

// Context returns the execution context: deadline bound and guest attached.
func (e *ExecutionContext) Context() context.Context { return e.ctx }

// Component returns the component id.
func (e *ExecutionContext) Component() string { return e.template.id }

// Template returns the template the instance was created from.
func (e *ExecutionContext) Template() *Template { return e.template }

// Executor returns how the component is invoked.
func (e *ExecutionContext) Executor() entities.ExecutorKind { return e.template.executor }

// Guest returns the host-side state of this execution.
func (e *ExecutionContext) Guest() *hostfuncs.Guest { return e.guest }

// Stdout returns the captured standard output.
func (e *ExecutionContext) Stdout() *hostfuncs.BoundedBuffer { return e.stdout }

// Module returns the guest instance.
func (e *ExecutionContext) Module() api.Module { return e.module }

// Call invokes an export. Errors are classified into TrapError, TimeoutError
// or CancelledError; a proc_exit(0) is a successful return without results.
func (e *ExecutionContext) Call(name string, params ...uint64) ([]uint64, error) {
	fn := e.module.ExportedFunction(name)
	if fn == nil {
		return nil, &domainerrors.TrapError{Component: e.template.id, Err: fmt.Errorf("export %q not found", name)}
	}
	results, err := fn.Call(e.ctx, params...)
	if err != nil {
		return nil, wz.ClassifyError(e.ctx, e.template.id, e.template.timeout, err)
	}
	return results, nil
}

// WriteBytes copies data into guest memory obtained from its allocator.
func (e *ExecutionContext) WriteBytes(data []byte) (uint32, error) {
	ptr, err := wz.WriteGuestBytes(e.ctx, e.module, data)
	if err != nil {
		return 0, wz.ClassifyError(e.ctx, e.template.id, e.template.timeout, err)
	}
	return ptr, nil
}

// ReadBytes copies a packed ptr+len region out of guest memory.
func (e *ExecutionContext) ReadBytes(packed uint64, limit uint32) ([]byte, error) {
	data, err := wz.ReadGuestBytes(e.module, packed, limit)
	if err != nil {
		return nil, &domainerrors.TrapError{Component: e.template.id, Err: err}
	}
	return data, nil
}

// Close tears the instance down and releases its accounting. It is safe to
// call more than once.
func (e *ExecutionContext) Close() error {
	var err error
	e.once.Do(func() {
		if e.module != nil {
			err = e.module.Close(context.Background())
		}
		e.cancel()
		_ = e.stderr.Close()
		e.release()
	})
	return err
}

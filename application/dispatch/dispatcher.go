package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spinlet-dev/spinlet/application/normalize"
	"github.com/spinlet-dev/spinlet/domain/entities"
	domainerrors "github.com/spinlet-dev/spinlet/domain/errors"
	"github.com/spinlet-dev/spinlet/domain/policy"
	"github.com/spinlet-dev/spinlet/domain/routing"
	"github.com/spinlet-dev/spinlet/host"
	"github.com/spinlet-dev/spinlet/hostfuncs"
)

// ErrSelfDepthExceeded is returned when self requests nest too deeply.
var ErrSelfDepthExceeded = errors.New("self request depth exceeded")

// ConnInfo describes the connection a request arrived on.
type ConnInfo struct {
	Scheme string // "http" or "https"; derived from the request when empty
	Depth  int    // self-request nesting level, 0 for client requests
}

// Dispatcher serves requests against one application. It holds no
// per-request state and is safe for concurrent use.
type Dispatcher struct {
	config   dispatchConfig
	routes   *routing.Table
	policies *policy.Table
	pool     *host.Pool

	noRoute sync.Once
}

var _ hostfuncs.SelfDispatcher = (*Dispatcher)(nil)

// New creates a dispatcher over prepared templates.
func New(routes *routing.Table, policies *policy.Table, pool *host.Pool, opts ...Option) *Dispatcher {
	cfg := defaultDispatchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Dispatcher{config: cfg, routes: routes, policies: policies, pool: pool}
}

// Dispatch runs r to a terminal state. It never writes to the client; see
// Outcome.Write.
func (d *Dispatcher) Dispatch(ctx context.Context, r *http.Request, conn ConnInfo) *Outcome {
	start := time.Now()
	out := &Outcome{RequestID: uuid.NewString()}
	out.advance(StateReceived)
	logger := d.config.logger.With("request_id", out.RequestID)

	defer func() {
		out.Metadata = entities.NewRunMetadata(start, time.Now()).
			WithRequestID(out.RequestID).
			WithComponent(out.Component)
		d.log(ctx, logger, r, out)
	}()

	if err := ctx.Err(); err != nil {
		out.fail(&domainerrors.CancelledError{Err: err})
		return out
	}

	match, ok := d.routes.Resolve(r.Method, r.URL.EscapedPath())
	if !ok {
		d.warnNoRoute(ctx, r.URL.Path)
		out.advance(StateCompleted)
		out.Status = http.StatusNotFound
		return out
	}
	out.Component = match.Component
	out.advance(StateRouted)
	logger = logger.With("component", match.Component)

	tpl, ok := d.pool.Template(match.Component)
	if !ok {
		out.fail(&domainerrors.InstantiationError{Component: match.Component, Resource: "template", Err: host.ErrUnknownComponent})
		return out
	}
	exec := executorFor(tpl.Executor(), d.config.maxResponse)
	if err := exec.accepts(r); err != nil {
		out.fail(err)
		return out
	}

	opts := []normalize.Option{normalize.WithMaxBody(d.config.maxBody)}
	if conn.Scheme != "" {
		opts = append(opts, normalize.WithScheme(conn.Scheme))
	}
	req, err := normalize.FromHTTP(r, match, opts...)
	if err != nil {
		out.fail(err)
		return out
	}

	guest := hostfuncs.NewGuest(match.Component, tpl.OutboundBudget())
	guest.RequestID = out.RequestID
	guest.Policy = d.policies
	guest.Logger = d.config.logger
	guest.Self = d
	guest.Depth = conn.Depth
	if origin, err := policy.ParseOrigin(req.Scheme + "://" + req.URL.Host); err == nil {
		guest.Origin = origin
	}

	cfg := exec.instance(tpl, req)
	cfg.Guest = guest
	ec, err := d.pool.Instantiate(ctx, match.Component, cfg)
	if err != nil {
		out.fail(err)
		return out
	}
	defer func() { _ = ec.Close() }()
	out.advance(StateInstantiated)

	out.advance(StateRunning)
	resp, err := exec.run(ec, req)
	if err != nil {
		out.fail(err)
		return out
	}
	out.advance(StateCompleted)
	out.Status = resp.Status
	out.Response = resp
	return out
}

func (d *Dispatcher) warnNoRoute(ctx context.Context, path string) {
	d.noRoute.Do(func() {
		for _, r := range d.routes.Routes() {
			if r.Pattern.Kind == routing.Wildcard && r.Pattern.Prefix == "" {
				return
			}
		}
		d.config.logger.WarnContext(ctx, "no route matched request; add a catch-all route \"/...\" to serve every path",
			"path", path)
	})
}

func (d *Dispatcher) log(ctx context.Context, logger *slog.Logger, r *http.Request, out *Outcome) {
	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"state", out.State.String(),
		"status", out.Status,
		"duration", out.Metadata.Duration,
	}
	switch out.State {
	case StateTrapped, StateTimedOut:
		logger.ErrorContext(ctx, "guest execution failed", append(attrs, domainerrors.LogAttrs(out.Err)...)...)
	case StateCancelled:
		logger.DebugContext(ctx, "request cancelled", append(attrs, domainerrors.LogAttrs(out.Err)...)...)
	default:
		if out.Err != nil && out.Status >= http.StatusInternalServerError {
			logger.ErrorContext(ctx, "request failed", append(attrs, domainerrors.LogAttrs(out.Err)...)...)
			return
		}
		logger.DebugContext(ctx, "request served", attrs...)
	}
}

// Handler adapts the dispatcher to net/http for connections using scheme.
func (d *Dispatcher) Handler(scheme string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := d.Dispatch(r.Context(), r, ConnInfo{Scheme: scheme})
		if err := out.Write(w); err != nil {
			d.config.logger.DebugContext(r.Context(), "writing response failed",
				"request_id", out.RequestID, "error", err)
		}
	})
}

// DispatchSelf serves a request a guest addressed to its own application
// in-process. depth is the nesting level of the new request.
func (d *Dispatcher) DispatchSelf(ctx context.Context, req *http.Request, depth int) (*http.Response, error) {
	if depth > d.config.maxSelfDepth {
		return nil, fmt.Errorf("%w: %d nested requests", ErrSelfDepthExceeded, depth)
	}

	inbound := req.Clone(ctx)
	inbound.RemoteAddr = "127.0.0.1:0"
	inbound.RequestURI = req.URL.RequestURI()
	if inbound.Body == nil {
		inbound.Body = http.NoBody
	}

	out := d.Dispatch(ctx, inbound, ConnInfo{Scheme: req.URL.Scheme, Depth: depth})
	if out.State == StateCancelled {
		return nil, out.Err
	}

	var resp *normalize.Response
	if out.Response != nil {
		resp = out.Response
	} else {
		resp = out.synthesized()
	}
	header := resp.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(HeaderRequestID, out.RequestID)
	header.Set("Content-Length", strconv.Itoa(len(resp.Body)))

	return &http.Response{
		Status:        strconv.Itoa(resp.Status) + " " + http.StatusText(resp.Status),
		StatusCode:    resp.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(resp.Body)),
		ContentLength: int64(len(resp.Body)),
		Request:       req,
	}, nil
}

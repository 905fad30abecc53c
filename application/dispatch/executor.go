package dispatch

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spinlet-dev/spinlet/application/normalize"
	"github.com/spinlet-dev/spinlet/domain/entities"
	domainerrors "github.com/spinlet-dev/spinlet/domain/errors"
	"github.com/spinlet-dev/spinlet/domain/routing"
	"github.com/spinlet-dev/spinlet/host"
	"github.com/spinlet-dev/spinlet/internal/abi"
)

// ExecutorKind re-exports the executor names used in descriptors.
type ExecutorKind = entities.ExecutorKind

// executor maps a normalized request onto one guest calling convention.
// The set is closed: spin and wagi.
type executor interface {
	// accepts reports whether the executor can express the request.
	accepts(r *http.Request) error
	instance(t *host.Template, req *normalize.Request) host.InstanceConfig
	run(ec *host.ExecutionContext, req *normalize.Request) (*normalize.Response, error)
}

func executorFor(kind ExecutorKind, maxResponse uint32) executor {
	if kind == entities.ExecutorWagi {
		return wagiExecutor{}
	}
	return spinExecutor{maxResponse: maxResponse}
}

// spinExecutor passes the request as JSON to handle_http_request.
type spinExecutor struct {
	maxResponse uint32
}

func (spinExecutor) accepts(r *http.Request) error {
	if !routing.IsStandardMethod(r.Method) {
		return &domainerrors.RequestError{
			Err:  fmt.Errorf("method %q is not supported", r.Method),
			Code: http.StatusMethodNotAllowed,
		}
	}
	return nil
}

func (spinExecutor) instance(*host.Template, *normalize.Request) host.InstanceConfig {
	return host.InstanceConfig{}
}

func (e spinExecutor) run(ec *host.ExecutionContext, req *normalize.Request) (*normalize.Response, error) {
	payload, err := json.Marshal(req.ABI())
	if err != nil {
		return nil, fmt.Errorf("encoding guest request: %w", err)
	}
	ptr, err := ec.WriteBytes(payload)
	if err != nil {
		return nil, err
	}
	results, err := ec.Call(abi.ExportHandle, uint64(ptr), uint64(len(payload)))
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, &domainerrors.TrapError{Component: ec.Component(), Err: fmt.Errorf("%s returned %d values", abi.ExportHandle, len(results))}
	}
	data, err := ec.ReadBytes(results[0], e.maxResponse)
	if err != nil {
		return nil, err
	}
	var resp abi.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &domainerrors.TrapError{Component: ec.Component(), Err: fmt.Errorf("decoding guest response: %w", err)}
	}
	return normalize.FromABI(resp), nil
}

// wagiExecutor runs a WASI command with a CGI environment and parses its
// standard output as a CGI response.
type wagiExecutor struct{}

func (wagiExecutor) accepts(*http.Request) error { return nil }

func (wagiExecutor) instance(t *host.Template, req *normalize.Request) host.InstanceConfig {
	return host.InstanceConfig{
		Env:   normalize.CGIEnv(req),
		Args:  normalize.Argv(t.Wagi().ArgvOrDefault(), req),
		Stdin: req.Body,
	}
}

func (wagiExecutor) run(ec *host.ExecutionContext, _ *normalize.Request) (*normalize.Response, error) {
	entry := ec.Template().Wagi().EntrypointOrDefault()
	if _, err := ec.Call(entry); err != nil {
		return nil, err
	}
	stdout := ec.Stdout()
	if stdout.Truncated {
		return nil, &domainerrors.CGIError{
			Err:  fmt.Errorf("guest output exceeds %d bytes", stdout.Len()),
			Code: http.StatusInternalServerError,
		}
	}
	return normalize.ComposeCGI(stdout.Bytes())
}

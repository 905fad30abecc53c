package wazero

import (
	"context"
	"errors"
	"time"

	domainerrors "github.com/spinlet-dev/spinlet/domain/errors"
	"github.com/tetratelabs/wazero/sys"
)

// ClassifyError maps an error returned by a guest call to the domain error
// taxonomy. A clean proc_exit(0) is success and yields nil.
//
// wazero reports deadline expiry and cancellation as exit errors when the
// runtime closes modules on context done. The context is consulted as well,
// since a host function may observe the expiry first and fail the call.
func ClassifyError(ctx context.Context, component string, budget time.Duration, err error) error {
	if err == nil {
		return nil
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case 0:
			return nil
		case sys.ExitCodeDeadlineExceeded:
			return &domainerrors.TimeoutError{Component: component, Duration: budget}
		case sys.ExitCodeContextCanceled:
			return &domainerrors.CancelledError{Component: component, Err: context.Canceled}
		default:
			return &domainerrors.TrapError{Component: component, ExitCode: exitErr.ExitCode(), Err: err}
		}
	}

	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return &domainerrors.TimeoutError{Component: component, Duration: budget}
	case errors.Is(ctxErr, context.Canceled):
		return &domainerrors.CancelledError{Component: component, Err: ctxErr}
	}
	return &domainerrors.TrapError{Component: component, Err: err}
}

package dispatch

import (
	"errors"
	"net/http"
	"strings"

	"github.com/spinlet-dev/spinlet/application/normalize"
	"github.com/spinlet-dev/spinlet/domain/entities"
	domainerrors "github.com/spinlet-dev/spinlet/domain/errors"
)

// HeaderRequestID carries the request id back to the client.
const HeaderRequestID = "x-request-id"

// Outcome is the result of one dispatch.
type Outcome struct {
	RequestID string
	Component string // empty when no route matched
	State     State
	Status    int
	Response  *normalize.Response // guest response; nil for synthesized statuses
	Err       error
	Trace     []State
	Metadata  *entities.RunMetadata
}

func (o *Outcome) advance(to State) {
	o.State = to
	o.Trace = append(o.Trace, to)
}

// fail moves the outcome to its terminal state for err.
func (o *Outcome) fail(err error) {
	o.Err = err
	var (
		timeout   *domainerrors.TimeoutError
		cancelled *domainerrors.CancelledError
		trap      *domainerrors.TrapError
	)
	switch {
	case errors.As(err, &cancelled):
		o.advance(StateCancelled)
		o.Status = 0
	case errors.As(err, &timeout):
		o.advance(StateTimedOut)
		o.Status = http.StatusInternalServerError
	case errors.As(err, &trap) && o.State == StateRunning:
		o.advance(StateTrapped)
		o.Status = http.StatusInternalServerError
	default:
		o.advance(StateCompleted)
		o.Status = domainerrors.StatusOf(err)
	}
}

// Write sends the outcome to the client. A cancelled request writes nothing.
func (o *Outcome) Write(w http.ResponseWriter) error {
	if o.State == StateCancelled {
		return nil
	}
	resp := o.Response
	if resp == nil {
		resp = o.synthesized()
	}
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	if o.RequestID != "" {
		resp.Header.Set(HeaderRequestID, o.RequestID)
	}
	return resp.Write(w)
}

// synthesized is the platform response for outcomes without guest output.
// Failure detail stays in the logs.
func (o *Outcome) synthesized() *normalize.Response {
	resp := &normalize.Response{Status: o.Status, Header: http.Header{}}
	switch {
	case o.Status == http.StatusNotFound:
	case o.Status >= http.StatusInternalServerError:
		resp.Status = http.StatusInternalServerError
		if o.Status == http.StatusBadGateway {
			resp.Status = http.StatusBadGateway
		}
		resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
		resp.Body = []byte(http.StatusText(resp.Status))
	default:
		if o.Status == http.StatusMethodNotAllowed {
			resp.Header.Set("Allow", strings.Join(allowedMethods, ", "))
		}
		resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
		resp.Body = []byte(http.StatusText(o.Status))
	}
	return resp
}

var allowedMethods = []string{
	http.MethodDelete, http.MethodGet, http.MethodHead, http.MethodOptions,
	http.MethodPatch, http.MethodPost, http.MethodPut,
}

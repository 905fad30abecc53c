package normalize

import (
	"net/http"
	"strconv"

	"github.com/spinlet-dev/spinlet/internal/abi"
)

// Response is guest output ready to be written to the client.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// FromABI converts a spin guest response. A status outside 100..599 is
// replaced by 500.
func FromABI(r abi.Response) *Response {
	status := r.Status
	if status < 100 || status > 599 {
		status = http.StatusInternalServerError
	}
	return &Response{Status: status, Header: r.Headers.ToHTTP(), Body: r.Body}
}

// Write sends the response. Connection-scoped headers set by the guest are
// dropped and Content-Length is recomputed.
func (r *Response) Write(w http.ResponseWriter) error {
	h := w.Header()
	for name, values := range r.Header {
		h[name] = append(h[name], values...)
	}
	StripHopByHop(h)
	h.Del("Content-Length")
	h.Set("Content-Length", strconv.Itoa(len(r.Body)))
	w.WriteHeader(r.Status)
	if len(r.Body) == 0 {
		return nil
	}
	_, err := w.Write(r.Body)
	return err
}

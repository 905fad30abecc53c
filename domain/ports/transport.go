package ports

import "net/http"

// Transport performs outbound HTTP requests on behalf of guests.
// It is only reached after the egress policy allowed the destination.
type Transport interface {
	RoundTrip(req *http.Request) (*http.Response, error)
}

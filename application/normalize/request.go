package normalize

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	domainerrors "github.com/spinlet-dev/spinlet/domain/errors"
	"github.com/spinlet-dev/spinlet/domain/routing"
	"github.com/spinlet-dev/spinlet/hostfuncs"
	"github.com/spinlet-dev/spinlet/internal/abi"
)

// DefaultMaxBody caps inbound request bodies (10 MiB).
const DefaultMaxBody = 10 << 20

// Request is a transport request prepared for a guest.
type Request struct {
	Method     string
	URL        *url.URL    // absolute
	Header     http.Header // client headers with synthetic values applied
	Body       []byte
	ClientAddr string
	Scheme     string
	Proto      string
	Synthetic  Synthetic
}

// Option configures FromHTTP.
type Option func(*config)

type config struct {
	scheme  string
	maxBody int64
}

// WithScheme sets the scheme the listener serves. By default it is derived
// from the connection.
func WithScheme(scheme string) Option {
	return func(c *config) {
		c.scheme = strings.ToLower(scheme)
	}
}

// WithMaxBody caps the request body. Larger bodies are a 413.
func WithMaxBody(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// FromHTTP reads r fully and rebuilds it as the guest will see it.
func FromHTTP(r *http.Request, match routing.Match, opts ...Option) (*Request, error) {
	cfg := config{maxBody: DefaultMaxBody}
	for _, opt := range opts {
		opt(&cfg)
	}
	scheme := cfg.scheme
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}

	authority, err := authorityOf(r)
	if err != nil {
		return nil, err
	}

	if r.ContentLength > cfg.maxBody {
		return nil, tooLarge(cfg.maxBody)
	}
	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		data, truncated, err := hostfuncs.ReadBounded(r.Body, cfg.maxBody)
		if err != nil {
			return nil, &domainerrors.RequestError{Err: fmt.Errorf("reading body: %w", err)}
		}
		if truncated {
			return nil, tooLarge(cfg.maxBody)
		}
		body = data
	}

	full := &url.URL{
		Scheme:   scheme,
		Host:     authority,
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	}

	header := r.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	StripHopByHop(header)
	header.Set("Host", authority)

	syn := NewSynthetic(full.String(), r.RemoteAddr, match)
	syn.Apply(header)

	return &Request{
		Method:     r.Method,
		URL:        full,
		Header:     header,
		Body:       body,
		ClientAddr: r.RemoteAddr,
		Scheme:     scheme,
		Proto:      r.Proto,
		Synthetic:  syn,
	}, nil
}

// authorityOf returns the request authority. An absolute request URI and a
// Host header that disagree are rejected.
func authorityOf(r *http.Request) (string, error) {
	host := r.Header.Get("Host")
	if r.URL.Host != "" {
		if host != "" && !strings.EqualFold(host, r.URL.Host) {
			return "", &domainerrors.RequestError{
				Err:  fmt.Errorf("host header %q does not match request authority %q", host, r.URL.Host),
				Code: http.StatusBadRequest,
			}
		}
		return r.URL.Host, nil
	}
	if host != "" {
		return host, nil
	}
	if r.Host != "" {
		return r.Host, nil
	}
	return "localhost", nil
}

func tooLarge(limit int64) error {
	return &domainerrors.RequestError{
		Err:  fmt.Errorf("request body exceeds %d bytes", limit),
		Code: http.StatusRequestEntityTooLarge,
	}
}

// PathAndQuery returns the origin-form request target.
func (r *Request) PathAndQuery() string {
	return r.URL.RequestURI()
}

// ABI renders the request in the spin guest format.
func (r *Request) ABI() abi.Request {
	return abi.Request{
		Method:  r.Method,
		URI:     r.PathAndQuery(),
		Headers: abi.FromHTTP(r.Header),
		Body:    r.Body,
	}
}

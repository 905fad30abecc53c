package hostfuncs

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	domainerrors "github.com/spinlet-dev/spinlet/domain/errors"
	"github.com/spinlet-dev/spinlet/domain/ports"
	"github.com/spinlet-dev/spinlet/internal/abi"
)

// OutboundRequest is the outbound_http payload.
type OutboundRequest struct {
	Method  string      `json:"method"`
	URI     string      `json:"uri"`
	Headers abi.Headers `json:"headers,omitempty"`
	Body    []byte      `json:"body,omitempty"`
}

// OutboundResponse is returned to the guest. Exactly one of Status or Error is set.
type OutboundResponse struct {
	Error   *GuestError `json:"error,omitempty"`
	Headers abi.Headers `json:"headers,omitempty"`
	Body    []byte      `json:"body,omitempty"`
	Status  int         `json:"status,omitempty"`
}

// HTTPOption is a functional option for configuring outbound HTTP behavior.
type HTTPOption func(*httpConfig)

type httpConfig struct {
	transport   ports.Transport
	timeout     time.Duration
	maxBodySize int64
}

func defaultHTTPConfig() httpConfig {
	return httpConfig{
		timeout:     30 * time.Second,
		maxBodySize: DefaultMaxOutputSize,
	}
}

// WithHTTPTransport sets the transport used for non-self destinations.
func WithHTTPTransport(t ports.Transport) HTTPOption {
	return func(c *httpConfig) {
		if t != nil {
			c.transport = t
		}
	}
}

// WithHTTPRequestTimeout bounds a single outbound request. The execution
// deadline still applies when it is shorter.
func WithHTTPRequestTimeout(d time.Duration) HTTPOption {
	return func(c *httpConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPMaxBodySize sets the maximum response body size.
func WithHTTPMaxBodySize(size int64) HTTPOption {
	return func(c *httpConfig) {
		if size > 0 {
			c.maxBodySize = size
		}
	}
}

// Outbound implements the outbound_http host function.
type Outbound struct {
	client *http.Client
	config httpConfig
}

// NewOutbound creates the outbound_http implementation.
func NewOutbound(opts ...HTTPOption) *Outbound {
	cfg := defaultHTTPConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.transport == nil {
		cfg.transport = NewTransport()
	}

	return &Outbound{
		config: cfg,
		client: &http.Client{
			Transport: cfg.transport,
			// Redirects go back to the guest so every hop passes the allow-list.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Handle checks the destination against the guest's allow-list and performs
// the request. A denied destination never reaches the transport.
func (o *Outbound) Handle(ctx context.Context, req OutboundRequest) OutboundResponse {
	g, ok := GuestFrom(ctx)
	if !ok {
		return OutboundResponse{Error: NewGuestError(CodeRuntimeError, "no execution bound to this call")}
	}
	if g.Policy == nil {
		return OutboundResponse{Error: NewGuestError(CodeDestinationNotAllowed, "component %q has no allowed outbound hosts", g.Component)}
	}

	d := g.Policy.Check(ctx, g.Component, req.URI, g.Origin)
	if d.Err != nil {
		return OutboundResponse{Error: NewGuestError(CodeInvalidURL, "%v", d.Err)}
	}
	if !d.Allowed {
		return OutboundResponse{Error: GuestErrorFrom(&domainerrors.EgressDeniedError{
			Component: g.Component,
			URL:       d.Target.URL.Redacted(),
			Hint:      d.Hint(),
		})}
	}
	if !g.TakeOutbound() {
		return OutboundResponse{Error: NewGuestError(CodeTooManyRequests, "component %q exhausted its budget of %d outbound requests", g.Component, g.budget)}
	}

	ctx, cancel := context.WithTimeout(ctx, o.config.timeout)
	defer cancel()

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, d.Target.URL.String(), body)
	if err != nil {
		return OutboundResponse{Error: NewGuestError(CodeRequestError, "%v", err)}
	}
	httpReq.Header = req.Headers.ToHTTP()
	if host := httpReq.Header.Get("Host"); host != "" {
		httpReq.Host = host
		httpReq.Header.Del("Host")
	}

	var resp *http.Response
	if g.Self != nil && g.IsSelf(d.Target) {
		resp, err = g.Self.DispatchSelf(ctx, httpReq, g.Depth+1)
	} else {
		resp, err = o.client.Do(httpReq)
	}
	if err != nil {
		g.Log().DebugContext(ctx, "outbound request failed", "url", d.Target.URL.Redacted(), "error", err)
		return OutboundResponse{Error: NewGuestError(CodeRequestError, "%v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	data, truncated, err := ReadBounded(resp.Body, o.config.maxBodySize)
	if err != nil {
		return OutboundResponse{Error: NewGuestError(CodeRequestError, "reading response body: %v", err)}
	}
	if truncated {
		return OutboundResponse{Error: NewGuestError(CodeRequestError, "response body exceeds %d bytes", o.config.maxBodySize)}
	}

	return OutboundResponse{
		Status:  resp.StatusCode,
		Headers: abi.FromHTTP(resp.Header),
		Body:    data,
	}
}

// NewTransport returns the default outbound transport.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// guardedTransport prevents DNS rebinding attacks by resolving the host once,
// validating every address, and dialing the validated address directly.
type guardedTransport struct {
	base *http.Transport
	opts []NetfilterOption
}

// NewGuardedTransport wraps base so that private, loopback and link-local
// destinations are refused even when the allow-list admits them.
func NewGuardedTransport(base *http.Transport, opts ...NetfilterOption) ports.Transport {
	if base == nil {
		base = NewTransport()
	}
	return &guardedTransport{base: base, opts: opts}
}

// ErrBlockedAddress is returned when the private network guard refuses a destination.
var ErrBlockedAddress = errors.New("destination address blocked")

func (t *guardedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	hostname := req.URL.Hostname()
	result := ValidateAddress(req.Context(), hostname, t.opts...)
	if !result.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrBlockedAddress, result.Reason)
	}

	resolvedIP := result.ResolvedIP
	if resolvedIP == "" {
		resolvedIP = hostname
	}
	port := req.URL.Port()
	if port == "" {
		port = "80"
		if req.URL.Scheme == "https" {
			port = "443"
		}
	}

	pinned := t.base.Clone()
	pinned.Proxy = nil
	pinned.DialContext = func(ctx context.Context, network, _ string) (net.Conn, error) {
		return (&net.Dialer{}).DialContext(ctx, network, net.JoinHostPort(resolvedIP, port))
	}
	if req.URL.Scheme == "https" {
		if pinned.TLSClientConfig == nil {
			pinned.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		pinned.TLSClientConfig.ServerName = hostname
	}
	defer pinned.CloseIdleConnections()

	return pinned.RoundTrip(req)
}

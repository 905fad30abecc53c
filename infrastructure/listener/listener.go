// Package listener accepts HTTP connections for an application and hands
// every request outside /.well-known/spin/ to the application handler.
package listener

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	domainerrors "github.com/spinlet-dev/spinlet/domain/errors"
	"github.com/spinlet-dev/spinlet/domain/ports"
)

// WellKnownPrefix is reserved for platform endpoints.
const WellKnownPrefix = "/.well-known/spin"

// Defaults applied to a zero Config.
const (
	DefaultAddr              = "127.0.0.1:3000"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
)

// Config holds the listener settings.
type Config struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return c
}

// RouteInfo describes one route in the info document.
type RouteInfo struct {
	Route     string `json:"route"`
	Component string `json:"component"`
	Method    string `json:"method,omitempty"`
}

// Info is served at /.well-known/spin/info.
type Info struct {
	Name        string      `json:"name"`
	Version     string      `json:"version,omitempty"`
	Description string      `json:"description,omitempty"`
	Routes      []RouteInfo `json:"routes"`
}

type listenerConfig struct {
	logger *slog.Logger
	tls    ports.TLSProvider
	info   Info
}

// Option configures a Listener.
type Option func(*listenerConfig)

// WithLogger sets the logger for lifecycle and server errors.
func WithLogger(l *slog.Logger) Option {
	return func(c *listenerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTLS terminates TLS with material from p.
func WithTLS(p ports.TLSProvider) Option {
	return func(c *listenerConfig) {
		c.tls = p
	}
}

// WithInfo sets the application info document.
func WithInfo(info Info) Option {
	return func(c *listenerConfig) {
		c.info = info
	}
}

// Listener serves one application.
type Listener struct {
	config  Config
	options listenerConfig
	server  *http.Server
	tls     *tls.Config // nil for plain HTTP; server.TLSConfig is mutated by Serve

	mu sync.Mutex
	ln net.Listener
}

// New validates the TLS material and builds the router. Invalid material is
// a ConfigError.
func New(cfg Config, app http.Handler, opts ...Option) (*Listener, error) {
	o := listenerConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	cfg = cfg.withDefaults()

	l := &Listener{config: cfg, options: o}
	l.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           l.router(app),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(o.logger.Handler(), slog.LevelDebug),
	}

	if o.tls != nil {
		tlsConfig, err := loadTLS(o.tls)
		if err != nil {
			return nil, &domainerrors.ConfigError{Field: "tls", Err: err}
		}
		l.tls = tlsConfig
	}
	return l, nil
}

func loadTLS(p ports.TLSProvider) (*tls.Config, error) {
	certPEM, err := p.CertificatePEM()
	if err != nil {
		return nil, err
	}
	keyPEM, err := p.PrivateKeyPEM()
	if err != nil {
		return nil, err
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("invalid certificate or key: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"h2", "http/1.1"},
	}, nil
}

func (l *Listener) router(app http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route(WellKnownPrefix, func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("OK"))
		})
		r.Get("/info", l.serveInfo)
		r.NotFound(http.NotFound)
		r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusMethodNotAllowed)
		})
	})

	r.Handle("/*", app)
	// chi rejects methods it does not know; those belong to the application.
	r.MethodNotAllowed(app.ServeHTTP)
	return r
}

func (l *Listener) serveInfo(w http.ResponseWriter, r *http.Request) {
	info := l.options.info
	if info.Routes == nil {
		info.Routes = []RouteInfo{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		l.options.logger.DebugContext(r.Context(), "writing info document failed", "error", err)
	}
}

// Handler returns the root handler, for tests and embedding.
func (l *Listener) Handler() http.Handler {
	return l.server.Handler
}

// Scheme returns "https" when TLS is configured.
func (l *Listener) Scheme() string {
	if l.tls != nil {
		return "https"
	}
	return "http"
}

// Bind opens the listening socket. Calling it before Serve surfaces address
// errors at startup.
func (l *Listener) Bind() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", l.config.Addr)
	if err != nil {
		return &domainerrors.ConfigError{Field: "listen", Err: err}
	}
	if l.tls != nil {
		ln = tls.NewListener(ln, l.tls)
	}
	l.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Bind.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Serve binds if needed and serves until ctx is done, then drains in-flight
// requests for at most the shutdown timeout.
func (l *Listener) Serve(ctx context.Context) error {
	if err := l.Bind(); err != nil {
		return err
	}
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- l.server.Serve(ln)
	}()
	l.options.logger.InfoContext(ctx, "serving", "addr", ln.Addr().String(), "scheme", l.Scheme())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), l.config.ShutdownTimeout)
	defer cancel()
	l.options.logger.InfoContext(ctx, "shutting down", "timeout", l.config.ShutdownTimeout)
	if err := l.server.Shutdown(shutdownCtx); err != nil {
		_ = l.server.Close()
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

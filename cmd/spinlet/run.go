package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/tetratelabs/wazero"

	"github.com/spinlet-dev/spinlet/application/dispatch"
	"github.com/spinlet-dev/spinlet/application/schema"
	"github.com/spinlet-dev/spinlet/config"
	"github.com/spinlet-dev/spinlet/domain/entities"
	domainerrors "github.com/spinlet-dev/spinlet/domain/errors"
	"github.com/spinlet-dev/spinlet/domain/policy"
	"github.com/spinlet-dev/spinlet/domain/ports"
	"github.com/spinlet-dev/spinlet/domain/routing"
	"github.com/spinlet-dev/spinlet/host"
	"github.com/spinlet-dev/spinlet/hostfuncs"
	"github.com/spinlet-dev/spinlet/infrastructure/kvstore"
	"github.com/spinlet-dev/spinlet/infrastructure/listener"
	"github.com/spinlet-dev/spinlet/infrastructure/tlsfiles"
	"github.com/spinlet-dev/spinlet/log"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"listen":    "listen",
	"app":       "app",
	"tls-cert":  "tls.cert",
	"tls-key":   "tls.key",
	"log-level": "log.level",
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "schema" {
		return printSchema(stdout, stderr)
	}

	fs := flag.NewFlagSet("spinlet", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to the runtime configuration file")
	fs.String("listen", "", "address to listen on (default 127.0.0.1:3000)")
	fs.String("app", "", "path to the application descriptor (default spin.yaml)")
	fs.String("tls-cert", "", "PEM certificate chain; enables TLS together with --tls-key")
	fs.String("tls-key", "", "PEM private key")
	fs.String("log-level", "", "log level: debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	overrides := map[string]any{}
	fs.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			overrides[key] = f.Value.String()
		}
	})

	cfg, err := config.Load(*configPath, overrides)
	if err != nil {
		fmt.Fprintf(stderr, "spinlet: %v\n", err)
		return exitError
	}
	logOpts, err := cfg.LoggerOptions()
	if err != nil {
		fmt.Fprintf(stderr, "spinlet: %v\n", err)
		return exitError
	}
	logger := log.NewLogger(append(logOpts, log.WithWriter(stderr))...)
	slog.SetDefault(logger)

	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		logger.ErrorContext(ctx, "startup failed", domainerrors.LogAttrs(err)...)
		return exitError
	}
	defer srv.close(context.Background())

	if err := srv.listener.Bind(); err != nil {
		logger.ErrorContext(ctx, "startup failed", domainerrors.LogAttrs(err)...)
		return exitError
	}
	printBanner(stdout, srv.app, srv.routes, srv.listener)

	if err := srv.listener.Serve(ctx); err != nil {
		logger.ErrorContext(ctx, "server stopped", "error", err)
		return exitError
	}
	return exitOK
}

func printSchema(stdout, stderr io.Writer) int {
	raw, err := schema.DescriptorSchema()
	if err != nil {
		fmt.Fprintf(stderr, "spinlet: %v\n", err)
		return exitError
	}
	_, _ = stdout.Write(append(raw, '\n'))
	return exitOK
}

// server is the composed application.
type server struct {
	app      *entities.App
	routes   *routing.Table
	stores   *kvstore.Registry
	pool     *host.Pool
	listener *listener.Listener
}

func newServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server, error) {
	loader, err := host.NewLoader(host.WithStrictTemplates(cfg.StrictVariables))
	if err != nil {
		return nil, err
	}
	app, err := loader.LoadFile(cfg.App, cfg.Variables)
	if err != nil {
		return nil, err
	}

	routes, policies, err := buildTables(app, logger)
	if err != nil {
		return nil, err
	}

	s := &server{app: app, routes: routes}
	s.stores, err = kvstore.Open(ctx, cfg.Stores())
	if err != nil {
		return nil, err
	}

	var transport ports.Transport = hostfuncs.NewTransport()
	if cfg.BlockPrivateNetworks {
		transport = hostfuncs.NewGuardedTransport(hostfuncs.NewTransport(), hostfuncs.WithBlockPrivate(true))
	}
	outbound := hostfuncs.NewOutbound(
		hostfuncs.WithHTTPTransport(transport),
		hostfuncs.WithHTTPRequestTimeout(cfg.OutboundTimeout),
	)
	registry, err := hostfuncs.NewRegistry(
		hostfuncs.WithMiddleware(hostfuncs.PanicRecoveryMiddleware(), hostfuncs.LoggingMiddleware(logger)),
		hostfuncs.WithBundle(hostfuncs.SpinBundle(outbound)),
	)
	if err != nil {
		s.close(ctx)
		return nil, err
	}

	s.pool = host.NewPool(ctx, host.NewFileProvider(app),
		host.WithLogger(logger),
		host.WithHostFunctions(registry),
		host.WithKeyValueStores(s.stores),
		host.WithCompilationCache(wazero.NewCompilationCache()),
	)
	if err := s.pool.PrepareAll(ctx, app); err != nil {
		s.close(ctx)
		return nil, err
	}

	d := dispatch.New(routes, policies, s.pool,
		dispatch.WithLogger(logger),
		dispatch.WithMaxRequestBody(cfg.MaxRequestBody),
		dispatch.WithMaxSelfDepth(cfg.MaxSelfRequestDepth),
	)

	scheme := "http"
	opts := []listener.Option{listener.WithLogger(logger), listener.WithInfo(appInfo(app, routes))}
	if cfg.TLS.Enabled() {
		scheme = "https"
		opts = append(opts, listener.WithTLS(tlsfiles.New(cfg.TLS.Cert, cfg.TLS.Key)))
	}
	s.listener, err = listener.New(listener.Config{
		Addr:              cfg.Listen,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.ShutdownTimeout,
	}, d.Handler(scheme), opts...)
	if err != nil {
		s.close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *server) close(ctx context.Context) {
	if s.pool != nil {
		_ = s.pool.Close(ctx)
	}
	if s.stores != nil {
		_ = s.stores.Close()
	}
}

// buildTables derives the immutable route and egress tables from app.
func buildTables(app *entities.App, logger *slog.Logger) (*routing.Table, *policy.Table, error) {
	entries := make([]routing.Entry, 0, len(app.Components))
	hosts := make(map[string]policy.ComponentHosts, len(app.Components))
	for _, c := range app.Components {
		entries = append(entries, routing.Entry{Component: c.ID, Route: c.Route, Method: c.Method})
		hosts[c.ID] = policy.ComponentHosts{Outbound: c.AllowedOutboundHosts, Legacy: c.AllowedHTTPHosts}
	}
	routes, err := routing.NewTable(app.BasePath(), entries)
	if err != nil {
		return nil, nil, err
	}
	policies, err := policy.NewTable(hosts, policy.WithDenialHandler(&policy.LogDenialHandler{Logger: logger}))
	if err != nil {
		return nil, nil, err
	}
	return routes, policies, nil
}

func appInfo(app *entities.App, routes *routing.Table) listener.Info {
	info := listener.Info{Name: app.Name, Version: app.Version, Description: app.Description}
	for _, r := range routes.Routes() {
		info.Routes = append(info.Routes, listener.RouteInfo{
			Route:     r.Pattern.String(),
			Component: r.Component,
			Method:    r.Method,
		})
	}
	return info
}

// healthURL is where the banner points operators.
func healthURL(l *listener.Listener) string {
	return fmt.Sprintf("%s://%s%s/health", l.Scheme(), l.Addr(), listener.WellKnownPrefix)
}

// Package http provides the inbound HTTP transport: the JSON-RPC endpoint,
// metrics, health, and the diagnostics surface.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/contextify/contextify/internal/domain/auth"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// Transport is the inbound HTTP server hosting the MCP endpoint.
type Transport struct {
	dispatcher  *Dispatcher
	diagnostics *Diagnostics
	verifier    *auth.Verifier

	server          *http.Server
	addr            string
	mcpPath         string
	diagnosticsPath string
	logger          *slog.Logger
	registry        *prometheus.Registry
	metrics         *Metrics
}

// Option is a functional option for configuring the Transport.
type Option func(*Transport)

// WithAddr sets the listen address. Default is "127.0.0.1:8080".
func WithAddr(addr string) Option {
	return func(t *Transport) {
		t.addr = addr
	}
}

// WithMCPPath sets the JSON-RPC endpoint path. Default is "/mcp".
func WithMCPPath(path string) Option {
	return func(t *Transport) {
		if path != "" {
			t.mcpPath = path
		}
	}
}

// WithDiagnosticsPath sets the diagnostics path. Default is "/diagnostics".
func WithDiagnosticsPath(path string) Option {
	return func(t *Transport) {
		if path != "" {
			t.diagnosticsPath = path
		}
	}
}

// WithLogger sets the transport logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithVerifier installs API key authentication for the MCP endpoint.
func WithVerifier(v *auth.Verifier) Option {
	return func(t *Transport) {
		t.verifier = v
	}
}

// NewTransport creates the HTTP transport around a dispatcher and its
// diagnostics surface.
func NewTransport(dispatcher *Dispatcher, diagnostics *Diagnostics, opts ...Option) *Transport {
	t := &Transport{
		dispatcher:      dispatcher,
		diagnostics:     diagnostics,
		verifier:        auth.NewVerifier(nil),
		addr:            "127.0.0.1:8080",
		mcpPath:         "/mcp",
		diagnosticsPath: "/diagnostics",
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Metrics returns the metrics set once Start has built it, or nil.
func (t *Transport) Metrics() *Metrics {
	return t.metrics
}

// Start begins accepting connections. It blocks until the context is
// cancelled or the server fails.
func (t *Transport) Start(ctx context.Context) error {
	t.registry = prometheus.NewRegistry()
	t.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	t.metrics = NewMetrics(t.registry)
	t.dispatcher.metrics = t.metrics

	// Middleware order (outermost first): request id, then auth, then the
	// JSON-RPC dispatcher.
	var mcpHandler http.Handler = t.dispatcher
	mcpHandler = APIKeyMiddleware(t.verifier, t.logger)(mcpHandler)
	mcpHandler = RequestIDMiddleware(t.logger)(mcpHandler)

	mux := http.NewServeMux()
	mux.Handle(t.mcpPath, mcpHandler)
	mux.Handle("/healthz", t.diagnostics.LivenessHandler())
	mux.Handle("/health", t.diagnostics.HealthHandler())
	mux.Handle(t.diagnosticsPath, t.diagnostics.DiagnosticsHandler())
	mux.Handle(WellKnownManifestPath, t.diagnostics.ManifestHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{
		Registry: t.registry,
	}))

	t.server = &http.Server{
		Addr:    t.addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("starting HTTP server", "addr", t.addr, "mcp_path", t.mcpPath)
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown drains in-flight requests before closing the listener.
func (t *Transport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}
	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *Transport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}

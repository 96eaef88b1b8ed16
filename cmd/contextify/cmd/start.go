package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	inhttp "github.com/contextify/contextify/internal/adapter/inbound/http"
	"github.com/contextify/contextify/internal/adapter/outbound/cel"
	"github.com/contextify/contextify/internal/adapter/outbound/file"
	mcpclient "github.com/contextify/contextify/internal/adapter/outbound/mcp"
	"github.com/contextify/contextify/internal/adapter/outbound/memory"
	"github.com/contextify/contextify/internal/adapter/outbound/sqlite"
	"github.com/contextify/contextify/internal/config"
	"github.com/contextify/contextify/internal/domain/auth"
	"github.com/contextify/contextify/internal/domain/gateway"
	"github.com/contextify/contextify/internal/domain/policy"
	"github.com/contextify/contextify/internal/domain/redact"
	"github.com/contextify/contextify/internal/obs"
	"github.com/contextify/contextify/internal/port/outbound"
	"github.com/contextify/contextify/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway server",
	Long: `Start the contextify gateway server.

The server compiles the local tool catalog from the configured policy and
endpoints documents, aggregates the configured upstream MCP servers, and
serves the unified catalog on the MCP endpoint.

Examples:
  # Start with config file settings
  contextify start

  # Start with a specific config file
  contextify --config /path/to/config.yaml start`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// stop() restores default signal handling so a second Ctrl+C hard-kills.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}
	for _, warning := range cfg.Warnings() {
		logger.Warn(warning)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}
	logger.Info("contextify stopped")
	return nil
}

// run wires all components and blocks until the context ends.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTracing, err := obs.SetupTracing(ctx, cfg.Observability.TraceStdout, Version)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("trace pipeline shutdown failed", "error", err)
		}
	}()

	// Policy pipeline: config provider, CEL conditions, resolver, compiler.
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return fmt.Errorf("create condition evaluator: %w", err)
	}
	resolver := policy.NewResolver(policy.WithConditionEvaluator(evaluator))
	compiler := service.NewCatalogCompiler(resolver, logger)

	var provider outbound.PolicyConfigProvider
	if cfg.Policy.Source != "" {
		provider = file.NewProvider(cfg.Policy.Source)
	} else {
		logger.Info("no policy source configured, all endpoints resolve via default")
		provider = memory.NewStaticProvider(&policy.PolicyConfig{SchemaVersion: 1})
	}
	source := file.NewEndpointSource(cfg.Policy.EndpointsSource)

	snapshots := service.NewSnapshotProvider(provider, source, compiler, logger,
		service.WithMinReloadInterval(cfg.MinReloadInterval()))

	// Gateway: registry, seeded upstreams, filter, aggregator.
	registry, closeRegistry, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRegistry()

	if err := seedUpstreams(ctx, registry, cfg, logger); err != nil {
		return err
	}

	filter, err := gateway.NewFilter(cfg.Gateway.DenyByDefault,
		cfg.Gateway.AllowedToolPatterns, cfg.Gateway.DeniedToolPatterns)
	if err != nil {
		return fmt.Errorf("invalid gateway tool filter: %w", err)
	}

	aggregator := service.NewAggregator(registry, mcpclient.NewClient(), logger,
		service.WithToolNameSeparator(cfg.Gateway.ToolNameSeparator),
		service.WithRefreshInterval(cfg.CatalogRefreshInterval()),
		service.WithFilter(filter))

	// Execution: redaction, local executor, API key verification.
	redactor := redact.New(cfg.Redaction.Enabled, cfg.Redaction.FieldNames, cfg.Redaction.Patterns)

	executor := service.NewExecutor(cfg.Executor.LocalBaseURL, logger,
		service.WithDefaultTimeout(cfg.ExecutorDefaultTimeout()),
		service.WithMaxRequestContentLength(cfg.Executor.MaxRequestContentLengthBytes),
		service.WithRedactor(redactor))

	keys := make([]auth.APIKey, 0, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		keys = append(keys, auth.APIKey{Name: k.Name, Hash: k.Hash})
	}
	verifier := auth.NewVerifier(keys)

	// Initial snapshots. Failures are not fatal; the snapshots rebuild on
	// the refresh cycle and the server serves what it has.
	if err := snapshots.Reload(ctx); err != nil {
		logger.Warn("initial catalog compile failed, starting with empty catalog", "error", err)
	}
	if err := aggregator.BuildSnapshot(ctx); err != nil {
		logger.Warn("initial gateway aggregation failed, starting with empty gateway", "error", err)
	}

	go refreshLoop(ctx, cfg.CatalogRefreshInterval(), snapshots, aggregator)

	dispatcher := inhttp.NewDispatcher(snapshots, aggregator, executor, redactor, nil, logger, Version)
	diagnostics := inhttp.NewDiagnostics(snapshots, aggregator, logger, Version, cfg.Server.MCPPath)

	transport := inhttp.NewTransport(dispatcher, diagnostics,
		inhttp.WithAddr(cfg.Server.HTTPAddr),
		inhttp.WithMCPPath(cfg.Server.MCPPath),
		inhttp.WithDiagnosticsPath(cfg.Server.DiagnosticsPath),
		inhttp.WithLogger(logger),
		inhttp.WithVerifier(verifier))

	return transport.Start(ctx)
}

// buildRegistry creates the configured upstream registry backend.
func buildRegistry(ctx context.Context, cfg *config.Config) (gateway.Registry, func(), error) {
	switch cfg.Gateway.Registry.Backend {
	case "sqlite":
		reg, err := sqlite.New(ctx, cfg.Gateway.Registry.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite registry: %w", err)
		}
		return reg, func() { _ = reg.Close() }, nil
	default:
		return memory.NewRegistry(), func() {}, nil
	}
}

// seedUpstreams adds the config-declared upstreams to the registry.
// Upstreams already present by name are left untouched, so a persistent
// registry wins over stale config.
func seedUpstreams(ctx context.Context, registry gateway.Registry, cfg *config.Config, logger *slog.Logger) error {
	existing, err := registry.List(ctx)
	if err != nil {
		return fmt.Errorf("list upstreams: %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, u := range existing {
		known[u.Name] = struct{}{}
	}

	for _, uc := range cfg.Gateway.Upstreams {
		if _, ok := known[uc.Name]; ok {
			continue
		}
		timeout, _ := time.ParseDuration(uc.RequestTimeout)
		u := gateway.Upstream{
			Name:            uc.Name,
			NamespacePrefix: uc.NamespacePrefix,
			Endpoint:        uc.Endpoint,
			Enabled:         uc.IsEnabled(),
			RequestTimeout:  timeout,
			DefaultHeaders:  uc.DefaultHeaders,
		}
		if err := registry.Add(ctx, &u); err != nil {
			return fmt.Errorf("seed upstream %q: %w", uc.Name, err)
		}
		logger.Info("seeded upstream", "name", u.Name, "prefix", u.NamespacePrefix, "enabled", u.Enabled)
	}
	return nil
}

// refreshLoop drives periodic snapshot freshness in addition to the
// on-demand EnsureFresh done per tools/list.
func refreshLoop(ctx context.Context, interval time.Duration, snapshots *service.SnapshotProvider, aggregator *service.Aggregator) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshots.EnsureFresh(ctx)
			aggregator.EnsureFresh(ctx)
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/contextify/contextify/internal/adapter/outbound/mcp"
	"github.com/contextify/contextify/internal/domain/gateway"
)

// DefaultCatalogRefreshInterval is how often the aggregator rebuilds its
// snapshot when EnsureFresh drives it.
const DefaultCatalogRefreshInterval = 5 * time.Minute

// Aggregator builds and owns the aggregated gateway snapshot: the union of
// tool catalogs advertised by all enabled upstreams, namespaced and filtered.
// A failing upstream contributes a status entry but no tools; the rest of the
// snapshot still builds.
type Aggregator struct {
	registry  gateway.Registry
	client    *mcp.Client
	filter    *gateway.Filter
	separator string
	logger    *slog.Logger

	refreshInterval time.Duration

	current atomic.Pointer[gateway.Snapshot]

	buildMu      sync.Mutex
	lastBuildUTC time.Time
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithToolNameSeparator overrides the namespace separator (default ".").
func WithToolNameSeparator(sep string) AggregatorOption {
	return func(a *Aggregator) {
		if sep != "" {
			a.separator = sep
		}
	}
}

// WithRefreshInterval overrides the snapshot refresh interval.
func WithRefreshInterval(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.refreshInterval = d
		}
	}
}

// WithFilter installs the gateway-level allow/deny tool filter.
func WithFilter(f *gateway.Filter) AggregatorOption {
	return func(a *Aggregator) {
		a.filter = f
	}
}

// NewAggregator creates an aggregator that starts with an empty snapshot.
func NewAggregator(registry gateway.Registry, client *mcp.Client, logger *slog.Logger, opts ...AggregatorOption) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{
		registry:        registry,
		client:          client,
		separator:       ".",
		logger:          logger,
		refreshInterval: DefaultCatalogRefreshInterval,
	}
	a.current.Store(gateway.EmptySnapshot())
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetSnapshot returns the currently published gateway snapshot. Never nil.
func (a *Aggregator) GetSnapshot() *gateway.Snapshot {
	return a.current.Load()
}

// EnsureFresh rebuilds the snapshot when the refresh interval has elapsed.
// Build errors are logged and the old snapshot stays published.
func (a *Aggregator) EnsureFresh(ctx context.Context) {
	a.buildMu.Lock()
	stale := time.Since(a.lastBuildUTC) >= a.refreshInterval
	a.buildMu.Unlock()
	if !stale {
		return
	}
	if err := a.BuildSnapshot(ctx); err != nil {
		a.logger.Warn("gateway snapshot rebuild failed, keeping current snapshot", "error", err)
	}
}

// BuildSnapshot queries every enabled upstream's tools/list in parallel,
// namespaces and filters the results, and publishes the new snapshot
// atomically. The registry's upstream list itself failing is the only error;
// individual upstream failures only mark that upstream unhealthy.
func (a *Aggregator) BuildSnapshot(ctx context.Context) error {
	a.buildMu.Lock()
	defer a.buildMu.Unlock()

	upstreams, err := a.registry.List(ctx)
	if err != nil {
		return err
	}

	var (
		mu       sync.Mutex
		tools    = make(map[string]*gateway.AggregatedTool)
		statuses = make(map[string]gateway.UpstreamStatus)
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := range upstreams {
		u := upstreams[i]

		if !u.Enabled {
			statuses[u.Name] = gateway.UpstreamStatus{
				Healthy:      false,
				LastCheckUTC: time.Now().UTC(),
				LastError:    "upstream disabled",
			}
			continue
		}

		g.Go(func() error {
			status, defs := a.probe(gctx, &u)

			mu.Lock()
			defer mu.Unlock()
			statuses[u.Name] = status
			for _, def := range defs {
				name := u.NamespacePrefix + a.separator + def.Name
				if a.filter != nil && !a.filter.Admit(name) {
					continue
				}
				if _, exists := tools[name]; exists {
					// Prefix uniqueness makes this a duplicate advertised by
					// the upstream itself; keep the first.
					a.logger.Warn("duplicate tool advertised by upstream",
						"upstream", u.Name, "tool", def.Name)
					continue
				}
				tools[name] = &gateway.AggregatedTool{
					Name:         name,
					Description:  def.Description,
					InputSchema:  def.InputSchema,
					UpstreamName: u.Name,
					UpstreamTool: def.Name,
				}
			}
			return nil
		})
	}
	// Workers never return errors; Wait only propagates context cancellation.
	if err := g.Wait(); err != nil {
		return err
	}

	snap := gateway.NewSnapshot(time.Now().UTC(), tools, statuses)
	a.current.Store(snap)
	a.lastBuildUTC = time.Now().UTC()

	a.logger.Info("gateway snapshot published",
		"tools", snap.Len(),
		"upstreams", len(upstreams),
		"healthy", snap.HealthyUpstreamCount())
	return nil
}

// probe runs one upstream's tools/list under its own timeout and returns the
// status entry plus the advertised definitions.
func (a *Aggregator) probe(ctx context.Context, u *gateway.Upstream) (gateway.UpstreamStatus, []mcp.ToolDefinition) {
	callCtx, cancel := context.WithTimeout(ctx, u.EffectiveTimeout())
	defer cancel()

	start := time.Now()
	defs, err := a.client.ListTools(callCtx, u)
	elapsed := time.Since(start)

	status := gateway.UpstreamStatus{
		LastCheckUTC: time.Now().UTC(),
		LatencyMs:    elapsed.Milliseconds(),
	}
	if err != nil {
		status.LastError = err.Error()
		a.logger.Warn("upstream tools/list failed",
			"upstream", u.Name, "endpoint", u.Endpoint, "error", err)
		return status, nil
	}
	status.Healthy = true
	status.ToolCount = len(defs)
	return status, defs
}

// ResolveTool finds the upstream and original tool name behind a namespaced
// name in the current snapshot.
func (a *Aggregator) ResolveTool(ctx context.Context, name string) (*gateway.Upstream, *gateway.AggregatedTool, bool) {
	tool, ok := a.GetSnapshot().Lookup(name)
	if !ok {
		return nil, nil, false
	}
	upstreams, err := a.registry.List(ctx)
	if err != nil {
		a.logger.Warn("registry list failed during tool resolution", "error", err)
		return nil, nil, false
	}
	for i := range upstreams {
		if upstreams[i].Name == tool.UpstreamName && upstreams[i].Enabled {
			return &upstreams[i], tool, true
		}
	}
	return nil, nil, false
}

// CallTool forwards a tools/call for a namespaced tool to its upstream,
// using the tool's original name on the wire.
func (a *Aggregator) CallTool(ctx context.Context, name string, arguments map[string]any) (*mcp.CallResult, error) {
	u, tool, ok := a.ResolveTool(ctx, name)
	if !ok {
		return nil, gateway.ErrUpstreamNotFound
	}
	callCtx, cancel := context.WithTimeout(ctx, u.EffectiveTimeout())
	defer cancel()
	return a.client.CallTool(callCtx, u, tool.UpstreamTool, arguments)
}

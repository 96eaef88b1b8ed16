package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/contextify/contextify/internal/domain/catalog"
	"github.com/contextify/contextify/internal/domain/policy"
	"github.com/contextify/contextify/internal/port/outbound"
)

// DefaultMinReloadInterval throttles freshness-triggered reloads.
const DefaultMinReloadInterval = 2 * time.Second

// SnapshotProvider owns the current catalog snapshot. Readers get the
// published snapshot wait-free; reloads compile a fresh snapshot off to the
// side and publish it with a single atomic swap. A failed reload keeps the
// previous snapshot serving.
type SnapshotProvider struct {
	provider outbound.PolicyConfigProvider
	source   outbound.EndpointSource
	compiler *CatalogCompiler
	logger   *slog.Logger

	minReloadInterval time.Duration

	current atomic.Pointer[catalog.Snapshot]

	// reloadMu serializes reloads; readers never take it.
	reloadMu          sync.Mutex
	lastReloadUTC     time.Time
	lastSourceVersion string
	lastGapReport     *catalog.GapReport
}

// SnapshotProviderOption configures a SnapshotProvider.
type SnapshotProviderOption func(*SnapshotProvider)

// WithMinReloadInterval overrides the freshness throttle interval.
func WithMinReloadInterval(d time.Duration) SnapshotProviderOption {
	return func(p *SnapshotProvider) {
		if d > 0 {
			p.minReloadInterval = d
		}
	}
}

// NewSnapshotProvider creates a provider that starts with an empty snapshot.
// Callers normally Reload once during startup.
func NewSnapshotProvider(
	provider outbound.PolicyConfigProvider,
	source outbound.EndpointSource,
	compiler *CatalogCompiler,
	logger *slog.Logger,
	opts ...SnapshotProviderOption,
) *SnapshotProvider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &SnapshotProvider{
		provider:          provider,
		source:            source,
		compiler:          compiler,
		logger:            logger,
		minReloadInterval: DefaultMinReloadInterval,
	}
	p.current.Store(catalog.EmptySnapshot())
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetSnapshot returns the currently published snapshot. Never nil, never
// blocks on a concurrent reload.
func (p *SnapshotProvider) GetSnapshot() *catalog.Snapshot {
	return p.current.Load()
}

// GapReport returns the gap report of the last successful reload, or nil.
func (p *SnapshotProvider) GapReport() *catalog.GapReport {
	p.reloadMu.Lock()
	defer p.reloadMu.Unlock()
	return p.lastGapReport
}

// Reload fetches the policy config, compiles a fresh snapshot, and publishes
// it. On any error the previous snapshot stays published.
func (p *SnapshotProvider) Reload(ctx context.Context) error {
	p.reloadMu.Lock()
	defer p.reloadMu.Unlock()
	return p.reloadLocked(ctx)
}

func (p *SnapshotProvider) reloadLocked(ctx context.Context) error {
	cfg, err := p.provider.Get(ctx)
	if err != nil {
		return fmt.Errorf("get policy config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid policy config: %w", err)
	}

	endpoints, err := p.source.Endpoints(ctx)
	if err != nil {
		return fmt.Errorf("list endpoints: %w", err)
	}
	enrichment, err := p.source.Enrichment(ctx)
	if err != nil {
		return fmt.Errorf("load enrichment: %w", err)
	}

	tools, report, err := p.compiler.Compile(ctx, endpoints, enrichment, cfg)
	if err != nil {
		return fmt.Errorf("compile catalog: %w", err)
	}

	version := cfg.SourceVersion
	if version == "" {
		version = fingerprint(cfg)
	}

	snap := catalog.NewSnapshot(time.Now().UTC(), version, tools)
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}

	p.current.Store(snap)
	p.lastReloadUTC = time.Now().UTC()
	p.lastSourceVersion = version
	p.lastGapReport = report

	p.logger.Info("catalog snapshot published",
		"tools", snap.Len(),
		"source_version", version,
		"skipped", len(report.Skipped),
		"collisions", len(report.Collisions))
	return nil
}

// EnsureFresh reloads the snapshot when it may be stale. Calls within the
// throttle interval are no-ops; when the interval has elapsed but the source
// version is unchanged, only the staleness clock resets. Reload errors are
// logged, never propagated, so serving continues on the old snapshot.
func (p *SnapshotProvider) EnsureFresh(ctx context.Context) {
	p.reloadMu.Lock()
	defer p.reloadMu.Unlock()

	if time.Since(p.lastReloadUTC) < p.minReloadInterval {
		return
	}

	cfg, err := p.provider.Get(ctx)
	if err != nil {
		p.logger.Warn("freshness check failed, keeping current snapshot", "error", err)
		return
	}
	version := cfg.SourceVersion
	if version == "" {
		version = fingerprint(cfg)
	}
	if version == p.lastSourceVersion {
		p.lastReloadUTC = time.Now().UTC()
		return
	}

	if err := p.reloadLocked(ctx); err != nil {
		p.logger.Warn("reload failed, keeping current snapshot", "error", err)
	}
}

// fingerprint derives a content hash for configs that carry no explicit
// sourceVersion.
func fingerprint(cfg *policy.PolicyConfig) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("xxh64:%016x", xxhash.Sum64(data))
}

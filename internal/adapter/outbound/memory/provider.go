// Package memory provides in-memory adapters: a static policy config
// provider, a static endpoint source, and an upstream registry.
package memory

import (
	"context"
	"sync"

	"github.com/contextify/contextify/internal/domain/catalog"
	"github.com/contextify/contextify/internal/domain/endpoint"
	"github.com/contextify/contextify/internal/domain/policy"
	"github.com/contextify/contextify/internal/port/outbound"
)

// StaticProvider wraps a fixed policy config. Swapping the config is allowed
// (e.g. from tests or an admin surface); the stored config itself is never
// mutated.
type StaticProvider struct {
	mu  sync.RWMutex
	cfg *policy.PolicyConfig
}

// NewStaticProvider creates a provider serving the given config.
func NewStaticProvider(cfg *policy.PolicyConfig) *StaticProvider {
	return &StaticProvider{cfg: cfg}
}

// Get returns the current config.
func (p *StaticProvider) Get(ctx context.Context) (*policy.PolicyConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg, nil
}

// Set replaces the served config.
func (p *StaticProvider) Set(cfg *policy.PolicyConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}

// StaticEndpointSource serves a fixed set of endpoint descriptors and
// enrichment entries.
type StaticEndpointSource struct {
	endpoints  []endpoint.Descriptor
	enrichment map[string]catalog.OpenAPIEnrichment
}

// NewStaticEndpointSource creates a source over the given descriptors.
func NewStaticEndpointSource(endpoints []endpoint.Descriptor, enrichment map[string]catalog.OpenAPIEnrichment) *StaticEndpointSource {
	return &StaticEndpointSource{endpoints: endpoints, enrichment: enrichment}
}

// Endpoints returns the configured descriptors.
func (s *StaticEndpointSource) Endpoints(ctx context.Context) ([]endpoint.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]endpoint.Descriptor, len(s.endpoints))
	copy(out, s.endpoints)
	return out, nil
}

// Enrichment returns the configured enrichment map.
func (s *StaticEndpointSource) Enrichment(ctx context.Context) (map[string]catalog.OpenAPIEnrichment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.enrichment, nil
}

// Compile-time checks.
var (
	_ outbound.PolicyConfigProvider = (*StaticProvider)(nil)
	_ outbound.EndpointSource       = (*StaticEndpointSource)(nil)
)

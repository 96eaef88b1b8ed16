// Package outbound declares the ports the core consumes: policy config
// providers, endpoint sources, and HTTP client factories. Implementations
// live under internal/adapter/outbound.
package outbound

import (
	"context"

	"github.com/contextify/contextify/internal/domain/catalog"
	"github.com/contextify/contextify/internal/domain/endpoint"
	"github.com/contextify/contextify/internal/domain/policy"
)

// PolicyConfigProvider supplies the current policy configuration. Concrete
// sources (files, Consul pollers) live outside the core; implementations
// must be safe for concurrent use and must never mutate a returned config.
type PolicyConfigProvider interface {
	// Get returns the current policy config.
	Get(ctx context.Context) (*policy.PolicyConfig, error)
}

// Watcher is optionally implemented by providers that can signal changes.
// The returned channel receives a value whenever a newer config may be
// available; receivers then call Get.
type Watcher interface {
	Watch() <-chan struct{}
}

// EndpointSource supplies the endpoint descriptors and OpenAPI enrichment
// the catalog compiler consumes. The hosting application implements this.
type EndpointSource interface {
	// Endpoints returns the descriptors of all exposable endpoints.
	Endpoints(ctx context.Context) ([]endpoint.Descriptor, error)
	// Enrichment returns extracted OpenAPI schemas keyed by operation id.
	// A nil map is valid and means no enrichment.
	Enrichment(ctx context.Context) (map[string]catalog.OpenAPIEnrichment, error)
}

package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/contextify/contextify/internal/domain/catalog"
	"github.com/contextify/contextify/internal/domain/endpoint"
	"github.com/contextify/contextify/internal/port/outbound"
)

// endpointsDocument is the on-disk shape of an endpoints export: the hosting
// application's endpoint descriptors plus optional OpenAPI enrichment keyed
// by operation id.
type endpointsDocument struct {
	Endpoints  []endpoint.Descriptor         `json:"endpoints" yaml:"endpoints"`
	Enrichment map[string]enrichmentDocument `json:"enrichment,omitempty" yaml:"enrichment,omitempty"`
}

// enrichmentDocument keeps schemas as untyped values so both YAML and JSON
// documents decode; they re-marshal to JSON on the way out.
type enrichmentDocument struct {
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
	InputSchema    any    `json:"inputSchema,omitempty" yaml:"inputSchema,omitempty"`
	ResponseSchema any    `json:"responseSchema,omitempty" yaml:"responseSchema,omitempty"`
}

func schemaJSON(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// EndpointSource reads an endpoints document on every call. An empty path is
// valid and yields no endpoints, for gateway-only deployments.
type EndpointSource struct {
	path string
}

// NewEndpointSource creates a source for the given endpoints document path.
func NewEndpointSource(path string) *EndpointSource {
	return &EndpointSource{path: path}
}

// Endpoints loads the endpoint descriptors from the document.
func (s *EndpointSource) Endpoints(ctx context.Context) ([]endpoint.Descriptor, error) {
	doc, err := s.load(ctx)
	if err != nil || doc == nil {
		return nil, err
	}
	return doc.Endpoints, nil
}

// Enrichment loads the OpenAPI enrichment map from the document.
func (s *EndpointSource) Enrichment(ctx context.Context) (map[string]catalog.OpenAPIEnrichment, error) {
	doc, err := s.load(ctx)
	if err != nil || doc == nil || len(doc.Enrichment) == 0 {
		return nil, err
	}
	out := make(map[string]catalog.OpenAPIEnrichment, len(doc.Enrichment))
	for opID, e := range doc.Enrichment {
		out[opID] = catalog.OpenAPIEnrichment{
			Description:    e.Description,
			InputSchema:    schemaJSON(e.InputSchema),
			ResponseSchema: schemaJSON(e.ResponseSchema),
		}
	}
	return out, nil
}

func (s *EndpointSource) load(ctx context.Context) (*endpointsDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read endpoints document: %w", err)
	}

	var doc endpointsDocument
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse endpoints document %s: %w", s.path, err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse endpoints document %s: %w", s.path, err)
		}
	}

	for i := range doc.Endpoints {
		if err := doc.Endpoints[i].Validate(); err != nil {
			return nil, fmt.Errorf("endpoints document %s, entry %d: %w", s.path, i, err)
		}
	}
	return &doc, nil
}

// Compile-time check that EndpointSource satisfies the port.
var _ outbound.EndpointSource = (*EndpointSource)(nil)

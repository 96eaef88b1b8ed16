// Package catalog contains the tool descriptor model, the immutable tool
// catalog snapshot, and the stable tool-name derivation.
package catalog

import (
	"encoding/json"

	"github.com/contextify/contextify/internal/domain/endpoint"
	"github.com/contextify/contextify/internal/domain/policy"
)

// OpenAPIEnrichment carries the schemas extracted from an OpenAPI document
// for a single operation. Document loading and parsing happen outside the
// core; only the extracted pieces enter here.
type OpenAPIEnrichment struct {
	Description    string
	InputSchema    json.RawMessage
	ResponseSchema json.RawMessage
}

// ToolDescriptor is one entry of a compiled catalog snapshot.
// Descriptors are immutable after compilation.
type ToolDescriptor struct {
	// ToolName is the snapshot key. Non-empty and unique within a snapshot.
	ToolName string
	// Description is the human-readable tool description.
	Description string
	// InputSchema is the JSON Schema for the tool's arguments, or nil.
	InputSchema json.RawMessage
	// Endpoint is the HTTP endpoint backing this tool.
	Endpoint *endpoint.Descriptor
	// EffectivePolicy is the resolution the compiler attached to this tool.
	EffectivePolicy policy.Resolution
}

// Package endpoint contains the immutable descriptor for an HTTP endpoint
// that can be exposed as an MCP tool.
package endpoint

import "errors"

// ErrNoMatchKeys is returned by Validate when a descriptor carries none of
// the keys the policy resolver can match on.
var ErrNoMatchKeys = errors.New("endpoint descriptor has no match keys (operationId, routeTemplate, displayName)")

// Descriptor describes a single HTTP endpoint of the hosting application.
// Descriptors are values: construct once, never mutate.
type Descriptor struct {
	// RouteTemplate is the route pattern, e.g. "/api/tools/{id}".
	RouteTemplate string `json:"routeTemplate" yaml:"routeTemplate"`
	// HTTPMethod is the HTTP verb, e.g. "GET". Matching is case-insensitive.
	HTTPMethod string `json:"httpMethod" yaml:"httpMethod"`
	// OperationID is the OpenAPI operation id, if known.
	OperationID string `json:"operationId" yaml:"operationId"`
	// DisplayName is a human-readable name for the endpoint.
	DisplayName string `json:"displayName" yaml:"displayName"`
	// Produces lists response media types. Used only for gap reporting.
	Produces []string `json:"produces,omitempty" yaml:"produces,omitempty"`
	// Consumes lists request media types. Used only for gap reporting.
	Consumes []string `json:"consumes,omitempty" yaml:"consumes,omitempty"`
	// RequiresAuth indicates the endpoint expects authenticated callers.
	RequiresAuth bool `json:"requiresAuth,omitempty" yaml:"requiresAuth,omitempty"`
}

// Validate checks the descriptor invariant: at least one match key is set.
func (d *Descriptor) Validate() error {
	if d.OperationID == "" && d.RouteTemplate == "" && d.DisplayName == "" {
		return ErrNoMatchKeys
	}
	return nil
}

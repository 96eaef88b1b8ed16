package catalog

// SkippedEndpoint records an endpoint the compiler refused to admit.
type SkippedEndpoint struct {
	// Endpoint identifies the endpoint, e.g. "GET /api/foo".
	Endpoint string
	// Reason is the admission rule's skip reason, e.g. "disabled-by-policy".
	Reason string
}

// GapReport is the diagnostic structure emitted alongside a compiled
// snapshot. It names what the compiler could not map cleanly so operators
// can close the gaps in policy or OpenAPI coverage.
type GapReport struct {
	// UnmatchedEndpoints lists endpoints no whitelist or blacklist entry
	// matched (resolved via Default).
	UnmatchedEndpoints []string
	// MissingRequestSchemas lists endpoints that consume JSON but have no
	// extracted input schema.
	MissingRequestSchemas []string
	// MissingResponseSchemas lists endpoints that produce JSON but have no
	// extracted response schema.
	MissingResponseSchemas []string
	// AuthWarnings lists endpoints whose auth handling deserves review,
	// e.g. an endpoint requiring auth resolved with propagation disabled.
	AuthWarnings []string
	// Collisions lists tool-name collision warnings.
	Collisions []string
	// Skipped lists endpoints excluded by admission rules.
	Skipped []SkippedEndpoint
}

// HasFindings reports whether the report contains anything worth surfacing.
func (r *GapReport) HasFindings() bool {
	return len(r.UnmatchedEndpoints) > 0 ||
		len(r.MissingRequestSchemas) > 0 ||
		len(r.MissingResponseSchemas) > 0 ||
		len(r.AuthWarnings) > 0 ||
		len(r.Collisions) > 0 ||
		len(r.Skipped) > 0
}

// Package service contains the application services that tie the domain to
// the adapters: catalog compilation, snapshot publication, gateway
// aggregation, and tool execution.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/contextify/contextify/internal/domain/catalog"
	"github.com/contextify/contextify/internal/domain/endpoint"
	"github.com/contextify/contextify/internal/domain/policy"
	"github.com/contextify/contextify/internal/domain/rules"
)

// compileConcurrency bounds the per-endpoint compile fan-out.
const compileConcurrency = 8

// AdmissionContext is the per-endpoint pipeline context during compilation.
type AdmissionContext struct {
	rules.Outcome

	Endpoint *endpoint.Descriptor
	Config   *policy.PolicyConfig

	// Resolution is filled by the policy resolution rule.
	Resolution policy.Resolution
	// MatchedPolicy is the whitelist entry that produced the resolution, when
	// the source is the whitelist. Carries name and description overrides.
	MatchedPolicy *policy.EndpointPolicy
	// Enrich is the OpenAPI enrichment for this endpoint, or nil.
	Enrich *catalog.OpenAPIEnrichment
	// Name is the tool name chosen by the naming rule.
	Name string

	resolver *policy.Resolver
}

// CatalogCompiler compiles endpoint descriptors plus a policy config into a
// catalog snapshot's tool map, emitting a gap report alongside.
type CatalogCompiler struct {
	resolver *policy.Resolver
	engine   *rules.Engine[*AdmissionContext]
	logger   *slog.Logger
}

// NewCatalogCompiler creates a compiler using the given resolver.
func NewCatalogCompiler(resolver *policy.Resolver, logger *slog.Logger) *CatalogCompiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogCompiler{
		resolver: resolver,
		engine: rules.NewEngine[*AdmissionContext](
			policyResolutionRule{},
			toolNamingRule{},
			enrichmentRule{},
		),
		logger: logger,
	}
}

// Compile runs the admission pipeline over every endpoint in parallel and
// returns the admitted tools keyed by final tool name, plus the gap report.
// Name collisions resolve first-writer-wins: the first endpoint to claim a
// stable name keeps it, later claimants get a deterministic suffix derived
// from their own method and route.
func (c *CatalogCompiler) Compile(
	ctx context.Context,
	endpoints []endpoint.Descriptor,
	enrichment map[string]catalog.OpenAPIEnrichment,
	cfg *policy.PolicyConfig,
) (map[string]*catalog.ToolDescriptor, *catalog.GapReport, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("%w: nil policy config", policy.ErrInvalidArgument)
	}

	var (
		claimed sync.Map // tool name -> *catalog.ToolDescriptor
		mu      sync.Mutex
		report  catalog.GapReport
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(compileConcurrency)

	for i := range endpoints {
		ep := endpoints[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			ac := &AdmissionContext{
				Endpoint: &ep,
				Config:   cfg,
				resolver: c.resolver,
			}
			if e, ok := enrichment[ep.OperationID]; ok && ep.OperationID != "" {
				ac.Enrich = &e
			}

			if err := c.engine.Run(ac); err != nil {
				return fmt.Errorf("compile %s: %w", endpointLabel(&ep), err)
			}

			mu.Lock()
			defer mu.Unlock()

			if ac.ShouldSkip {
				report.Skipped = append(report.Skipped, catalog.SkippedEndpoint{
					Endpoint: endpointLabel(&ep),
					Reason:   ac.SkipReason,
				})
				return nil
			}

			c.recordGaps(&report, ac)
			c.claim(&claimed, &report, ac)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	tools := make(map[string]*catalog.ToolDescriptor)
	claimed.Range(func(key, value any) bool {
		tools[key.(string)] = value.(*catalog.ToolDescriptor)
		return true
	})
	return tools, &report, nil
}

// claim stores the tool under its chosen name. When the plain name is
// already taken by the same method and route, the endpoint was compiled
// twice and the later occurrence is dropped; the collision suffix is only
// for distinct endpoints whose name derivations happen to coincide.
func (c *CatalogCompiler) claim(claimed *sync.Map, report *catalog.GapReport, ac *AdmissionContext) {
	tool := c.buildTool(ac, ac.Name)
	existing, loaded := claimed.LoadOrStore(ac.Name, tool)
	if !loaded {
		return
	}
	if sameEndpoint(existing.(*catalog.ToolDescriptor).Endpoint, ac.Endpoint) {
		report.Skipped = append(report.Skipped, catalog.SkippedEndpoint{
			Endpoint: endpointLabel(ac.Endpoint),
			Reason:   "duplicate",
		})
		return
	}

	suffixed := ac.Name + "_" + catalog.CollisionSuffix(ac.Endpoint.HTTPMethod, ac.Endpoint.RouteTemplate)
	report.Collisions = append(report.Collisions,
		fmt.Sprintf("tool name %q already taken, %s renamed to %q",
			ac.Name, endpointLabel(ac.Endpoint), suffixed))

	tool = c.buildTool(ac, suffixed)
	if _, loaded := claimed.LoadOrStore(suffixed, tool); loaded {
		report.Skipped = append(report.Skipped, catalog.SkippedEndpoint{
			Endpoint: endpointLabel(ac.Endpoint),
			Reason:   "duplicate",
		})
	}
}

// sameEndpoint reports whether two descriptors denote the same operation for
// duplicate detection: method compared case-insensitively, route verbatim.
func sameEndpoint(a, b *endpoint.Descriptor) bool {
	return strings.EqualFold(a.HTTPMethod, b.HTTPMethod) && a.RouteTemplate == b.RouteTemplate
}

func (c *CatalogCompiler) buildTool(ac *AdmissionContext, name string) *catalog.ToolDescriptor {
	ep := ac.Endpoint
	return &catalog.ToolDescriptor{
		ToolName:        name,
		Description:     c.description(ac),
		InputSchema:     c.inputSchema(ac),
		Endpoint:        ep,
		EffectivePolicy: ac.Resolution,
	}
}

// description prefers the policy override, then the OpenAPI description,
// then a generic fallback.
func (c *CatalogCompiler) description(ac *AdmissionContext) string {
	if ac.MatchedPolicy != nil && ac.MatchedPolicy.Description != "" {
		return ac.MatchedPolicy.Description
	}
	if ac.Enrich != nil && ac.Enrich.Description != "" {
		return ac.Enrich.Description
	}
	method := strings.ToUpper(ac.Endpoint.HTTPMethod)
	if method == "" {
		method = "GET"
	}
	return fmt.Sprintf("Execute %s request on %s", method, ac.Endpoint.RouteTemplate)
}

func (c *CatalogCompiler) inputSchema(ac *AdmissionContext) []byte {
	if ac.Enrich != nil && len(ac.Enrich.InputSchema) > 0 {
		return ac.Enrich.InputSchema
	}
	return nil
}

// recordGaps appends this endpoint's findings to the report. Caller holds
// the report mutex.
func (c *CatalogCompiler) recordGaps(report *catalog.GapReport, ac *AdmissionContext) {
	label := endpointLabel(ac.Endpoint)

	if ac.Resolution.Source == policy.SourceDefault {
		report.UnmatchedEndpoints = append(report.UnmatchedEndpoints, label)
	}
	if consumesJSON(ac.Endpoint) && (ac.Enrich == nil || len(ac.Enrich.InputSchema) == 0) {
		report.MissingRequestSchemas = append(report.MissingRequestSchemas, label)
	}
	if producesJSON(ac.Endpoint) && (ac.Enrich == nil || len(ac.Enrich.ResponseSchema) == 0) {
		report.MissingResponseSchemas = append(report.MissingResponseSchemas, label)
	}
	if ac.Endpoint.RequiresAuth && ac.Resolution.AuthPropagation == policy.AuthPropagationNone {
		report.AuthWarnings = append(report.AuthWarnings,
			fmt.Sprintf("%s requires auth but propagation is disabled", label))
	}
}

func consumesJSON(d *endpoint.Descriptor) bool {
	return containsJSONMediaType(d.Consumes)
}

func producesJSON(d *endpoint.Descriptor) bool {
	return containsJSONMediaType(d.Produces)
}

func containsJSONMediaType(types []string) bool {
	for _, t := range types {
		if strings.Contains(strings.ToLower(t), "json") {
			return true
		}
	}
	return false
}

// endpointLabel renders "METHOD /route" for diagnostics.
func endpointLabel(d *endpoint.Descriptor) string {
	method := strings.ToUpper(d.HTTPMethod)
	if method == "" {
		method = "GET"
	}
	target := d.RouteTemplate
	if target == "" {
		target = d.OperationID
	}
	if target == "" {
		target = d.DisplayName
	}
	return method + " " + target
}

// policyResolutionRule resolves the effective policy and skips endpoints the
// policy disables.
type policyResolutionRule struct{}

func (policyResolutionRule) Priority() int                  { return 10 }
func (policyResolutionRule) Applies(*AdmissionContext) bool { return true }

func (policyResolutionRule) Execute(ac *AdmissionContext) error {
	res, err := ac.resolver.Resolve(ac.Endpoint, ac.Config)
	if err != nil {
		return err
	}
	ac.Resolution = res

	if res.Source == policy.SourceWhitelist {
		for i := range ac.Config.Whitelist {
			if ac.resolver.Matches(&ac.Config.Whitelist[i], ac.Endpoint) {
				ac.MatchedPolicy = &ac.Config.Whitelist[i]
				break
			}
		}
	}
	if !res.Enabled {
		ac.Skip("disabled-by-policy")
	}
	return nil
}

// toolNamingRule picks the final tool name: the policy override when the
// matched whitelist entry carries one, otherwise the stable derivation.
type toolNamingRule struct{}

func (toolNamingRule) Priority() int                  { return 20 }
func (toolNamingRule) Applies(*AdmissionContext) bool { return true }

func (toolNamingRule) Execute(ac *AdmissionContext) error {
	if ac.MatchedPolicy != nil && ac.MatchedPolicy.ToolName != "" {
		ac.Name = ac.MatchedPolicy.ToolName
	} else {
		ac.Name = catalog.GenerateStableName(ac.Endpoint.HTTPMethod, ac.Endpoint.RouteTemplate)
	}
	if ac.Name == "" {
		ac.Skip("no-tool-name")
	}
	return nil
}

// enrichmentRule exists so the pipeline shape matches the other engines; it
// validates that enrichment, when present, belongs to this operation.
type enrichmentRule struct{}

func (enrichmentRule) Priority() int                     { return 30 }
func (enrichmentRule) Applies(ac *AdmissionContext) bool { return ac.Enrich != nil }

func (enrichmentRule) Execute(ac *AdmissionContext) error {
	if ac.Endpoint.OperationID == "" {
		ac.Enrich = nil
	}
	return nil
}

package policy

import (
	"fmt"

	"github.com/contextify/contextify/internal/domain/endpoint"
	"github.com/contextify/contextify/internal/domain/rules"
)

// Source identifies which part of the config produced a resolution.
type Source string

const (
	// SourceBlacklist means a blacklist entry matched the endpoint.
	SourceBlacklist Source = "Blacklist"
	// SourceWhitelist means a whitelist entry matched the endpoint.
	SourceWhitelist Source = "Whitelist"
	// SourceDefault means no entry matched and denyByDefault decided.
	SourceDefault Source = "Default"
)

// Resolution is the effective policy attached to an endpoint after
// resolution. A resolution via Default carries no limits.
type Resolution struct {
	Enabled bool
	Source  Source

	// Limits from the matched whitelist entry. Zero values mean "not set".
	TimeoutMs        int64
	ConcurrencyLimit int
	AuthPropagation  AuthPropagationMode
	RateLimit        *RateLimitPolicy
}

// Resolver resolves the effective policy for an endpoint descriptor against
// a policy config. Resolvers are stateless after construction and safe for
// concurrent use.
type Resolver struct {
	engine     *rules.Engine[*MatchContext]
	conditions ConditionEvaluator
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithConditionEvaluator wires a CEL condition evaluator into matching.
func WithConditionEvaluator(ev ConditionEvaluator) ResolverOption {
	return func(r *Resolver) {
		r.conditions = ev
	}
}

// NewResolver creates a resolver with the standard matching pipeline.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{engine: newMatchEngine()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Matches reports whether the policy entry matches the descriptor under the
// strict precedence operationId+method > route+method > displayName+method.
// Matching is pure and deterministic.
func (r *Resolver) Matches(p *EndpointPolicy, d *endpoint.Descriptor) bool {
	ctx := &MatchContext{Policy: p, Endpoint: d, Conditions: r.conditions}
	// Match rules never return errors; the pipeline signature allows them
	// for the admission rules that share the engine.
	_ = r.engine.Run(ctx)
	return ctx.Matched
}

// Resolve computes the effective policy for the descriptor:
//
//  1. Blacklist is scanned in insertion order; any match disables the
//     endpoint regardless of the entry's own enabled flag.
//  2. Otherwise the whitelist is scanned in order; a match propagates the
//     entry's enabled flag and limits.
//  3. Otherwise denyByDefault decides, with no limits attached.
func (r *Resolver) Resolve(d *endpoint.Descriptor, cfg *PolicyConfig) (Resolution, error) {
	if d == nil {
		return Resolution{}, fmt.Errorf("%w: nil endpoint descriptor", ErrInvalidArgument)
	}
	if cfg == nil {
		return Resolution{}, fmt.Errorf("%w: nil policy config", ErrInvalidArgument)
	}
	if err := d.Validate(); err != nil {
		return Resolution{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	for i := range cfg.Blacklist {
		if r.Matches(&cfg.Blacklist[i], d) {
			return Resolution{Enabled: false, Source: SourceBlacklist}, nil
		}
	}

	for i := range cfg.Whitelist {
		p := &cfg.Whitelist[i]
		if !r.Matches(p, d) {
			continue
		}
		res := Resolution{
			Enabled:          p.IsEnabled(),
			Source:           SourceWhitelist,
			TimeoutMs:        p.TimeoutMs,
			ConcurrencyLimit: p.ConcurrencyLimit,
			AuthPropagation:  p.AuthPropagation,
			RateLimit:        p.RateLimit,
		}
		return res, nil
	}

	return Resolution{Enabled: !cfg.DenyByDefault, Source: SourceDefault}, nil
}

// Package policy contains the immutable policy model and the deterministic
// policy resolver: blacklist > whitelist > default.
package policy

import (
	"errors"
	"fmt"
)

// AuthPropagationMode controls how caller credentials are forwarded to the
// endpoint backing a tool.
type AuthPropagationMode string

const (
	// AuthPropagationInfer forwards whatever credential fits the endpoint:
	// bearer token if present, cookies otherwise, nothing for anonymous
	// endpoints.
	AuthPropagationInfer AuthPropagationMode = "Infer"
	// AuthPropagationNone never forwards caller credentials.
	AuthPropagationNone AuthPropagationMode = "None"
	// AuthPropagationBearerToken forwards the caller's bearer token.
	AuthPropagationBearerToken AuthPropagationMode = "BearerToken"
	// AuthPropagationCookies forwards the caller's cookies.
	AuthPropagationCookies AuthPropagationMode = "Cookies"
)

// Valid reports whether the mode is one of the defined values.
// The zero value is treated as Infer.
func (m AuthPropagationMode) Valid() bool {
	switch m {
	case "", AuthPropagationInfer, AuthPropagationNone, AuthPropagationBearerToken, AuthPropagationCookies:
		return true
	}
	return false
}

// RateLimitStrategy identifies the rate limiting algorithm for a policy.
type RateLimitStrategy string

const (
	// StrategyFixedWindow counts permits in fixed time windows.
	StrategyFixedWindow RateLimitStrategy = "FixedWindow"
	// StrategySlidingWindow counts permits in a sliding window.
	StrategySlidingWindow RateLimitStrategy = "SlidingWindow"
	// StrategyTokenBucket refills tokens at a steady rate.
	StrategyTokenBucket RateLimitStrategy = "TokenBucket"
	// StrategyConcurrency bounds in-flight calls instead of call rate.
	StrategyConcurrency RateLimitStrategy = "Concurrency"
)

// Valid reports whether the strategy is one of the defined values.
func (s RateLimitStrategy) Valid() bool {
	switch s {
	case "", StrategyFixedWindow, StrategySlidingWindow, StrategyTokenBucket, StrategyConcurrency:
		return true
	}
	return false
}

// RateLimitPolicy describes the rate limit attached to an endpoint policy.
// It is a value; never mutate after construction.
type RateLimitPolicy struct {
	Strategy        RateLimitStrategy `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	PermitLimit     int               `json:"permitLimit,omitempty" yaml:"permitLimit,omitempty"`
	WindowMs        int64             `json:"windowMs,omitempty" yaml:"windowMs,omitempty"`
	QueueLimit      int               `json:"queueLimit,omitempty" yaml:"queueLimit,omitempty"`
	TokensPerPeriod int               `json:"tokensPerPeriod,omitempty" yaml:"tokensPerPeriod,omitempty"`
	RefillPeriodMs  int64             `json:"refillPeriodMs,omitempty" yaml:"refillPeriodMs,omitempty"`
	PenaltyMs       int64             `json:"penaltyMs,omitempty" yaml:"penaltyMs,omitempty"`
	Scope           string            `json:"scope,omitempty" yaml:"scope,omitempty"`
	SegmentationKey string            `json:"segmentationKey,omitempty" yaml:"segmentationKey,omitempty"`
}

// Validate enforces the rate limit invariants: a set strategy requires both
// permitLimit > 0 and windowMs > 0; penaltyMs and queueLimit are non-negative.
func (p *RateLimitPolicy) Validate() error {
	if !p.Strategy.Valid() {
		return fmt.Errorf("rateLimitPolicy: unknown strategy %q", p.Strategy)
	}
	if p.Strategy != "" {
		if p.PermitLimit <= 0 {
			return fmt.Errorf("rateLimitPolicy: permitLimit must be > 0 when strategy is set, got %d", p.PermitLimit)
		}
		if p.WindowMs <= 0 {
			return fmt.Errorf("rateLimitPolicy: windowMs must be > 0 when strategy is set, got %d", p.WindowMs)
		}
	}
	if p.QueueLimit < 0 {
		return fmt.Errorf("rateLimitPolicy: queueLimit must be non-negative, got %d", p.QueueLimit)
	}
	if p.PenaltyMs < 0 {
		return fmt.Errorf("rateLimitPolicy: penaltyMs must be non-negative, got %d", p.PenaltyMs)
	}
	return nil
}

// EndpointPolicy is one whitelist or blacklist entry. It matches endpoints by
// operationId, route template, or display name (each optionally narrowed by
// HTTP method) and carries tool metadata overrides and operational limits.
// Policies are values; never mutate after construction.
type EndpointPolicy struct {
	// Match keys. At least one should be set for the entry to ever match.
	OperationID   string `json:"operationId,omitempty" yaml:"operationId,omitempty"`
	RouteTemplate string `json:"routeTemplate,omitempty" yaml:"routeTemplate,omitempty"`
	HTTPMethod    string `json:"httpMethod,omitempty" yaml:"httpMethod,omitempty"`
	DisplayName   string `json:"displayName,omitempty" yaml:"displayName,omitempty"`

	// Condition is an optional CEL expression over the endpoint attributes.
	// A key-matched entry only matches when the condition evaluates to true.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// Tool metadata overrides.
	ToolName    string `json:"toolName,omitempty" yaml:"toolName,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Operational limits.
	Enabled          *bool               `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	TimeoutMs        int64               `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
	ConcurrencyLimit int                 `json:"concurrencyLimit,omitempty" yaml:"concurrencyLimit,omitempty"`
	RateLimit        *RateLimitPolicy    `json:"rateLimitPolicy,omitempty" yaml:"rateLimitPolicy,omitempty"`
	AuthPropagation  AuthPropagationMode `json:"authPropagationMode,omitempty" yaml:"authPropagationMode,omitempty"`
}

// IsEnabled reports the entry's enabled flag; unset defaults to true.
func (p *EndpointPolicy) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Validate enforces the policy invariants: numeric limits, if present, are
// strictly positive, and nested composites validate.
func (p *EndpointPolicy) Validate() error {
	if p.TimeoutMs < 0 {
		return fmt.Errorf("endpoint policy: timeoutMs must be > 0 if set, got %d", p.TimeoutMs)
	}
	if p.ConcurrencyLimit < 0 {
		return fmt.Errorf("endpoint policy: concurrencyLimit must be > 0 if set, got %d", p.ConcurrencyLimit)
	}
	if !p.AuthPropagation.Valid() {
		return fmt.Errorf("endpoint policy: unknown authPropagationMode %q", p.AuthPropagation)
	}
	if p.RateLimit != nil {
		if err := p.RateLimit.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// PolicyConfig is the root policy document. Whitelist and blacklist are
// independently scanned in insertion order; first match wins within each.
type PolicyConfig struct {
	SchemaVersion int `json:"schemaVersion" yaml:"schemaVersion"`
	// SourceVersion is an opaque monotonic string supplied by the provider.
	SourceVersion string           `json:"sourceVersion,omitempty" yaml:"sourceVersion,omitempty"`
	DenyByDefault bool             `json:"denyByDefault,omitempty" yaml:"denyByDefault,omitempty"`
	Whitelist     []EndpointPolicy `json:"whitelist,omitempty" yaml:"whitelist,omitempty"`
	Blacklist     []EndpointPolicy `json:"blacklist,omitempty" yaml:"blacklist,omitempty"`
}

// Validate checks every whitelist and blacklist entry.
func (c *PolicyConfig) Validate() error {
	for i := range c.Whitelist {
		if err := c.Whitelist[i].Validate(); err != nil {
			return fmt.Errorf("whitelist[%d]: %w", i, err)
		}
	}
	for i := range c.Blacklist {
		if err := c.Blacklist[i].Validate(); err != nil {
			return fmt.Errorf("blacklist[%d]: %w", i, err)
		}
	}
	return nil
}

// ErrInvalidArgument is returned when a caller violates a documented
// precondition (nil config, nil or invalid descriptor).
var ErrInvalidArgument = errors.New("invalid argument")

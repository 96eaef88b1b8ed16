package policy

import (
	"strings"

	"github.com/contextify/contextify/internal/domain/endpoint"
	"github.com/contextify/contextify/internal/domain/rules"
)

// ConditionEvaluator evaluates an optional CEL condition against an endpoint
// descriptor. Implementations must be safe for concurrent use.
type ConditionEvaluator interface {
	// EvalCondition returns true when the expression holds for the descriptor.
	EvalCondition(expr string, d *endpoint.Descriptor) (bool, error)
}

// MatchContext is the shared context for the policy matching pipeline.
type MatchContext struct {
	rules.Outcome

	Policy     *EndpointPolicy
	Endpoint   *endpoint.Descriptor
	Conditions ConditionEvaluator
}

// methodMatches applies the HTTP method filter: it only constrains the match
// when both the policy and the descriptor specify a method (case-insensitive).
func methodMatches(p *EndpointPolicy, d *endpoint.Descriptor) bool {
	if p.HTTPMethod == "" || d.HTTPMethod == "" {
		return true
	}
	return strings.EqualFold(p.HTTPMethod, d.HTTPMethod)
}

// conditionHolds evaluates the policy's optional CEL condition. Without an
// evaluator, conditions are ignored. Evaluation errors count as no-match so
// that a broken condition can never widen a policy's reach.
func conditionHolds(c *MatchContext) bool {
	if c.Policy.Condition == "" {
		return true
	}
	if c.Conditions == nil {
		return true
	}
	ok, err := c.Conditions.EvalCondition(c.Policy.Condition, c.Endpoint)
	return err == nil && ok
}

// Matching rule priorities define the strict precedence:
// operationId+method > route+method > displayName+method.
const (
	priorityByOperationID = 10
	priorityByRoute       = 20
	priorityByDisplayName = 30
)

// byOperationID matches when both sides carry an operation id.
type byOperationID struct{}

func (byOperationID) Priority() int { return priorityByOperationID }

func (byOperationID) Applies(c *MatchContext) bool {
	return c.Policy.OperationID != "" && c.Endpoint.OperationID != ""
}

func (byOperationID) Execute(c *MatchContext) error {
	if c.Policy.OperationID == c.Endpoint.OperationID &&
		methodMatches(c.Policy, c.Endpoint) && conditionHolds(c) {
		c.Matched = true
	}
	return nil
}

// byRouteTemplate matches when both sides carry a route template.
type byRouteTemplate struct{}

func (byRouteTemplate) Priority() int { return priorityByRoute }

func (byRouteTemplate) Applies(c *MatchContext) bool {
	return c.Policy.RouteTemplate != "" && c.Endpoint.RouteTemplate != ""
}

func (byRouteTemplate) Execute(c *MatchContext) error {
	if c.Policy.RouteTemplate == c.Endpoint.RouteTemplate &&
		methodMatches(c.Policy, c.Endpoint) && conditionHolds(c) {
		c.Matched = true
	}
	return nil
}

// byDisplayName matches when both sides carry a display name.
type byDisplayName struct{}

func (byDisplayName) Priority() int { return priorityByDisplayName }

func (byDisplayName) Applies(c *MatchContext) bool {
	return c.Policy.DisplayName != "" && c.Endpoint.DisplayName != ""
}

func (byDisplayName) Execute(c *MatchContext) error {
	if c.Policy.DisplayName == c.Endpoint.DisplayName &&
		methodMatches(c.Policy, c.Endpoint) && conditionHolds(c) {
		c.Matched = true
	}
	return nil
}

// newMatchEngine builds the matching pipeline in precedence order.
func newMatchEngine() *rules.Engine[*MatchContext] {
	return rules.NewEngine[*MatchContext](
		byOperationID{},
		byRouteTemplate{},
		byDisplayName{},
	)
}

// Package cel provides the CEL evaluator for endpoint policy conditions.
package cel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/contextify/contextify/internal/domain/endpoint"
)

// maxExpressionLength bounds condition size to keep compile cost predictable.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit per evaluation.
const maxCostBudget = 100_000

// Evaluator compiles and evaluates CEL conditions over endpoint attributes.
// Programs are compiled once per distinct expression and cached. Safe for
// concurrent use.
type Evaluator struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewEvaluator creates an evaluator whose environment exposes the endpoint
// descriptor's match attributes.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("operationId", cel.StringType),
		cel.Variable("routeTemplate", cel.StringType),
		cel.Variable("httpMethod", cel.StringType),
		cel.Variable("displayName", cel.StringType),
		cel.Variable("requiresAuth", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("create condition environment: %w", err)
	}
	return &Evaluator{env: env, programs: make(map[string]cel.Program)}, nil
}

// Compile parses and type-checks an expression and caches the program.
// Use at config load time to surface broken conditions early.
func (e *Evaluator) Compile(expr string) error {
	_, err := e.program(expr)
	return err
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	if expr == "" {
		return nil, errors.New("condition expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return nil, fmt.Errorf("condition expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}

	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile condition: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("condition must evaluate to bool, got %s", ast.OutputType())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
	)
	if err != nil {
		return nil, fmt.Errorf("build condition program: %w", err)
	}

	e.mu.Lock()
	e.programs[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

// EvalCondition evaluates the expression against a descriptor's attributes.
func (e *Evaluator) EvalCondition(expr string, d *endpoint.Descriptor) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]any{
		"operationId":   d.OperationID,
		"routeTemplate": d.RouteTemplate,
		"httpMethod":    d.HTTPMethod,
		"displayName":   d.DisplayName,
		"requiresAuth":  d.RequiresAuth,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate condition: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition returned %T, want bool", out.Value())
	}
	return result, nil
}

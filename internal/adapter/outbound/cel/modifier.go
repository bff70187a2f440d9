// Package cel provides a CEL-based evaluator for boundary modification
// specs: per-path expressions that rewrite tool params when their
// boundary matches an intent.
package cel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
)

// maxExpressionLength is the maximum allowed length for CEL expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit to prevent cost-exhaustion DoS.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout is the maximum time allowed for a single CEL evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context cancellation is checked.
const interruptCheckFreq = 100

// Modifier compiles and evaluates modification-spec expressions.
// Expressions see the original params under `params` and the intent
// action under `action`.
type Modifier struct {
	env *cel.Env
}

// NewModifier creates the modification environment.
func NewModifier() (*Modifier, error) {
	env, err := cel.NewEnv(
		cel.Variable("params", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("action", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create modification environment: %w", err)
	}
	return &Modifier{env: env}, nil
}

// Compile parses and type-checks one expression.
func (m *Modifier) Compile(expression string) (cel.Program, error) {
	if len(expression) > maxExpressionLength {
		return nil, fmt.Errorf("expression exceeds %d characters", maxExpressionLength)
	}
	if err := validateNesting(expression); err != nil {
		return nil, err
	}

	ast, issues := m.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := m.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}
	return prg, nil
}

// Validate compiles every expression in a spec without evaluating.
// Called at boundary install time so broken specs fail the install.
func (m *Modifier) Validate(spec *boundary.ModificationSpec) error {
	for path, expr := range spec.SetParams {
		if _, err := m.Compile(expr); err != nil {
			return fmt.Errorf("modification for %q: %w", path, err)
		}
	}
	return nil
}

// Apply evaluates a spec against the original params and returns the
// rewritten copy. Dotted paths address nested maps; intermediate maps
// are created as needed. The input map is never mutated.
func (m *Modifier) Apply(ctx context.Context, spec *boundary.ModificationSpec, action string, params map[string]any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	out := deepCopyMap(params)
	if out == nil {
		out = make(map[string]any)
	}

	input := map[string]any{
		"params": params,
		"action": action,
	}

	for path, expr := range spec.SetParams {
		prg, err := m.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("modification for %q: %w", path, err)
		}
		val, _, err := prg.ContextEval(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("evaluate modification for %q: %w", path, err)
		}
		setPath(out, path, val.Value())
	}
	return out, nil
}

// setPath writes value at a dotted path, creating intermediate maps.
// A non-map intermediate is replaced; the modification spec owns the
// subtree it writes to.
func setPath(m map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	for i := 0; i < len(parts)-1; i++ {
		next, ok := m[parts[i]].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[parts[i]] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

func deepCopyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if nested, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// validateNesting checks that the expression does not exceed the
// maximum allowed nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting depth %d exceeds limit %d", maxDepth, maxNestingDepth)
	}
	return nil
}

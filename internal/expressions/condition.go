package expressions

import (
	"context"
	"strconv"
	"strings"

	"github.com/stepwise-engine/stepwise/pkg/schema"
)

// ExprPrefix marks a condition string as an expr-lang expression instead of
// the restricted comparison grammar.
const ExprPrefix = "expr:"

// ConditionEvaluator evaluates condition step expressions against the
// execution context. The restricted grammar is deliberately permissive:
// "true" and "false" are literals, a string containing '>' is a numeric
// comparison, and anything else evaluates to true. Conditions prefixed with
// "expr:" are handed to the expr engine and must produce a boolean.
type ConditionEvaluator struct {
	expr *ExprEngine
}

// NewConditionEvaluator creates a ConditionEvaluator with a fresh expr engine.
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{expr: NewExprEngine()}
}

// Evaluate returns the boolean value of condition. Only numeric parse
// failures and expr evaluation failures are errors; unrecognized conditions
// default to true.
func (c *ConditionEvaluator) Evaluate(ctx context.Context, condition string, execCtx map[string]any) (bool, error) {
	if rest, ok := strings.CutPrefix(condition, ExprPrefix); ok {
		out, err := c.expr.Evaluate(ctx, strings.TrimSpace(rest), execCtx)
		if err != nil {
			return false, err
		}
		b, ok := out.(bool)
		if !ok {
			return false, schema.NewErrorf(schema.ErrCodeExecution,
				"expr condition %q did not evaluate to a boolean (got %T)", condition, out)
		}
		return b, nil
	}

	switch {
	case condition == "true":
		return true, nil
	case condition == "false":
		return false, nil
	case strings.Contains(condition, ">"):
		parts := strings.SplitN(condition, ">", 2)
		left, err := resolveNumber(strings.TrimSpace(parts[0]), execCtx)
		if err != nil {
			return false, err
		}
		right, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return false, schema.NewErrorf(schema.ErrCodeExecution,
				"condition %q: right side is not a number: %s", condition, err.Error())
		}
		return left > right, nil
	default:
		// Unknown expressions evaluate to true.
		return true, nil
	}
}

// resolveNumber resolves ref through the context, falling back to a literal
// numeric parse when the path does not resolve.
func resolveNumber(ref string, execCtx map[string]any) (float64, error) {
	val, ok := ResolvePath(ref, execCtx)
	if !ok {
		val = ref
	}
	f, err := toFloat(val)
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeExecution,
			"condition operand %q is not numeric: %s", ref, err.Error())
	}
	return f, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, strconv.ErrSyntax
	}
}

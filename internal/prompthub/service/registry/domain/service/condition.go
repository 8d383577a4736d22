package service

import (
	"fmt"

	"github.com/prompthub/prompthub/internal/prompthub/code"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/pkg/errorx"
)

// evalCondition evaluates a step predicate against the merged variable
// scope. A variable absent from the scope satisfies not_exists, fails
// exists, and fails every comparison operator.
func evalCondition(cond *entity.StepCondition, vars map[string]any) (bool, error) {
	val, present := vars[cond.Variable]

	switch cond.Operator {
	case entity.OpExists:
		return present, nil
	case entity.OpNotExists:
		return !present, nil
	}
	if !present {
		return false, nil
	}

	switch cond.Operator {
	case entity.OpEq:
		return looseEqual(val, cond.Value), nil
	case entity.OpNeq:
		return !looseEqual(val, cond.Value), nil
	case entity.OpIn, entity.OpNotIn:
		list, ok := cond.Value.([]any)
		if !ok {
			return false, errorx.WithCode(code.ErrValidation,
				"condition on %q: operator %q requires a list value", cond.Variable, cond.Operator)
		}
		found := false
		for _, item := range list {
			if looseEqual(val, item) {
				found = true
				break
			}
		}
		if cond.Operator == entity.OpIn {
			return found, nil
		}
		return !found, nil
	case entity.OpGt, entity.OpGte, entity.OpLt, entity.OpLte:
		left, lok := toFloat(val)
		right, rok := toFloat(cond.Value)
		if !lok || !rok {
			return false, errorx.WithCode(code.ErrValidation,
				"condition on %q: operator %q requires numeric operands", cond.Variable, cond.Operator)
		}
		switch cond.Operator {
		case entity.OpGt:
			return left > right, nil
		case entity.OpGte:
			return left >= right, nil
		case entity.OpLt:
			return left < right, nil
		default:
			return left <= right, nil
		}
	}
	return false, errorx.WithCode(code.ErrValidation,
		"condition on %q: unknown operator %q", cond.Variable, cond.Operator)
}

// looseEqual compares scalars with numeric coercion, so 1 == 1.0 regardless
// of how the JSON decoder typed them.
func looseEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

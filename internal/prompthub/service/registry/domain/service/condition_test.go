package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prompthub/prompthub/internal/prompthub/code"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/pkg/errorx"
)

func TestEvalCondition(t *testing.T) {
	vars := map[string]any{
		"lang":  "go",
		"score": float64(7),
		"debug": true,
	}

	tests := []struct {
		name string
		cond entity.StepCondition
		want bool
	}{
		{"eq match", entity.StepCondition{Variable: "lang", Operator: entity.OpEq, Value: "go"}, true},
		{"eq mismatch", entity.StepCondition{Variable: "lang", Operator: entity.OpEq, Value: "rust"}, false},
		{"neq", entity.StepCondition{Variable: "lang", Operator: entity.OpNeq, Value: "rust"}, true},
		{"eq numeric coercion", entity.StepCondition{Variable: "score", Operator: entity.OpEq, Value: 7}, true},
		{"eq bool", entity.StepCondition{Variable: "debug", Operator: entity.OpEq, Value: true}, true},
		{"in", entity.StepCondition{Variable: "lang", Operator: entity.OpIn, Value: []any{"go", "rust"}}, true},
		{"not_in", entity.StepCondition{Variable: "lang", Operator: entity.OpNotIn, Value: []any{"rust"}}, true},
		{"gt", entity.StepCondition{Variable: "score", Operator: entity.OpGt, Value: 5}, true},
		{"gte boundary", entity.StepCondition{Variable: "score", Operator: entity.OpGte, Value: float64(7)}, true},
		{"lt false", entity.StepCondition{Variable: "score", Operator: entity.OpLt, Value: 7}, false},
		{"lte boundary", entity.StepCondition{Variable: "score", Operator: entity.OpLte, Value: 7}, true},
		{"exists", entity.StepCondition{Variable: "lang", Operator: entity.OpExists}, true},
		{"exists absent", entity.StepCondition{Variable: "ghost", Operator: entity.OpExists}, false},
		{"not_exists absent", entity.StepCondition{Variable: "ghost", Operator: entity.OpNotExists}, true},
		{"comparison on absent variable", entity.StepCondition{Variable: "ghost", Operator: entity.OpEq, Value: "x"}, false},
		{"gt on absent variable", entity.StepCondition{Variable: "ghost", Operator: entity.OpGt, Value: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evalCondition(&tt.cond, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalConditionOperandErrors(t *testing.T) {
	vars := map[string]any{"lang": "go"}

	_, err := evalCondition(&entity.StepCondition{Variable: "lang", Operator: entity.OpIn, Value: "not-a-list"}, vars)
	require.Error(t, err)
	assert.True(t, errorx.IsCode(err, code.ErrValidation))

	_, err = evalCondition(&entity.StepCondition{Variable: "lang", Operator: entity.OpGt, Value: 3}, vars)
	require.Error(t, err)
	assert.True(t, errorx.IsCode(err, code.ErrValidation))
}

// Package render turns prompt content plus a variable map into final text.
// Validation runs before any engine touches the template, so every failure
// carries a stable machine-readable kind.
package render

import (
	"fmt"
	"math"

	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
)

// ErrorKind classifies a render failure.
type ErrorKind string

const (
	KindMissingRequired   ErrorKind = "missing_required"
	KindTypeMismatch      ErrorKind = "type_mismatch"
	KindEnumViolation     ErrorKind = "enum_violation"
	KindUndefinedVariable ErrorKind = "undefined_variable"
	KindSyntaxError       ErrorKind = "syntax_error"
	KindSandboxViolation  ErrorKind = "sandbox_violation"
)

// Error is a render failure with a stable kind for the API contract.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Detail
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Renderer renders prompt content with one of the supported engines.
type Renderer struct{}

// New creates a Renderer.
func New() *Renderer {
	return &Renderer{}
}

// Render validates vars against specs, fills defaults, and renders content
// with the selected engine. The input map is not mutated.
func (r *Renderer) Render(engine entity.TemplateEngine, content string, specs []entity.VariableSpec, vars map[string]any) (string, error) {
	merged, err := Validate(specs, vars)
	if err != nil {
		return "", err
	}
	switch engine {
	case entity.EngineNone:
		return content, nil
	case entity.EngineSimple:
		declared := make(map[string]struct{}, len(specs))
		for _, spec := range specs {
			declared[spec.Name] = struct{}{}
		}
		return renderSimple(content, merged, declared)
	case entity.EngineJinja:
		return renderJinja(content, merged)
	default:
		return "", newError(KindSyntaxError, "unknown template engine %q", engine)
	}
}

// Validate checks vars against the declared specs and returns a new map with
// defaults filled in for absent optional variables.
func Validate(specs []entity.VariableSpec, vars map[string]any) (map[string]any, error) {
	merged := make(map[string]any, len(vars)+len(specs))
	for k, v := range vars {
		merged[k] = v
	}
	for _, spec := range specs {
		v, ok := merged[spec.Name]
		if !ok || v == nil {
			if spec.Default != nil {
				merged[spec.Name] = spec.Default
				continue
			}
			if spec.Required {
				return nil, newError(KindMissingRequired, "required variable %q not provided", spec.Name)
			}
			continue
		}
		if err := checkType(spec, v); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

func checkType(spec entity.VariableSpec, v any) error {
	switch spec.Type {
	case entity.VarString:
		if _, ok := v.(string); !ok {
			return mismatch(spec.Name, "string", v)
		}
	case entity.VarInteger:
		switch n := v.(type) {
		case int, int32, int64:
		case float64:
			if n != math.Trunc(n) {
				return mismatch(spec.Name, "integer", v)
			}
		default:
			return mismatch(spec.Name, "integer", v)
		}
	case entity.VarNumber:
		switch v.(type) {
		case int, int32, int64, float32, float64:
		default:
			return mismatch(spec.Name, "number", v)
		}
	case entity.VarBoolean:
		if _, ok := v.(bool); !ok {
			return mismatch(spec.Name, "boolean", v)
		}
	case entity.VarEnum:
		s, ok := v.(string)
		if !ok {
			return mismatch(spec.Name, "enum", v)
		}
		for _, allowed := range spec.EnumValues {
			if s == allowed {
				return nil
			}
		}
		return newError(KindEnumViolation, "variable %q: value %q not in enum %v", spec.Name, s, spec.EnumValues)
	case entity.VarObject:
		if _, ok := v.(map[string]any); !ok {
			return mismatch(spec.Name, "object", v)
		}
	case entity.VarArray:
		if _, ok := v.([]any); !ok {
			return mismatch(spec.Name, "array", v)
		}
	}
	return nil
}

func mismatch(name, want string, got any) *Error {
	return newError(KindTypeMismatch, "variable %q: expected %s, got %T", name, want, got)
}

package render

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/prompthub/prompthub/pkg/utils/json"
)

// The simple engine is logic-less: {{ var }} and {{ obj.field.nested }},
// nothing else. Anything outside a placeholder passes through untouched.
var simplePattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)\s*\}\}`)

// Declared variables that resolved to nothing render as the empty string
// (required-without-value is rejected during validation, so only optionals
// reach that branch). Undeclared references are an error.
func renderSimple(content string, vars map[string]any, declared map[string]struct{}) (string, error) {
	var renderErr error
	out := simplePattern.ReplaceAllStringFunc(content, func(m string) string {
		if renderErr != nil {
			return m
		}
		path := simplePattern.FindStringSubmatch(m)[1]
		parts := strings.Split(path, ".")
		val, ok := lookupPath(vars, parts)
		if !ok {
			if _, opt := declared[parts[0]]; opt {
				return ""
			}
			renderErr = newError(KindUndefinedVariable, "variable %q is not defined", path)
			return m
		}
		return stringify(val)
	})
	if renderErr != nil {
		return "", renderErr
	}
	return out, nil
}

func lookupPath(vars map[string]any, path []string) (any, bool) {
	var cur any = vars
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		s, err := json.MarshalString(t)
		if err != nil {
			return ""
		}
		return s
	}
}

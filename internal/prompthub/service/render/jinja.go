package render

import (
	"regexp"

	"github.com/nikolalohinski/gonja"
)

// Templates render in data-only mode: tags that would reach the filesystem
// or another template are rejected up front.
var sandboxTagPattern = regexp.MustCompile(`\{%-?\s*(include|import|extends|from)\b`)

var (
	blockPattern     = regexp.MustCompile(`\{\{(.*?)\}\}|\{%(.*?)%\}`)
	stringLitPattern = regexp.MustCompile(`"[^"]*"|'[^']*'`)
	forBindPattern   = regexp.MustCompile(`\{%-?\s*for\s+([A-Za-z_][A-Za-z0-9_]*)(?:\s*,\s*([A-Za-z_][A-Za-z0-9_]*))?\s+in\b`)
	setBindPattern   = regexp.MustCompile(`\{%-?\s*set\s+([A-Za-z_][A-Za-z0-9_]*)`)
	identPattern     = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
)

// Keywords and builtins a template may reference without declaring them.
var jinjaReserved = map[string]struct{}{
	"if": {}, "elif": {}, "else": {}, "endif": {},
	"for": {}, "endfor": {}, "in": {}, "recursive": {},
	"set": {}, "endset": {}, "with": {}, "endwith": {},
	"and": {}, "or": {}, "not": {}, "is": {},
	"true": {}, "false": {}, "True": {}, "False": {},
	"none": {}, "None": {}, "null": {},
	"loop": {}, "range": {}, "defined": {}, "undefined": {},
	"odd": {}, "even": {}, "divisibleby": {}, "sameas": {},
}

func renderJinja(content string, vars map[string]any) (string, error) {
	if m := sandboxTagPattern.FindStringSubmatch(content); m != nil {
		return "", newError(KindSandboxViolation, "template tag %q is not allowed", m[1])
	}
	if err := checkUndefined(content, vars); err != nil {
		return "", err
	}
	tpl, err := gonja.FromString(content)
	if err != nil {
		return "", newError(KindSyntaxError, "parse template: %v", err)
	}
	out, err := tpl.Execute(gonja.Context(vars))
	if err != nil {
		return "", newError(KindSyntaxError, "execute template: %v", err)
	}
	return out, nil
}

// checkUndefined statically scans expression and tag blocks for root
// identifiers with no binding. Running it before execution keeps missing
// variables failing the same way whether or not control flow reaches them.
func checkUndefined(content string, vars map[string]any) error {
	bound := make(map[string]struct{})
	for _, m := range forBindPattern.FindAllStringSubmatch(content, -1) {
		bound[m[1]] = struct{}{}
		if m[2] != "" {
			bound[m[2]] = struct{}{}
		}
	}
	for _, m := range setBindPattern.FindAllStringSubmatch(content, -1) {
		bound[m[1]] = struct{}{}
	}

	for _, block := range blockPattern.FindAllStringSubmatch(content, -1) {
		expr := block[1]
		if expr == "" {
			expr = block[2]
		}
		expr = stringLitPattern.ReplaceAllString(expr, `""`)
		for _, loc := range identPattern.FindAllStringIndex(expr, -1) {
			name := expr[loc[0]:loc[1]]
			if precededBy(expr, loc[0], '.') || precededBy(expr, loc[0], '|') {
				continue
			}
			if _, ok := jinjaReserved[name]; ok {
				continue
			}
			if _, ok := bound[name]; ok {
				continue
			}
			if _, ok := vars[name]; ok {
				continue
			}
			return newError(KindUndefinedVariable, "variable %q is not defined", name)
		}
	}
	return nil
}

// precededBy reports whether the last non-space byte before pos is ch.
func precededBy(s string, pos int, ch byte) bool {
	for i := pos - 1; i >= 0; i-- {
		if s[i] == ' ' || s[i] == '\t' {
			continue
		}
		return s[i] == ch
	}
	return false
}

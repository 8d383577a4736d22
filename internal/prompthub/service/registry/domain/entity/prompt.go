package entity

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// PromptFormat is the declared output format of a prompt.
type PromptFormat string

const (
	FormatText PromptFormat = "text"
	FormatJSON PromptFormat = "json"
	FormatYAML PromptFormat = "yaml"
	FormatChat PromptFormat = "chat"
)

// TemplateEngine selects how a prompt's content is rendered.
type TemplateEngine string

const (
	// EngineJinja is the primary engine: mustache-style interpolation plus
	// if/for control flow, rendered in data-only mode.
	EngineJinja TemplateEngine = "jinja2"
	// EngineSimple is the logic-less fallback: {{ var }} and {{ obj.field }}.
	EngineSimple TemplateEngine = "simple"
	// EngineNone returns content verbatim; the variable spec must be empty.
	EngineNone TemplateEngine = "none"
)

// VariableType is the declared type of a template variable.
type VariableType string

const (
	VarString  VariableType = "string"
	VarInteger VariableType = "integer"
	VarNumber  VariableType = "number"
	VarBoolean VariableType = "boolean"
	VarEnum    VariableType = "enum"
	VarObject  VariableType = "object"
	VarArray   VariableType = "array"
)

// VariableSpec declares one template variable.
type VariableSpec struct {
	Name        string       `json:"name"`
	Type        VariableType `json:"type"`
	Required    bool         `json:"required"`
	Default     any          `json:"default,omitempty"`
	Description string       `json:"description,omitempty"`
	EnumValues  []string     `json:"enum_values,omitempty"`
}

// Validate checks internal consistency of a variable declaration.
func (v VariableSpec) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("variable name must not be empty")
	}
	switch v.Type {
	case VarString, VarInteger, VarNumber, VarBoolean, VarObject, VarArray:
		if len(v.EnumValues) > 0 {
			return fmt.Errorf("variable %q: enum_values only allowed for type enum", v.Name)
		}
	case VarEnum:
		if len(v.EnumValues) == 0 {
			return fmt.Errorf("variable %q: type enum requires enum_values", v.Name)
		}
		if v.Default != nil {
			def := fmt.Sprintf("%v", v.Default)
			found := false
			for _, allowed := range v.EnumValues {
				if def == allowed {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("variable %q: default %q not in enum_values", v.Name, def)
			}
		}
	default:
		return fmt.Errorf("variable %q: unknown type %q", v.Name, v.Type)
	}
	return nil
}

// ValidateVariableSpecs validates a whole spec list, including duplicate names.
func ValidateVariableSpecs(specs []VariableSpec) error {
	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return err
		}
		if _, dup := seen[spec.Name]; dup {
			return fmt.Errorf("duplicate variable %q", spec.Name)
		}
		seen[spec.Name] = struct{}{}
	}
	return nil
}

// Prompt is the logical, versioned artifact. Content is the working copy
// from which publish snapshots an immutable Version.
type Prompt struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"project_id"`
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	Description    string         `json:"description,omitempty"`
	Content        string         `json:"content"`
	Format         PromptFormat   `json:"format"`
	TemplateEngine TemplateEngine `json:"template_engine"`
	Variables      []VariableSpec `json:"variables"`
	Tags           []string       `json:"tags"`
	Category       string         `json:"category,omitempty"`
	IsShared       bool           `json:"is_shared"`
	CurrentVersion string         `json:"current_version"`
	CreatedBy      string         `json:"created_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
}

// VersionStatus is the lifecycle state of a prompt version.
type VersionStatus string

const (
	StatusDraft      VersionStatus = "draft"
	StatusPublished  VersionStatus = "published"
	StatusDeprecated VersionStatus = "deprecated"
)

// Version is an immutable snapshot of a prompt. Once published, content and
// variables are frozen.
type Version struct {
	ID        string         `json:"id"`
	PromptID  string         `json:"prompt_id"`
	Version   string         `json:"version"`
	Content   string         `json:"content"`
	Variables []VariableSpec `json:"variables"`
	Changelog string         `json:"changelog,omitempty"`
	Status    VersionStatus  `json:"status"`
	CreatedBy string         `json:"created_by,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidateSlug enforces kebab-case slugs.
func ValidateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("slug %q must be kebab-case (lowercase letters, numbers, hyphens)", slug)
	}
	return nil
}

// NormalizeTags lower-cases and trims tags, dropping empties.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

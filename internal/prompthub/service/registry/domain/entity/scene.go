package entity

import (
	"fmt"
	"time"
)

// MergeStrategy controls how rendered step outputs are assembled.
type MergeStrategy string

const (
	MergeConcat     MergeStrategy = "concat"
	MergeChain      MergeStrategy = "chain"
	MergeSelectBest MergeStrategy = "select_best"
)

// ConditionOperator is the predicate operator of a step condition.
type ConditionOperator string

const (
	OpEq        ConditionOperator = "eq"
	OpNeq       ConditionOperator = "neq"
	OpIn        ConditionOperator = "in"
	OpNotIn     ConditionOperator = "not_in"
	OpGt        ConditionOperator = "gt"
	OpGte       ConditionOperator = "gte"
	OpLt        ConditionOperator = "lt"
	OpLte       ConditionOperator = "lte"
	OpExists    ConditionOperator = "exists"
	OpNotExists ConditionOperator = "not_exists"
)

var validOperators = map[ConditionOperator]struct{}{
	OpEq: {}, OpNeq: {}, OpIn: {}, OpNotIn: {},
	OpGt: {}, OpGte: {}, OpLt: {}, OpLte: {},
	OpExists: {}, OpNotExists: {},
}

// StepCondition is a three-term predicate over the step's merged variables.
type StepCondition struct {
	Variable string            `json:"variable"`
	Operator ConditionOperator `json:"operator"`
	Value    any               `json:"value,omitempty"`
}

// VersionLatest is the symbolic version binding a step to the prompt's
// current version at resolve time.
const VersionLatest = "latest"

// PromptReference points a step at a prompt, optionally pinned to a version.
// An empty or "latest" version is a live binding to current_version.
type PromptReference struct {
	PromptID string `json:"prompt_id"`
	Version  string `json:"version,omitempty"`
}

// Pinned reports whether the reference is locked to a literal version.
func (r PromptReference) Pinned() bool {
	return r.Version != "" && r.Version != VersionLatest
}

// PipelineStep is one step of a scene pipeline.
type PipelineStep struct {
	ID        string          `json:"id"`
	PromptRef PromptReference `json:"prompt_ref"`
	Variables map[string]any  `json:"variables,omitempty"`
	Condition *StepCondition  `json:"condition,omitempty"`
	OutputKey string          `json:"output_key,omitempty"`
}

// Pipeline is the ordered step list stored as JSON on the scene row.
type Pipeline struct {
	Steps []PipelineStep `json:"steps"`
}

// Validate checks structural invariants: unique step ids, prompt ids set,
// known condition operators.
func (p Pipeline) Validate() error {
	seen := make(map[string]struct{}, len(p.Steps))
	for i, step := range p.Steps {
		if step.ID == "" {
			return fmt.Errorf("step %d: id must not be empty", i)
		}
		if _, dup := seen[step.ID]; dup {
			return fmt.Errorf("duplicate step id %q", step.ID)
		}
		seen[step.ID] = struct{}{}
		if step.PromptRef.PromptID == "" {
			return fmt.Errorf("step %q: prompt_ref.prompt_id must not be empty", step.ID)
		}
		if step.Condition != nil {
			if _, ok := validOperators[step.Condition.Operator]; !ok {
				return fmt.Errorf("step %q: unknown condition operator %q", step.ID, step.Condition.Operator)
			}
			if step.Condition.Variable == "" {
				return fmt.Errorf("step %q: condition variable must not be empty", step.ID)
			}
		}
	}
	return nil
}

// PromptIDs returns the distinct prompt ids referenced by the pipeline.
func (p Pipeline) PromptIDs() []string {
	seen := make(map[string]struct{}, len(p.Steps))
	ids := make([]string, 0, len(p.Steps))
	for _, step := range p.Steps {
		if _, ok := seen[step.PromptRef.PromptID]; ok {
			continue
		}
		seen[step.PromptRef.PromptID] = struct{}{}
		ids = append(ids, step.PromptRef.PromptID)
	}
	return ids
}

// Scene is a named pipeline yielding one final rendered text.
type Scene struct {
	ID            string        `json:"id"`
	ProjectID     string        `json:"project_id"`
	Name          string        `json:"name"`
	Slug          string        `json:"slug"`
	Description   string        `json:"description,omitempty"`
	Pipeline      Pipeline      `json:"pipeline"`
	MergeStrategy MergeStrategy `json:"merge_strategy"`
	Separator     string        `json:"separator"`
	OutputFormat  string        `json:"output_format,omitempty"`
	CreatedBy     string        `json:"created_by,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ValidMergeStrategy reports whether s is a known merge strategy.
func ValidMergeStrategy(s MergeStrategy) bool {
	switch s {
	case MergeConcat, MergeChain, MergeSelectBest:
		return true
	}
	return false
}

package entity

import "time"

// RefSourceType discriminates where a reference edge originates.
type RefSourceType string

const (
	RefSourcePrompt RefSourceType = "prompt"
	RefSourceScene  RefSourceType = "scene"
)

// RefType classifies a reference edge.
type RefType string

const (
	RefExtends  RefType = "extends"
	RefIncludes RefType = "includes"
	RefComposes RefType = "composes"
)

// PromptRef is a materialized edge in the reference index. Scene-derived
// edges carry the originating step id; prompt-to-prompt edges do not.
type PromptRef struct {
	ID             string         `json:"id"`
	SourceType     RefSourceType  `json:"source_type"`
	SourceID       string         `json:"source_id"`
	StepID         string         `json:"step_id,omitempty"`
	TargetPromptID string         `json:"target_prompt_id"`
	RefType        RefType        `json:"ref_type"`
	OverrideConfig map[string]any `json:"override_config,omitempty"`
	PinnedVersion  string         `json:"pinned_version,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// CallLog is one resolved-call record, written fire-and-forget.
type CallLog struct {
	ID              string         `json:"id"`
	PromptID        string         `json:"prompt_id,omitempty"`
	SceneID         string         `json:"scene_id,omitempty"`
	Version         string         `json:"version,omitempty"`
	CallerID        string         `json:"caller_id,omitempty"`
	CallerIP        string         `json:"caller_ip,omitempty"`
	InputVariables  map[string]any `json:"input_variables,omitempty"`
	RenderedContent string         `json:"rendered_content,omitempty"`
	TokenCount      int            `json:"token_count"`
	ElapsedMS       int64          `json:"elapsed_ms"`
	CreatedAt       time.Time      `json:"created_at"`
}

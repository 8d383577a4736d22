// Package v1 exposes the REST API under /api/v1.
package v1

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/prompthub/prompthub/internal/prompthub/handler/middleware"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/repo"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/service"
)

const defaultPageSize = 20

// PageQuery is the parsed pagination and sorting of a list request.
type PageQuery struct {
	Page     int
	PageSize int
	SortBy   string
	Order    string
}

// Opts converts the query into repo paging options.
func (q PageQuery) Opts() repo.PageOpts {
	return repo.PageOpts{
		Offset: (q.Page - 1) * q.PageSize,
		Limit:  q.PageSize,
		SortBy: q.SortBy,
		Order:  q.Order,
	}
}

func parsePage(c *gin.Context, maxPageSize int) PageQuery {
	q := PageQuery{
		Page:     1,
		PageSize: defaultPageSize,
		SortBy:   c.Query("sort_by"),
		Order:    c.DefaultQuery("order", "asc"),
	}
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		q.Page = v
	}
	if v, err := strconv.Atoi(c.Query("page_size")); err == nil && v > 0 {
		q.PageSize = v
	}
	if maxPageSize > 0 && q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	return q
}

func callerFrom(c *gin.Context) service.Caller {
	caller := service.Caller{IP: c.ClientIP(), ProjectID: c.Query("project_id")}
	if user := middleware.CallerFrom(c); user != nil {
		caller.UserID = user.ID
	}
	return caller
}

// CreatePromptRequest is the body of POST /prompts.
type CreatePromptRequest struct {
	ProjectID      string                `json:"project_id" binding:"required"`
	Name           string                `json:"name" binding:"required"`
	Slug           string                `json:"slug" binding:"required"`
	Description    string                `json:"description"`
	Content        string                `json:"content"`
	Format         entity.PromptFormat   `json:"format"`
	TemplateEngine entity.TemplateEngine `json:"template_engine"`
	Variables      []entity.VariableSpec `json:"variables"`
	Tags           []string              `json:"tags"`
	Category       string                `json:"category"`
	IsShared       bool                  `json:"is_shared"`
}

// UpdatePromptRequest is the body of PUT /prompts/{id}; absent fields stay
// untouched.
type UpdatePromptRequest struct {
	Name           *string                `json:"name"`
	Description    *string                `json:"description"`
	Content        *string                `json:"content"`
	Format         *entity.PromptFormat   `json:"format"`
	TemplateEngine *entity.TemplateEngine `json:"template_engine"`
	Variables      []entity.VariableSpec  `json:"variables"`
	Tags           []string               `json:"tags"`
	Category       *string                `json:"category"`
}

// PublishRequest is the body of POST /prompts/{id}/publish.
type PublishRequest struct {
	Version   string `json:"version"`
	Bump      string `json:"bump"`
	Changelog string `json:"changelog"`
}

// RenderRequest is the body of POST /prompts/{id}/render.
type RenderRequest struct {
	Version   string         `json:"version"`
	Variables map[string]any `json:"variables"`
}

// ShareRequest is the body of POST /prompts/{id}/share; Shared defaults to
// true when absent.
type ShareRequest struct {
	Shared *bool `json:"shared"`
}

// ForkRequest is the body of POST /shared/prompts/{id}/fork.
type ForkRequest struct {
	TargetProjectID string `json:"target_project_id" binding:"required"`
	Slug            string `json:"slug"`
}

// CreateRefRequest is the body of POST /prompts/{id}/refs.
type CreateRefRequest struct {
	TargetPromptID string         `json:"target_prompt_id" binding:"required"`
	RefType        entity.RefType `json:"ref_type" binding:"required"`
	PinnedVersion  string         `json:"pinned_version"`
	OverrideConfig map[string]any `json:"override_config"`
}

// PromptRefsResponse is the payload of GET /prompts/{id}/refs.
type PromptRefsResponse struct {
	Outgoing []*entity.PromptRef `json:"outgoing"`
	Incoming []*entity.PromptRef `json:"incoming"`
}

// CreateSceneRequest is the body of POST /scenes.
type CreateSceneRequest struct {
	ProjectID     string               `json:"project_id" binding:"required"`
	Name          string               `json:"name" binding:"required"`
	Slug          string               `json:"slug" binding:"required"`
	Description   string               `json:"description"`
	Pipeline      entity.Pipeline      `json:"pipeline"`
	MergeStrategy entity.MergeStrategy `json:"merge_strategy"`
	Separator     string               `json:"separator"`
	OutputFormat  string               `json:"output_format"`
}

// UpdateSceneRequest is the body of PUT /scenes/{id}.
type UpdateSceneRequest struct {
	Name          *string               `json:"name"`
	Description   *string               `json:"description"`
	Pipeline      *entity.Pipeline      `json:"pipeline"`
	MergeStrategy *entity.MergeStrategy `json:"merge_strategy"`
	Separator     *string               `json:"separator"`
	OutputFormat  *string               `json:"output_format"`
}

// ResolveRequest is the body of POST /scenes/{id}/resolve.
type ResolveRequest struct {
	Variables       map[string]any `json:"variables"`
	CacheTTLSeconds int            `json:"cache_ttl_seconds"`
}

// CreateProjectRequest is the body of POST /projects.
type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Slug        string `json:"slug" binding:"required"`
	Description string `json:"description"`
}

// UpdateProjectRequest is the body of PUT /projects/{id}.
type UpdateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// ProjectResponse decorates a project with its live counts.
type ProjectResponse struct {
	*entity.Project
	PromptCount int64 `json:"prompt_count"`
	SceneCount  int64 `json:"scene_count"`
}

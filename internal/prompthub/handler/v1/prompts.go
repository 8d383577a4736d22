package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/prompthub/prompthub/internal/pkg/core"
	"github.com/prompthub/prompthub/internal/prompthub/code"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/repo"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/service"
	"github.com/prompthub/prompthub/pkg/errorx"
)

// PromptHandler serves the /prompts endpoints.
type PromptHandler struct {
	svc     *service.PromptService
	maxPage int
}

// NewPromptHandler creates a PromptHandler.
func NewPromptHandler(svc *service.PromptService, maxPageSize int) *PromptHandler {
	return &PromptHandler{svc: svc, maxPage: maxPageSize}
}

// Create handles POST /prompts.
func (h *PromptHandler) Create(c *gin.Context) {
	var req CreatePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, code.ErrValidation, "bind prompt request"), nil)
		return
	}
	prompt := &entity.Prompt{
		ProjectID:      req.ProjectID,
		Name:           req.Name,
		Slug:           req.Slug,
		Description:    req.Description,
		Content:        req.Content,
		Format:         req.Format,
		TemplateEngine: req.TemplateEngine,
		Variables:      req.Variables,
		Tags:           req.Tags,
		Category:       req.Category,
		IsShared:       req.IsShared,
	}
	created, err := h.svc.Create(c.Request.Context(), callerFrom(c), prompt)
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, created)
}

// List handles GET /prompts.
func (h *PromptHandler) List(c *gin.Context) {
	page := parsePage(c, h.maxPage)
	filter := repo.PromptFilter{
		ProjectID: c.Query("project_id"),
		Slug:      c.Query("slug"),
		Tags:      c.QueryArray("tag"),
		Category:  c.Query("category"),
		Search:    c.Query("search"),
	}
	if shared := c.Query("is_shared"); shared != "" {
		v := shared == "true"
		filter.IsShared = &v
	}
	prompts, total, err := h.svc.List(c.Request.Context(), filter, page.Opts())
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WritePage(c, prompts, page.Page, page.PageSize, total)
}

// Get handles GET /prompts/:id.
func (h *PromptHandler) Get(c *gin.Context) {
	prompt, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, prompt)
}

// Update handles PUT /prompts/:id.
func (h *PromptHandler) Update(c *gin.Context) {
	var req UpdatePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, code.ErrValidation, "bind prompt request"), nil)
		return
	}
	prompt, err := h.svc.Update(c.Request.Context(), c.Param("id"), service.PromptPatch{
		Name:           req.Name,
		Description:    req.Description,
		Content:        req.Content,
		Format:         req.Format,
		TemplateEngine: req.TemplateEngine,
		Variables:      req.Variables,
		Tags:           req.Tags,
		Category:       req.Category,
	})
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, prompt)
}

// Delete handles DELETE /prompts/:id.
func (h *PromptHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, gin.H{"id": id, "deleted": true})
}

// ListVersions handles GET /prompts/:id/versions.
func (h *PromptHandler) ListVersions(c *gin.Context) {
	versions, err := h.svc.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, versions)
}

// GetVersion handles GET /prompts/:id/versions/:version.
func (h *PromptHandler) GetVersion(c *gin.Context) {
	version, err := h.svc.GetVersion(c.Request.Context(), c.Param("id"), c.Param("version"))
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, version)
}

// Publish handles POST /prompts/:id/publish.
func (h *PromptHandler) Publish(c *gin.Context) {
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, code.ErrValidation, "bind publish request"), nil)
		return
	}
	version, err := h.svc.Publish(c.Request.Context(), callerFrom(c), c.Param("id"), service.PublishRequest{
		Version:   req.Version,
		Bump:      req.Bump,
		Changelog: req.Changelog,
	})
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, version)
}

// Render handles POST /prompts/:id/render.
func (h *PromptHandler) Render(c *gin.Context) {
	var req RenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, code.ErrValidation, "bind render request"), nil)
		return
	}
	result, err := h.svc.Render(c.Request.Context(), callerFrom(c), c.Param("id"), req.Version, req.Variables)
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, result)
}

// Share handles POST /prompts/:id/share.
func (h *PromptHandler) Share(c *gin.Context) {
	var req ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, code.ErrValidation, "bind share request"), nil)
		return
	}
	shared := true
	if req.Shared != nil {
		shared = *req.Shared
	}
	prompt, err := h.svc.Share(c.Request.Context(), c.Param("id"), shared)
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, prompt)
}

// Refs handles GET /prompts/:id/refs.
func (h *PromptHandler) Refs(c *gin.Context) {
	out, in, err := h.svc.Refs(c.Request.Context(), c.Param("id"))
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, PromptRefsResponse{Outgoing: out, Incoming: in})
}

// CreateRef handles POST /prompts/:id/refs.
func (h *PromptHandler) CreateRef(c *gin.Context) {
	var req CreateRefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, code.ErrValidation, "bind ref request"), nil)
		return
	}
	edge, err := h.svc.AddRef(c.Request.Context(), c.Param("id"), service.RefSpec{
		TargetPromptID: req.TargetPromptID,
		RefType:        req.RefType,
		PinnedVersion:  req.PinnedVersion,
		OverrideConfig: req.OverrideConfig,
	})
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, edge)
}

// DeleteRef handles DELETE /prompts/:id/refs/:refid.
func (h *PromptHandler) DeleteRef(c *gin.Context) {
	refID := c.Param("refid")
	if err := h.svc.DeleteRef(c.Request.Context(), c.Param("id"), refID); err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, gin.H{"id": refID, "deleted": true})
}

// Impact handles GET /prompts/:id/impact.
func (h *PromptHandler) Impact(c *gin.Context) {
	scenes, err := h.svc.Impact(c.Request.Context(), c.Param("id"))
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, gin.H{"scenes": scenes})
}

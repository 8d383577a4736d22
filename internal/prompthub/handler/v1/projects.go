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

// ProjectHandler serves the /projects endpoints.
type ProjectHandler struct {
	svc     *service.ProjectService
	prompts *service.PromptService
	maxPage int
}

// NewProjectHandler creates a ProjectHandler.
func NewProjectHandler(svc *service.ProjectService, prompts *service.PromptService, maxPageSize int) *ProjectHandler {
	return &ProjectHandler{svc: svc, prompts: prompts, maxPage: maxPageSize}
}

// Create handles POST /projects.
func (h *ProjectHandler) Create(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, code.ErrValidation, "bind project request"), nil)
		return
	}
	project, err := h.svc.Create(c.Request.Context(), callerFrom(c), &entity.Project{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
	})
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, project)
}

// List handles GET /projects.
func (h *ProjectHandler) List(c *gin.Context) {
	page := parsePage(c, h.maxPage)
	projects, total, err := h.svc.List(c.Request.Context(), page.Opts())
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WritePage(c, projects, page.Page, page.PageSize, total)
}

// Get handles GET /projects/:id.
func (h *ProjectHandler) Get(c *gin.Context) {
	project, prompts, scenes, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, ProjectResponse{Project: project, PromptCount: prompts, SceneCount: scenes})
}

// Update handles PUT /projects/:id.
func (h *ProjectHandler) Update(c *gin.Context) {
	var req UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, code.ErrValidation, "bind project request"), nil)
		return
	}
	project, err := h.svc.Update(c.Request.Context(), c.Param("id"), service.ProjectPatch{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, project)
}

// Delete handles DELETE /projects/:id.
func (h *ProjectHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, gin.H{"id": id, "deleted": true})
}

// Prompts handles GET /projects/:id/prompts.
func (h *ProjectHandler) Prompts(c *gin.Context) {
	id := c.Param("id")
	if _, _, _, err := h.svc.Get(c.Request.Context(), id); err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	page := parsePage(c, h.maxPage)
	prompts, total, err := h.prompts.List(c.Request.Context(), repo.PromptFilter{ProjectID: id}, page.Opts())
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WritePage(c, prompts, page.Page, page.PageSize, total)
}

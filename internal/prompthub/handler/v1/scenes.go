package v1

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prompthub/prompthub/internal/pkg/core"
	"github.com/prompthub/prompthub/internal/prompthub/code"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/service"
	"github.com/prompthub/prompthub/pkg/errorx"
)

// SceneHandler serves the /scenes endpoints, including the core resolve.
type SceneHandler struct {
	svc     *service.SceneService
	engine  *service.Engine
	maxPage int
}

// NewSceneHandler creates a SceneHandler.
func NewSceneHandler(svc *service.SceneService, engine *service.Engine, maxPageSize int) *SceneHandler {
	return &SceneHandler{svc: svc, engine: engine, maxPage: maxPageSize}
}

// Create handles POST /scenes.
func (h *SceneHandler) Create(c *gin.Context) {
	var req CreateSceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, code.ErrValidation, "bind scene request"), nil)
		return
	}
	scene := &entity.Scene{
		ProjectID:     req.ProjectID,
		Name:          req.Name,
		Slug:          req.Slug,
		Description:   req.Description,
		Pipeline:      req.Pipeline,
		MergeStrategy: req.MergeStrategy,
		Separator:     req.Separator,
		OutputFormat:  req.OutputFormat,
	}
	created, err := h.svc.Create(c.Request.Context(), callerFrom(c), scene)
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, created)
}

// List handles GET /scenes.
func (h *SceneHandler) List(c *gin.Context) {
	page := parsePage(c, h.maxPage)
	scenes, total, err := h.svc.List(c.Request.Context(), c.Query("project_id"), page.Opts())
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WritePage(c, scenes, page.Page, page.PageSize, total)
}

// Get handles GET /scenes/:id.
func (h *SceneHandler) Get(c *gin.Context) {
	scene, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, scene)
}

// Update handles PUT /scenes/:id.
func (h *SceneHandler) Update(c *gin.Context) {
	var req UpdateSceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, code.ErrValidation, "bind scene request"), nil)
		return
	}
	scene, err := h.svc.Update(c.Request.Context(), c.Param("id"), service.ScenePatch{
		Name:          req.Name,
		Description:   req.Description,
		Pipeline:      req.Pipeline,
		MergeStrategy: req.MergeStrategy,
		Separator:     req.Separator,
		OutputFormat:  req.OutputFormat,
	})
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, scene)
}

// Delete handles DELETE /scenes/:id.
func (h *SceneHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, gin.H{"id": id, "deleted": true})
}

// Resolve handles POST /scenes/:id/resolve.
func (h *SceneHandler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, code.ErrValidation, "bind resolve request"), nil)
		return
	}
	ttl := time.Duration(req.CacheTTLSeconds) * time.Second
	result, err := h.engine.Resolve(c.Request.Context(), c.Param("id"), req.Variables, callerFrom(c), ttl)
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, result)
}

// Dependencies handles GET /scenes/:id/dependencies.
func (h *SceneHandler) Dependencies(c *gin.Context) {
	graph, err := h.svc.Dependencies(c.Request.Context(), c.Param("id"))
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, graph)
}

package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/prompthub/prompthub/internal/pkg/core"
	"github.com/prompthub/prompthub/internal/prompthub/code"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/repo"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/service"
	"github.com/prompthub/prompthub/pkg/errorx"
)

// SharedHandler serves the shared-prompt repository endpoints.
type SharedHandler struct {
	svc     *service.PromptService
	maxPage int
}

// NewSharedHandler creates a SharedHandler.
func NewSharedHandler(svc *service.PromptService, maxPageSize int) *SharedHandler {
	return &SharedHandler{svc: svc, maxPage: maxPageSize}
}

// Browse handles GET /shared/prompts.
func (h *SharedHandler) Browse(c *gin.Context) {
	page := parsePage(c, h.maxPage)
	shared := true
	filter := repo.PromptFilter{
		IsShared: &shared,
		Tags:     c.QueryArray("tag"),
		Category: c.Query("category"),
		Search:   c.Query("search"),
	}
	prompts, total, err := h.svc.List(c.Request.Context(), filter, page.Opts())
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WritePage(c, prompts, page.Page, page.PageSize, total)
}

// Fork handles POST /shared/prompts/:id/fork.
func (h *SharedHandler) Fork(c *gin.Context) {
	var req ForkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, code.ErrValidation, "bind fork request"), nil)
		return
	}
	fork, err := h.svc.Fork(c.Request.Context(), callerFrom(c), c.Param("id"), req.TargetProjectID, req.Slug)
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}
	core.WriteResponse(c, nil, fork)
}

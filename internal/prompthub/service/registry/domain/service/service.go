// Package service implements the registry's business operations over the
// repo interfaces: prompt and scene lifecycle, dependency resolution, and
// scene composition.
package service

import (
	"context"
	"errors"

	"github.com/prompthub/prompthub/internal/prompthub/code"
	"github.com/prompthub/prompthub/internal/prompthub/service/render"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/repo"
	"github.com/prompthub/prompthub/pkg/errorx"
)

// Caller is the authenticated identity a request acts as.
type Caller struct {
	UserID    string
	ProjectID string
	IP        string
}

// Invalidator evicts resolve-cache entries after writes. The registry only
// signals which prompt or scene changed; the cache decides what to drop.
type Invalidator interface {
	InvalidatePrompt(ctx context.Context, promptID string) error
	InvalidateScene(ctx context.Context, sceneID string) error
}

// NoopInvalidator satisfies Invalidator when no cache is wired.
type NoopInvalidator struct{}

func (NoopInvalidator) InvalidatePrompt(context.Context, string) error { return nil }
func (NoopInvalidator) InvalidateScene(context.Context, string) error  { return nil }

// CallSink accepts resolved-call records without blocking the request path.
type CallSink interface {
	Enqueue(log *entity.CallLog)
}

// NoopSink satisfies CallSink when no sink is wired.
type NoopSink struct{}

func (NoopSink) Enqueue(*entity.CallLog) {}

// storeErr translates repo sentinels into coded business errors.
func storeErr(err error, what, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrNotFound):
		return errorx.WithCode(code.ErrNotFound, "%s %q not found", what, id)
	case errors.Is(err, repo.ErrConflict):
		return errorx.WithCode(code.ErrConflict, "%s %q already exists", what, id)
	}
	return errorx.WrapC(err, code.ErrInternal, "%s store failure", what)
}

// renderErr translates renderer failures into the render error code; the
// kind stays in the message for the API detail field.
func renderErr(err error) error {
	var rerr *render.Error
	if errors.As(err, &rerr) {
		return errorx.WithCode(code.ErrTemplateRender, "%s", rerr.Error())
	}
	return errorx.WrapC(err, code.ErrTemplateRender, "render failed")
}

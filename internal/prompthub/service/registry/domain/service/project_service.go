package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/prompthub/prompthub/internal/prompthub/code"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/repo"
	"github.com/prompthub/prompthub/pkg/errorx"
)

// ProjectService implements project lifecycle.
type ProjectService struct {
	projects repo.ProjectRepository
}

// NewProjectService wires a ProjectService.
func NewProjectService(projects repo.ProjectRepository) *ProjectService {
	return &ProjectService{projects: projects}
}

// Create stores a project.
func (s *ProjectService) Create(ctx context.Context, caller Caller, p *entity.Project) (*entity.Project, error) {
	if p.Name == "" {
		return nil, errorx.WithCode(code.ErrValidation, "project name must not be empty")
	}
	if err := entity.ValidateSlug(p.Slug); err != nil {
		return nil, errorx.WithCode(code.ErrValidation, "%v", err)
	}
	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.CreatedBy = caller.UserID
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.projects.Create(ctx, p); err != nil {
		return nil, storeErr(err, "project slug", p.Slug)
	}
	return p, nil
}

// Get returns a project with its live prompt and scene counts.
func (s *ProjectService) Get(ctx context.Context, id string) (*entity.Project, int64, int64, error) {
	p, err := s.projects.Get(ctx, id)
	if err != nil {
		return nil, 0, 0, storeErr(err, "project", id)
	}
	prompts, scenes, err := s.projects.Counts(ctx, id)
	if err != nil {
		return nil, 0, 0, errorx.WrapC(err, code.ErrInternal, "count project contents")
	}
	return p, prompts, scenes, nil
}

// List returns all projects.
func (s *ProjectService) List(ctx context.Context, page repo.PageOpts) ([]*entity.Project, int64, error) {
	if _, ok := sceneSortFields[page.SortBy]; !ok {
		return nil, 0, errorx.WithCode(code.ErrValidation, "unknown sort field %q", page.SortBy)
	}
	projects, total, err := s.projects.List(ctx, page)
	if err != nil {
		return nil, 0, storeErr(err, "project", "")
	}
	return projects, total, nil
}

// ProjectPatch carries project changes; nil fields stay untouched.
type ProjectPatch struct {
	Name        *string
	Description *string
}

// Update applies the patch.
func (s *ProjectService) Update(ctx context.Context, id string, patch ProjectPatch) (*entity.Project, error) {
	p, err := s.projects.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "project", id)
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if p.Name == "" {
		return nil, errorx.WithCode(code.ErrValidation, "project name must not be empty")
	}
	p.UpdatedAt = time.Now().UTC()
	if err := s.projects.Update(ctx, p); err != nil {
		return nil, storeErr(err, "project", id)
	}
	return p, nil
}

// Delete removes an empty project; projects still holding prompts or scenes
// are refused.
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	prompts, scenes, err := s.projects.Counts(ctx, id)
	if err != nil {
		return errorx.WrapC(err, code.ErrInternal, "count project contents")
	}
	if prompts > 0 || scenes > 0 {
		return errorx.WithCode(code.ErrConflict,
			"project %q still holds %d prompt(s) and %d scene(s)", id, prompts, scenes)
	}
	if err := s.projects.Delete(ctx, id); err != nil {
		return storeErr(err, "project", id)
	}
	return nil
}

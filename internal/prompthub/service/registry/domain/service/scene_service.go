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

const defaultSeparator = "\n\n"

// SceneService implements scene lifecycle. Every save validates the
// pipeline, gates cross-project references, runs a cycle pre-check, and
// re-derives the scene's reference-index edges atomically with the row.
type SceneService struct {
	scenes   repo.SceneRepository
	prompts  repo.PromptRepository
	refs     repo.RefRepository
	projects repo.ProjectRepository
	resolver *Resolver
	inval    Invalidator
}

// NewSceneService wires a SceneService.
func NewSceneService(
	scenes repo.SceneRepository,
	prompts repo.PromptRepository,
	refs repo.RefRepository,
	projects repo.ProjectRepository,
	resolver *Resolver,
	inval Invalidator,
) *SceneService {
	if inval == nil {
		inval = NoopInvalidator{}
	}
	return &SceneService{
		scenes:   scenes,
		prompts:  prompts,
		refs:     refs,
		projects: projects,
		resolver: resolver,
		inval:    inval,
	}
}

func (s *SceneService) validateScene(ctx context.Context, scene *entity.Scene) error {
	if scene.Name == "" {
		return errorx.WithCode(code.ErrValidation, "scene name must not be empty")
	}
	if err := entity.ValidateSlug(scene.Slug); err != nil {
		return errorx.WithCode(code.ErrValidation, "%v", err)
	}
	if scene.MergeStrategy == "" {
		scene.MergeStrategy = entity.MergeConcat
	}
	if !entity.ValidMergeStrategy(scene.MergeStrategy) {
		return errorx.WithCode(code.ErrValidation, "unknown merge strategy %q", scene.MergeStrategy)
	}
	if scene.Separator == "" {
		scene.Separator = defaultSeparator
	}
	if len(scene.Pipeline.Steps) == 0 {
		return errorx.WithCode(code.ErrValidation, "pipeline must have at least one step")
	}
	if err := scene.Pipeline.Validate(); err != nil {
		return errorx.WithCode(code.ErrValidation, "%v", err)
	}

	prompts, err := s.prompts.GetByIDs(ctx, scene.Pipeline.PromptIDs())
	if err != nil {
		return errorx.WrapC(err, code.ErrInternal, "load referenced prompts")
	}
	for _, step := range scene.Pipeline.Steps {
		ref := step.PromptRef
		p, ok := prompts[ref.PromptID]
		if !ok {
			return errorx.WithCode(code.ErrNotFound, "step %q: prompt %q not found", step.ID, ref.PromptID)
		}
		if p.ProjectID != scene.ProjectID && !p.IsShared {
			return errorx.WithCode(code.ErrPermissionDenied,
				"step %q: prompt %q belongs to another project and is not shared", step.ID, ref.PromptID)
		}
		if ref.Pinned() {
			if _, err := s.prompts.GetVersion(ctx, ref.PromptID, ref.Version); err != nil {
				return storeErr(err, "version", ref.PromptID+"@"+ref.Version)
			}
		}
	}

	// A pipeline whose reference closure contains a cycle must be rejected at
	// save time, not discovered at the first resolve.
	if _, err := s.resolver.Plan(ctx, scene); err != nil {
		if errorx.IsCode(err, code.ErrCircularDependency) {
			return err
		}
	}
	return nil
}

// deriveRefs materializes one composes edge per pipeline step.
func deriveRefs(scene *entity.Scene, now time.Time) []*entity.PromptRef {
	refs := make([]*entity.PromptRef, 0, len(scene.Pipeline.Steps))
	for _, step := range scene.Pipeline.Steps {
		pin := ""
		if step.PromptRef.Pinned() {
			pin = step.PromptRef.Version
		}
		refs = append(refs, &entity.PromptRef{
			ID:             uuid.NewString(),
			SourceType:     entity.RefSourceScene,
			SourceID:       scene.ID,
			StepID:         step.ID,
			TargetPromptID: step.PromptRef.PromptID,
			RefType:        entity.RefComposes,
			PinnedVersion:  pin,
			CreatedAt:      now,
		})
	}
	return refs
}

// Create validates and stores a scene with its derived edges.
func (s *SceneService) Create(ctx context.Context, caller Caller, scene *entity.Scene) (*entity.Scene, error) {
	if _, err := s.projects.Get(ctx, scene.ProjectID); err != nil {
		return nil, storeErr(err, "project", scene.ProjectID)
	}
	now := time.Now().UTC()
	scene.ID = uuid.NewString()
	scene.CreatedBy = caller.UserID
	scene.CreatedAt = now
	scene.UpdatedAt = now
	if err := s.validateScene(ctx, scene); err != nil {
		return nil, err
	}
	if err := s.scenes.Create(ctx, scene, deriveRefs(scene, now)); err != nil {
		return nil, storeErr(err, "scene slug", scene.Slug)
	}
	return scene, nil
}

// Get returns a scene by id.
func (s *SceneService) Get(ctx context.Context, id string) (*entity.Scene, error) {
	scene, err := s.scenes.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "scene", id)
	}
	return scene, nil
}

var sceneSortFields = map[string]struct{}{
	"": {}, "created_at": {}, "updated_at": {}, "name": {}, "slug": {},
}

// List returns scenes, optionally restricted to one project.
func (s *SceneService) List(ctx context.Context, projectID string, page repo.PageOpts) ([]*entity.Scene, int64, error) {
	if _, ok := sceneSortFields[page.SortBy]; !ok {
		return nil, 0, errorx.WithCode(code.ErrValidation, "unknown sort field %q", page.SortBy)
	}
	scenes, total, err := s.scenes.List(ctx, projectID, page)
	if err != nil {
		return nil, 0, storeErr(err, "scene", "")
	}
	return scenes, total, nil
}

// ScenePatch carries scene changes; nil fields stay untouched. Slugs are
// immutable after create.
type ScenePatch struct {
	Name          *string
	Description   *string
	Pipeline      *entity.Pipeline
	MergeStrategy *entity.MergeStrategy
	Separator     *string
	OutputFormat  *string
}

// Update applies the patch, re-validates, and atomically replaces the
// scene's derived edges.
func (s *SceneService) Update(ctx context.Context, id string, patch ScenePatch) (*entity.Scene, error) {
	scene, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		scene.Name = *patch.Name
	}
	if patch.Description != nil {
		scene.Description = *patch.Description
	}
	if patch.Pipeline != nil {
		scene.Pipeline = *patch.Pipeline
	}
	if patch.MergeStrategy != nil {
		scene.MergeStrategy = *patch.MergeStrategy
	}
	if patch.Separator != nil {
		scene.Separator = *patch.Separator
	}
	if patch.OutputFormat != nil {
		scene.OutputFormat = *patch.OutputFormat
	}
	if err := s.validateScene(ctx, scene); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	scene.UpdatedAt = now
	if err := s.scenes.Update(ctx, scene, deriveRefs(scene, now)); err != nil {
		return nil, storeErr(err, "scene", id)
	}
	if err := s.inval.InvalidateScene(ctx, id); err != nil {
		return nil, errorx.WrapC(err, code.ErrInternal, "invalidate cache")
	}
	return scene, nil
}

// Delete removes the scene and its derived edges.
func (s *SceneService) Delete(ctx context.Context, id string) error {
	if err := s.scenes.Delete(ctx, id); err != nil {
		return storeErr(err, "scene", id)
	}
	if err := s.inval.InvalidateScene(ctx, id); err != nil {
		return errorx.WrapC(err, code.ErrInternal, "invalidate cache")
	}
	return nil
}

// Dependencies returns the scene's reference graph for visualization.
func (s *SceneService) Dependencies(ctx context.Context, id string) (*DependencyGraph, error) {
	scene, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.resolver.Graph(ctx, scene)
}

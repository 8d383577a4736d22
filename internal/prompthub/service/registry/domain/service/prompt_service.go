package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/prompthub/prompthub/internal/prompthub/code"
	"github.com/prompthub/prompthub/internal/prompthub/service/render"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/repo"
	"github.com/prompthub/prompthub/pkg/errorx"
)

const initialVersion = "1.0.0"

// PromptService implements prompt lifecycle: create with an initial
// published version, working-copy updates, publish with a semver bump,
// sharing, forking, and single-prompt rendering.
type PromptService struct {
	prompts  repo.PromptRepository
	scenes   repo.SceneRepository
	refs     repo.RefRepository
	projects repo.ProjectRepository
	renderer *render.Renderer
	inval    Invalidator
	sink     CallSink
}

// NewPromptService wires a PromptService.
func NewPromptService(
	prompts repo.PromptRepository,
	scenes repo.SceneRepository,
	refs repo.RefRepository,
	projects repo.ProjectRepository,
	renderer *render.Renderer,
	inval Invalidator,
	sink CallSink,
) *PromptService {
	if inval == nil {
		inval = NoopInvalidator{}
	}
	if sink == nil {
		sink = NoopSink{}
	}
	return &PromptService{
		prompts:  prompts,
		scenes:   scenes,
		refs:     refs,
		projects: projects,
		renderer: renderer,
		inval:    inval,
		sink:     sink,
	}
}

var validFormats = map[entity.PromptFormat]struct{}{
	entity.FormatText: {}, entity.FormatJSON: {}, entity.FormatYAML: {}, entity.FormatChat: {},
}

var validEngines = map[entity.TemplateEngine]struct{}{
	entity.EngineJinja: {}, entity.EngineSimple: {}, entity.EngineNone: {},
}

func validatePromptFields(p *entity.Prompt) error {
	if p.Name == "" {
		return errorx.WithCode(code.ErrValidation, "prompt name must not be empty")
	}
	if err := entity.ValidateSlug(p.Slug); err != nil {
		return errorx.WithCode(code.ErrValidation, "%v", err)
	}
	if p.Format == "" {
		p.Format = entity.FormatText
	}
	if _, ok := validFormats[p.Format]; !ok {
		return errorx.WithCode(code.ErrValidation, "unknown format %q", p.Format)
	}
	if p.TemplateEngine == "" {
		p.TemplateEngine = entity.EngineJinja
	}
	if _, ok := validEngines[p.TemplateEngine]; !ok {
		return errorx.WithCode(code.ErrValidation, "unknown template engine %q", p.TemplateEngine)
	}
	if p.TemplateEngine == entity.EngineNone && len(p.Variables) > 0 {
		return errorx.WithCode(code.ErrValidation, "engine %q does not accept variables", entity.EngineNone)
	}
	if err := entity.ValidateVariableSpecs(p.Variables); err != nil {
		return errorx.WithCode(code.ErrValidation, "%v", err)
	}
	p.Tags = entity.NormalizeTags(p.Tags)
	return nil
}

// Create stores the prompt and its initial published 1.0.0 version.
func (s *PromptService) Create(ctx context.Context, caller Caller, p *entity.Prompt) (*entity.Prompt, error) {
	if err := validatePromptFields(p); err != nil {
		return nil, err
	}
	if _, err := s.projects.Get(ctx, p.ProjectID); err != nil {
		return nil, storeErr(err, "project", p.ProjectID)
	}

	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.CurrentVersion = initialVersion
	p.CreatedBy = caller.UserID
	p.CreatedAt = now
	p.UpdatedAt = now
	p.DeletedAt = nil

	initial := &entity.Version{
		ID:        uuid.NewString(),
		PromptID:  p.ID,
		Version:   initialVersion,
		Content:   p.Content,
		Variables: p.Variables,
		Changelog: "Initial version",
		Status:    entity.StatusPublished,
		CreatedBy: caller.UserID,
		CreatedAt: now,
	}
	if err := s.prompts.Create(ctx, p, initial); err != nil {
		return nil, storeErr(err, "prompt slug", p.Slug)
	}
	return p, nil
}

// Get returns a live prompt by id.
func (s *PromptService) Get(ctx context.Context, id string) (*entity.Prompt, error) {
	p, err := s.prompts.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "prompt", id)
	}
	return p, nil
}

var promptSortFields = map[string]struct{}{
	"": {}, "created_at": {}, "updated_at": {}, "name": {}, "slug": {}, "current_version": {},
}

// List returns live prompts matching the filter.
func (s *PromptService) List(ctx context.Context, filter repo.PromptFilter, page repo.PageOpts) ([]*entity.Prompt, int64, error) {
	if _, ok := promptSortFields[page.SortBy]; !ok {
		return nil, 0, errorx.WithCode(code.ErrValidation, "unknown sort field %q", page.SortBy)
	}
	filter.Tags = entity.NormalizeTags(filter.Tags)
	prompts, total, err := s.prompts.List(ctx, filter, page)
	if err != nil {
		return nil, 0, storeErr(err, "prompt", "")
	}
	return prompts, total, nil
}

// PromptPatch carries working-copy changes; nil fields stay untouched.
// Slugs are immutable after create.
type PromptPatch struct {
	Name           *string
	Description    *string
	Content        *string
	Format         *entity.PromptFormat
	TemplateEngine *entity.TemplateEngine
	Variables      []entity.VariableSpec
	Tags           []string
	Category       *string
}

// Update applies the patch to the working copy. Published versions are not
// touched; the next publish snapshots the new content.
func (s *PromptService) Update(ctx context.Context, id string, patch PromptPatch) (*entity.Prompt, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Content != nil {
		p.Content = *patch.Content
	}
	if patch.Format != nil {
		p.Format = *patch.Format
	}
	if patch.TemplateEngine != nil {
		p.TemplateEngine = *patch.TemplateEngine
	}
	if patch.Variables != nil {
		p.Variables = patch.Variables
	}
	if patch.Tags != nil {
		p.Tags = patch.Tags
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if err := validatePromptFields(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = time.Now().UTC()
	if err := s.prompts.Update(ctx, p); err != nil {
		return nil, storeErr(err, "prompt", id)
	}
	if err := s.inval.InvalidatePrompt(ctx, id); err != nil {
		return nil, errorx.WrapC(err, code.ErrInternal, "invalidate cache")
	}
	return p, nil
}

// Delete soft-deletes a prompt. Prompts still referenced by scenes or other
// prompts cannot be deleted.
func (s *PromptService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	in, err := s.refs.InEdges(ctx, id)
	if err != nil {
		return errorx.WrapC(err, code.ErrInternal, "read reference index")
	}
	if len(in) > 0 {
		return errorx.WithCode(code.ErrConflict, "prompt %q is referenced by %d source(s)", id, len(in))
	}
	if err := s.prompts.SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		return storeErr(err, "prompt", id)
	}
	if err := s.inval.InvalidatePrompt(ctx, id); err != nil {
		return errorx.WrapC(err, code.ErrInternal, "invalidate cache")
	}
	return nil
}

// Share toggles cross-project visibility. Unsharing is refused while
// another project still references the prompt.
func (s *PromptService) Share(ctx context.Context, id string, shared bool) (*entity.Prompt, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !shared {
		if err := s.checkNoForeignReferences(ctx, p); err != nil {
			return nil, err
		}
	}
	p.IsShared = shared
	p.UpdatedAt = time.Now().UTC()
	if err := s.prompts.Update(ctx, p); err != nil {
		return nil, storeErr(err, "prompt", id)
	}
	if err := s.inval.InvalidatePrompt(ctx, id); err != nil {
		return nil, errorx.WrapC(err, code.ErrInternal, "invalidate cache")
	}
	return p, nil
}

func (s *PromptService) checkNoForeignReferences(ctx context.Context, p *entity.Prompt) error {
	sceneIDs, err := s.refs.ScenesReferencing(ctx, p.ID)
	if err != nil {
		return errorx.WrapC(err, code.ErrInternal, "read reference index")
	}
	for _, sceneID := range sceneIDs {
		scene, err := s.scenes.Get(ctx, sceneID)
		if err != nil {
			continue
		}
		if scene.ProjectID != p.ProjectID {
			return errorx.WithCode(code.ErrConflict,
				"prompt %q is referenced by scene %q in another project", p.ID, sceneID)
		}
	}
	in, err := s.refs.InEdges(ctx, p.ID)
	if err != nil {
		return errorx.WrapC(err, code.ErrInternal, "read reference index")
	}
	var sourceIDs []string
	for _, edge := range in {
		if edge.SourceType == entity.RefSourcePrompt {
			sourceIDs = append(sourceIDs, edge.SourceID)
		}
	}
	if len(sourceIDs) == 0 {
		return nil
	}
	sources, err := s.prompts.GetByIDs(ctx, sourceIDs)
	if err != nil {
		return errorx.WrapC(err, code.ErrInternal, "load referencing prompts")
	}
	for _, src := range sources {
		if src.ProjectID != p.ProjectID {
			return errorx.WithCode(code.ErrConflict,
				"prompt %q is referenced by prompt %q in another project", p.ID, src.ID)
		}
	}
	return nil
}

// ListVersions returns the version history, newest first.
func (s *PromptService) ListVersions(ctx context.Context, promptID string) ([]*entity.Version, error) {
	if _, err := s.Get(ctx, promptID); err != nil {
		return nil, err
	}
	versions, err := s.prompts.ListVersions(ctx, promptID)
	if err != nil {
		return nil, storeErr(err, "prompt", promptID)
	}
	return versions, nil
}

// GetVersion returns one immutable version snapshot.
func (s *PromptService) GetVersion(ctx context.Context, promptID, version string) (*entity.Version, error) {
	if _, err := s.Get(ctx, promptID); err != nil {
		return nil, err
	}
	v, err := s.prompts.GetVersion(ctx, promptID, version)
	if err != nil {
		return nil, storeErr(err, "version", version)
	}
	return v, nil
}

// PublishRequest selects the next version: an explicit target version, or a
// bump of major/minor/patch (default patch).
type PublishRequest struct {
	Version   string
	Bump      string
	Changelog string
}

// Publish snapshots the working copy as a new immutable published version
// and moves current_version forward atomically.
func (s *PromptService) Publish(ctx context.Context, caller Caller, promptID string, req PublishRequest) (*entity.Version, error) {
	p, err := s.Get(ctx, promptID)
	if err != nil {
		return nil, err
	}
	current, err := semver.StrictNewVersion(p.CurrentVersion)
	if err != nil {
		return nil, errorx.WrapC(err, code.ErrInternal, "prompt %q has malformed current version %q", promptID, p.CurrentVersion)
	}

	var next semver.Version
	if req.Version != "" {
		target, err := semver.StrictNewVersion(req.Version)
		if err != nil {
			return nil, errorx.WithCode(code.ErrValidation, "invalid version %q: %v", req.Version, err)
		}
		if target.Prerelease() != "" || target.Metadata() != "" {
			return nil, errorx.WithCode(code.ErrValidation, "version %q: pre-release and build suffixes are not allowed", req.Version)
		}
		if !target.GreaterThan(current) {
			return nil, errorx.WithCode(code.ErrValidation, "version %q must be greater than current %q", req.Version, p.CurrentVersion)
		}
		next = *target
	} else {
		switch req.Bump {
		case "major":
			next = current.IncMajor()
		case "minor":
			next = current.IncMinor()
		case "patch", "":
			next = current.IncPatch()
		default:
			return nil, errorx.WithCode(code.ErrValidation, "unknown bump %q (want major, minor or patch)", req.Bump)
		}
	}

	version := &entity.Version{
		ID:        uuid.NewString(),
		PromptID:  promptID,
		Version:   next.String(),
		Content:   p.Content,
		Variables: p.Variables,
		Changelog: req.Changelog,
		Status:    entity.StatusPublished,
		CreatedBy: caller.UserID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.prompts.Publish(ctx, promptID, version); err != nil {
		return nil, storeErr(err, "version", version.Version)
	}
	if err := s.inval.InvalidatePrompt(ctx, promptID); err != nil {
		return nil, errorx.WrapC(err, code.ErrInternal, "invalidate cache")
	}
	return version, nil
}

// Fork copies a shared prompt into another project at version 1.0.0 and
// records an includes edge back to the source for provenance.
func (s *PromptService) Fork(ctx context.Context, caller Caller, sourceID, targetProjectID, slug string) (*entity.Prompt, error) {
	src, err := s.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if src.ProjectID != targetProjectID && !src.IsShared {
		return nil, errorx.WithCode(code.ErrPermissionDenied, "prompt %q is not shared", sourceID)
	}
	if _, err := s.projects.Get(ctx, targetProjectID); err != nil {
		return nil, storeErr(err, "project", targetProjectID)
	}
	if slug == "" {
		slug = src.Slug
	}

	now := time.Now().UTC()
	fork := &entity.Prompt{
		ID:             uuid.NewString(),
		ProjectID:      targetProjectID,
		Name:           src.Name,
		Slug:           slug,
		Description:    src.Description,
		Content:        src.Content,
		Format:         src.Format,
		TemplateEngine: src.TemplateEngine,
		Variables:      src.Variables,
		Tags:           src.Tags,
		Category:       src.Category,
		CurrentVersion: initialVersion,
		CreatedBy:      caller.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := validatePromptFields(fork); err != nil {
		return nil, err
	}
	initial := &entity.Version{
		ID:        uuid.NewString(),
		PromptID:  fork.ID,
		Version:   initialVersion,
		Content:   src.Content,
		Variables: src.Variables,
		Changelog: "Forked from " + src.Slug + "@" + src.CurrentVersion,
		Status:    entity.StatusPublished,
		CreatedBy: caller.UserID,
		CreatedAt: now,
	}
	if err := s.prompts.Create(ctx, fork, initial); err != nil {
		return nil, storeErr(err, "prompt slug", slug)
	}

	edge := &entity.PromptRef{
		ID:             uuid.NewString(),
		SourceType:     entity.RefSourcePrompt,
		SourceID:       fork.ID,
		TargetPromptID: sourceID,
		RefType:        entity.RefIncludes,
		PinnedVersion:  src.CurrentVersion,
		CreatedAt:      now,
	}
	if err := s.refs.Create(ctx, edge); err != nil {
		return nil, errorx.WrapC(err, code.ErrInternal, "record fork provenance")
	}
	return fork, nil
}

// RenderResult is a single-prompt render outcome.
type RenderResult struct {
	PromptID      string `json:"prompt_id"`
	Version       string `json:"version"`
	Content       string `json:"content"`
	TokenEstimate int    `json:"token_estimate"`
}

// Render renders one published version of a prompt (current_version when no
// version is given) and logs the call.
func (s *PromptService) Render(ctx context.Context, caller Caller, promptID, versionLabel string, vars map[string]any) (*RenderResult, error) {
	p, err := s.Get(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if versionLabel == "" || versionLabel == entity.VersionLatest {
		versionLabel = p.CurrentVersion
	}
	v, err := s.prompts.GetVersion(ctx, promptID, versionLabel)
	if err != nil {
		return nil, storeErr(err, "version", versionLabel)
	}

	start := time.Now()
	content, err := s.renderer.Render(p.TemplateEngine, v.Content, v.Variables, vars)
	if err != nil {
		return nil, renderErr(err)
	}
	result := &RenderResult{
		PromptID:      promptID,
		Version:       v.Version,
		Content:       content,
		TokenEstimate: tokenEstimate(content),
	}
	s.sink.Enqueue(&entity.CallLog{
		ID:              uuid.NewString(),
		PromptID:        promptID,
		Version:         v.Version,
		CallerID:        caller.UserID,
		CallerIP:        caller.IP,
		InputVariables:  vars,
		RenderedContent: content,
		TokenCount:      result.TokenEstimate,
		ElapsedMS:       time.Since(start).Milliseconds(),
		CreatedAt:       time.Now().UTC(),
	})
	return result, nil
}

// Refs returns the prompt's outgoing and incoming reference edges.
func (s *PromptService) Refs(ctx context.Context, promptID string) (out, in []*entity.PromptRef, err error) {
	if _, err := s.Get(ctx, promptID); err != nil {
		return nil, nil, err
	}
	out, err = s.refs.OutEdges(ctx, promptID)
	if err != nil {
		return nil, nil, errorx.WrapC(err, code.ErrInternal, "read reference index")
	}
	in, err = s.refs.InEdges(ctx, promptID)
	if err != nil {
		return nil, nil, errorx.WrapC(err, code.ErrInternal, "read reference index")
	}
	return out, in, nil
}

// RefSpec describes an explicit prompt-to-prompt reference edge.
type RefSpec struct {
	TargetPromptID string
	RefType        entity.RefType
	PinnedVersion  string
	OverrideConfig map[string]any
}

// AddRef records an explicit prompt-to-prompt edge. The target becomes a
// hidden prerequisite during resolution and the override config merges into
// steps rendering the source prompt.
func (s *PromptService) AddRef(ctx context.Context, sourceID string, spec RefSpec) (*entity.PromptRef, error) {
	if spec.RefType != entity.RefExtends && spec.RefType != entity.RefIncludes {
		return nil, errorx.WithCode(code.ErrValidation,
			"ref_type must be %q or %q, got %q", entity.RefExtends, entity.RefIncludes, spec.RefType)
	}
	if spec.TargetPromptID == sourceID {
		return nil, errorx.WithCode(code.ErrValidation, "prompt cannot reference itself")
	}
	src, err := s.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	target, err := s.Get(ctx, spec.TargetPromptID)
	if err != nil {
		return nil, err
	}
	if target.ProjectID != src.ProjectID && !target.IsShared {
		return nil, errorx.WithCode(code.ErrPermissionDenied, "prompt %q is not shared", target.ID)
	}
	pin := spec.PinnedVersion
	if pin == entity.VersionLatest {
		pin = ""
	}
	if pin != "" {
		if _, err := s.prompts.GetVersion(ctx, target.ID, pin); err != nil {
			return nil, storeErr(err, "version", pin)
		}
	}
	if err := s.checkNoCycle(ctx, sourceID, target.ID); err != nil {
		return nil, err
	}

	edge := &entity.PromptRef{
		ID:             uuid.NewString(),
		SourceType:     entity.RefSourcePrompt,
		SourceID:       sourceID,
		TargetPromptID: target.ID,
		RefType:        spec.RefType,
		OverrideConfig: spec.OverrideConfig,
		PinnedVersion:  pin,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.refs.Create(ctx, edge); err != nil {
		return nil, errorx.WrapC(err, code.ErrInternal, "write reference index")
	}
	if err := s.inval.InvalidatePrompt(ctx, sourceID); err != nil {
		return nil, errorx.WrapC(err, code.ErrInternal, "invalidate cache")
	}
	return edge, nil
}

// checkNoCycle refuses an edge source -> target that would close a loop in
// the prompt reference graph.
func (s *PromptService) checkNoCycle(ctx context.Context, sourceID, targetID string) error {
	visited := make(map[string]struct{})
	var walk func(id string, path []string) error
	walk = func(id string, path []string) error {
		if id == sourceID {
			return errorx.WithCode(code.ErrCircularDependency,
				"circular reference: %s", strings.Join(append(path, id), " -> "))
		}
		if _, ok := visited[id]; ok {
			return nil
		}
		visited[id] = struct{}{}
		edges, err := s.refs.OutEdges(ctx, id)
		if err != nil {
			return errorx.WrapC(err, code.ErrInternal, "read reference index")
		}
		for _, e := range edges {
			if err := walk(e.TargetPromptID, append(path, id)); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(targetID, []string{sourceID})
}

// DeleteRef removes an explicit prompt-to-prompt edge by id.
func (s *PromptService) DeleteRef(ctx context.Context, sourceID, refID string) error {
	if _, err := s.Get(ctx, sourceID); err != nil {
		return err
	}
	out, err := s.refs.OutEdges(ctx, sourceID)
	if err != nil {
		return errorx.WrapC(err, code.ErrInternal, "read reference index")
	}
	for _, e := range out {
		if e.ID != refID {
			continue
		}
		if err := s.refs.Delete(ctx, e.ID); err != nil {
			return errorx.WrapC(err, code.ErrInternal, "write reference index")
		}
		if err := s.inval.InvalidatePrompt(ctx, sourceID); err != nil {
			return errorx.WrapC(err, code.ErrInternal, "invalidate cache")
		}
		return nil
	}
	return errorx.WithCode(code.ErrNotFound, "ref %q not found on prompt %q", refID, sourceID)
}

// Impact returns the scenes whose pipelines reference the prompt.
func (s *PromptService) Impact(ctx context.Context, promptID string) ([]*entity.Scene, error) {
	if _, err := s.Get(ctx, promptID); err != nil {
		return nil, err
	}
	sceneIDs, err := s.refs.ScenesReferencing(ctx, promptID)
	if err != nil {
		return nil, errorx.WrapC(err, code.ErrInternal, "read reference index")
	}
	scenes := make([]*entity.Scene, 0, len(sceneIDs))
	for _, id := range sceneIDs {
		scene, err := s.scenes.Get(ctx, id)
		if err != nil {
			continue
		}
		scenes = append(scenes, scene)
	}
	return scenes, nil
}

// tokenEstimate is the cheap uniform estimate: one token per four characters,
// rounded up.
func tokenEstimate(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

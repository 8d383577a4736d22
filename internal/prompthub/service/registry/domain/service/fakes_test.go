package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/repo"
)

// memPromptRepo is an in-memory PromptRepository for service tests.
type memPromptRepo struct {
	mu       sync.Mutex
	prompts  map[string]*entity.Prompt
	versions map[string][]*entity.Version // keyed by prompt id
}

func newMemPromptRepo() *memPromptRepo {
	return &memPromptRepo{
		prompts:  make(map[string]*entity.Prompt),
		versions: make(map[string][]*entity.Version),
	}
}

func (m *memPromptRepo) Create(_ context.Context, p *entity.Prompt, initial *entity.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.prompts {
		if existing.ProjectID == p.ProjectID && existing.Slug == p.Slug && existing.DeletedAt == nil {
			return repo.ErrConflict
		}
	}
	cp := *p
	m.prompts[p.ID] = &cp
	iv := *initial
	m.versions[p.ID] = append(m.versions[p.ID], &iv)
	return nil
}

func (m *memPromptRepo) Get(_ context.Context, id string) (*entity.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prompts[id]
	if !ok || p.DeletedAt != nil {
		return nil, repo.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPromptRepo) GetBySlug(_ context.Context, projectID, slug string) (*entity.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.prompts {
		if p.ProjectID == projectID && p.Slug == slug && p.DeletedAt == nil {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memPromptRepo) GetByIDs(_ context.Context, ids []string) (map[string]*entity.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*entity.Prompt, len(ids))
	for _, id := range ids {
		if p, ok := m.prompts[id]; ok && p.DeletedAt == nil {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *memPromptRepo) List(_ context.Context, filter repo.PromptFilter, page repo.PageOpts) ([]*entity.Prompt, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*entity.Prompt
	for _, p := range m.prompts {
		if p.DeletedAt != nil {
			continue
		}
		if filter.ProjectID != "" && p.ProjectID != filter.ProjectID {
			continue
		}
		if filter.IsShared != nil && p.IsShared != *filter.IsShared {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Search)) {
			continue
		}
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Slug < all[j].Slug })
	return all, int64(len(all)), nil
}

func (m *memPromptRepo) Update(_ context.Context, p *entity.Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prompts[p.ID]; !ok {
		return repo.ErrNotFound
	}
	cp := *p
	m.prompts[p.ID] = &cp
	return nil
}

func (m *memPromptRepo) SoftDelete(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prompts[id]
	if !ok {
		return repo.ErrNotFound
	}
	p.DeletedAt = &at
	return nil
}

func (m *memPromptRepo) ListVersions(_ context.Context, promptID string) ([]*entity.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.Version, 0, len(m.versions[promptID]))
	for i := len(m.versions[promptID]) - 1; i >= 0; i-- {
		cv := *m.versions[promptID][i]
		out = append(out, &cv)
	}
	return out, nil
}

func (m *memPromptRepo) GetVersion(_ context.Context, promptID, version string) (*entity.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions[promptID] {
		if v.Version == version {
			cv := *v
			return &cv, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memPromptRepo) Publish(_ context.Context, promptID string, version *entity.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prompts[promptID]
	if !ok {
		return repo.ErrNotFound
	}
	for _, v := range m.versions[promptID] {
		if v.Version == version.Version {
			return repo.ErrConflict
		}
	}
	cv := *version
	m.versions[promptID] = append(m.versions[promptID], &cv)
	p.CurrentVersion = version.Version
	return nil
}

// memRefRepo is an in-memory RefRepository.
type memRefRepo struct {
	mu    sync.Mutex
	edges []*entity.PromptRef
}

func newMemRefRepo() *memRefRepo { return &memRefRepo{} }

func (m *memRefRepo) Create(_ context.Context, ref *entity.PromptRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ref
	m.edges = append(m.edges, &cp)
	return nil
}

func (m *memRefRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.edges {
		if e.ID == id {
			m.edges = append(m.edges[:i], m.edges[i+1:]...)
			return nil
		}
	}
	return repo.ErrNotFound
}

func (m *memRefRepo) OutEdges(_ context.Context, promptID string) ([]*entity.PromptRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.PromptRef
	for _, e := range m.edges {
		if e.SourceType == entity.RefSourcePrompt && e.SourceID == promptID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRefRepo) InEdges(_ context.Context, promptID string) ([]*entity.PromptRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.PromptRef
	for _, e := range m.edges {
		if e.TargetPromptID == promptID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRefRepo) EdgesForScene(_ context.Context, sceneID string) ([]*entity.PromptRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.PromptRef
	for _, e := range m.edges {
		if e.SourceType == entity.RefSourceScene && e.SourceID == sceneID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRefRepo) ScenesReferencing(_ context.Context, promptID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	for _, e := range m.edges {
		if e.SourceType == entity.RefSourceScene && e.TargetPromptID == promptID {
			if _, dup := seen[e.SourceID]; !dup {
				seen[e.SourceID] = struct{}{}
				out = append(out, e.SourceID)
			}
		}
	}
	return out, nil
}

// replaceSceneEdges swaps the derived edge set of a scene, mirroring what the
// sqlite store does inside the scene write transaction.
func (m *memRefRepo) replaceSceneEdges(sceneID string, refs []*entity.PromptRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.edges[:0]
	for _, e := range m.edges {
		if !(e.SourceType == entity.RefSourceScene && e.SourceID == sceneID) {
			kept = append(kept, e)
		}
	}
	m.edges = kept
	for _, r := range refs {
		cp := *r
		m.edges = append(m.edges, &cp)
	}
}

// memSceneRepo is an in-memory SceneRepository backed by memRefRepo for the
// derived edges.
type memSceneRepo struct {
	mu     sync.Mutex
	scenes map[string]*entity.Scene
	refs   *memRefRepo
}

func newMemSceneRepo(refs *memRefRepo) *memSceneRepo {
	return &memSceneRepo{scenes: make(map[string]*entity.Scene), refs: refs}
}

func (m *memSceneRepo) Create(_ context.Context, scene *entity.Scene, refs []*entity.PromptRef) error {
	m.mu.Lock()
	for _, existing := range m.scenes {
		if existing.ProjectID == scene.ProjectID && existing.Slug == scene.Slug {
			m.mu.Unlock()
			return repo.ErrConflict
		}
	}
	cp := *scene
	m.scenes[scene.ID] = &cp
	m.mu.Unlock()
	m.refs.replaceSceneEdges(scene.ID, refs)
	return nil
}

func (m *memSceneRepo) Get(_ context.Context, id string) (*entity.Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scenes[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSceneRepo) GetBySlug(_ context.Context, projectID, slug string) (*entity.Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.scenes {
		if s.ProjectID == projectID && s.Slug == slug {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memSceneRepo) List(_ context.Context, projectID string, page repo.PageOpts) ([]*entity.Scene, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Scene
	for _, s := range m.scenes {
		if projectID != "" && s.ProjectID != projectID {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, int64(len(out)), nil
}

func (m *memSceneRepo) Update(_ context.Context, scene *entity.Scene, refs []*entity.PromptRef) error {
	m.mu.Lock()
	if _, ok := m.scenes[scene.ID]; !ok {
		m.mu.Unlock()
		return repo.ErrNotFound
	}
	cp := *scene
	m.scenes[scene.ID] = &cp
	m.mu.Unlock()
	if refs != nil {
		m.refs.replaceSceneEdges(scene.ID, refs)
	}
	return nil
}

func (m *memSceneRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.scenes[id]; !ok {
		m.mu.Unlock()
		return repo.ErrNotFound
	}
	delete(m.scenes, id)
	m.mu.Unlock()
	m.refs.replaceSceneEdges(id, nil)
	return nil
}

// memProjectRepo is an in-memory ProjectRepository.
type memProjectRepo struct {
	mu       sync.Mutex
	projects map[string]*entity.Project
}

func newMemProjectRepo(ids ...string) *memProjectRepo {
	m := &memProjectRepo{projects: make(map[string]*entity.Project)}
	for _, id := range ids {
		m.projects[id] = &entity.Project{ID: id, Name: id, Slug: id}
	}
	return m
}

func (m *memProjectRepo) Create(_ context.Context, p *entity.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.projects {
		if existing.Slug == p.Slug {
			return repo.ErrConflict
		}
	}
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *memProjectRepo) Get(_ context.Context, id string) (*entity.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProjectRepo) GetBySlug(_ context.Context, slug string) (*entity.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.projects {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memProjectRepo) List(_ context.Context, page repo.PageOpts) ([]*entity.Project, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Project
	for _, p := range m.projects {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, int64(len(out)), nil
}

func (m *memProjectRepo) Update(_ context.Context, p *entity.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; !ok {
		return repo.ErrNotFound
	}
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *memProjectRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.projects, id)
	return nil
}

func (m *memProjectRepo) Counts(context.Context, string) (int64, int64, error) {
	return 0, 0, nil
}

// recordSink captures enqueued call logs for assertions.
type recordSink struct {
	mu   sync.Mutex
	logs []*entity.CallLog
}

func (r *recordSink) Enqueue(log *entity.CallLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
}

func (r *recordSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}

func (r *recordSink) last() *entity.CallLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.logs) == 0 {
		return nil
	}
	return r.logs[len(r.logs)-1]
}

// mapCache is a deterministic in-process ResolveCache.
type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	sets    int
}

func newMapCache() *mapCache { return &mapCache{entries: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, fp string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[fp], nil
}

func (c *mapCache) Set(_ context.Context, fp string, value []byte, _ time.Duration, _ []string, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fp] = value
	c.sets++
	return nil
}

func (c *mapCache) Do(_ string, fn func() (any, error)) (any, error) { return fn() }

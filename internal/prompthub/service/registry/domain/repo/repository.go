// Package repo declares the persistence interfaces of the registry domain.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
)

// Sentinel errors surfaced by stores; services translate them into coded
// business errors.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// PageOpts is offset/limit pagination plus sort selection.
type PageOpts struct {
	Offset int
	Limit  int
	SortBy string
	Order  string // "asc" or "desc"
}

// PromptFilter narrows prompt listings. Tags match by overlap. Search is a
// case-insensitive substring over name and description.
type PromptFilter struct {
	ProjectID string
	Slug      string
	Tags      []string
	Category  string
	IsShared  *bool
	Search    string
}

// PromptRepository persists prompts and their versions.
type PromptRepository interface {
	// Create inserts the prompt and its initial published version atomically.
	Create(ctx context.Context, prompt *entity.Prompt, initial *entity.Version) error
	Get(ctx context.Context, id string) (*entity.Prompt, error)
	GetBySlug(ctx context.Context, projectID, slug string) (*entity.Prompt, error)
	// GetByIDs batch-loads live prompts; missing ids are absent from the map.
	GetByIDs(ctx context.Context, ids []string) (map[string]*entity.Prompt, error)
	List(ctx context.Context, filter PromptFilter, page PageOpts) ([]*entity.Prompt, int64, error)
	Update(ctx context.Context, prompt *entity.Prompt) error
	SoftDelete(ctx context.Context, id string, at time.Time) error

	ListVersions(ctx context.Context, promptID string) ([]*entity.Version, error)
	GetVersion(ctx context.Context, promptID, version string) (*entity.Version, error)
	// Publish inserts the version row and updates current_version in one
	// transaction; both succeed or both fail.
	Publish(ctx context.Context, promptID string, version *entity.Version) error
}

// SceneRepository persists scenes. Writes carry the re-derived reference
// edges so scene row and index stay consistent.
type SceneRepository interface {
	Create(ctx context.Context, scene *entity.Scene, refs []*entity.PromptRef) error
	Get(ctx context.Context, id string) (*entity.Scene, error)
	GetBySlug(ctx context.Context, projectID, slug string) (*entity.Scene, error)
	List(ctx context.Context, projectID string, page PageOpts) ([]*entity.Scene, int64, error)
	// Update replaces the scene row; when refs is non-nil the scene's edge
	// set is atomically replaced as well.
	Update(ctx context.Context, scene *entity.Scene, refs []*entity.PromptRef) error
	Delete(ctx context.Context, id string) error
}

// RefRepository reads and writes the reference index.
type RefRepository interface {
	Create(ctx context.Context, ref *entity.PromptRef) error
	Delete(ctx context.Context, id string) error
	// OutEdges returns prompt-to-prompt edges originating at promptID.
	OutEdges(ctx context.Context, promptID string) ([]*entity.PromptRef, error)
	// InEdges returns every edge targeting promptID, scene-derived included.
	InEdges(ctx context.Context, promptID string) ([]*entity.PromptRef, error)
	EdgesForScene(ctx context.Context, sceneID string) ([]*entity.PromptRef, error)
	// ScenesReferencing returns ids of scenes whose pipeline targets promptID.
	ScenesReferencing(ctx context.Context, promptID string) ([]string, error)
}

// ProjectRepository persists projects.
type ProjectRepository interface {
	Create(ctx context.Context, project *entity.Project) error
	Get(ctx context.Context, id string) (*entity.Project, error)
	GetBySlug(ctx context.Context, slug string) (*entity.Project, error)
	List(ctx context.Context, page PageOpts) ([]*entity.Project, int64, error)
	Update(ctx context.Context, project *entity.Project) error
	Delete(ctx context.Context, id string) error
	// Counts returns live prompt and scene counts for a project.
	Counts(ctx context.Context, projectID string) (prompts, scenes int64, err error)
}

// CallLogRepository appends resolved-call telemetry.
type CallLogRepository interface {
	Append(ctx context.Context, log *entity.CallLog) error
	ListByScene(ctx context.Context, sceneID string, limit int) ([]*entity.CallLog, error)
}

// UserRepository maps API keys to caller identities.
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByAPIKey(ctx context.Context, apiKey string) (*entity.User, error)
}

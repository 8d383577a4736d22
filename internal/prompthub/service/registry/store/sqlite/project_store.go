package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/repo"
)

// ProjectStore implements repo.ProjectRepository.
type ProjectStore struct {
	db *sql.DB
}

// NewProjectStore creates a ProjectStore over the shared handle.
func NewProjectStore(db *DB) *ProjectStore {
	return &ProjectStore{db: db.SQL()}
}

const projectColumns = `id, name, slug, description, created_by, created_at, updated_at`

func (s *ProjectStore) Create(ctx context.Context, project *entity.Project) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, slug, description, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		project.ID, project.Name, project.Slug, project.Description,
		project.CreatedBy, project.CreatedAt, project.UpdatedAt)
	if err != nil && isUniqueViolation(err) {
		return repo.ErrConflict
	}
	return err
}

func (s *ProjectStore) Get(ctx context.Context, id string) (*entity.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

func (s *ProjectStore) GetBySlug(ctx context.Context, slug string) (*entity.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE slug = ?`, slug)
	return scanProject(row)
}

func (s *ProjectStore) List(ctx context.Context, page repo.PageOpts) ([]*entity.Project, int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects`)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var projects []*entity.Project
	for rows.Next() {
		var p entity.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Description,
			&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		projects = append(projects, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	sortProjects(projects, page.SortBy, page.Order)
	total := int64(len(projects))
	start := page.Offset
	if start > len(projects) {
		start = len(projects)
	}
	end := start + page.Limit
	if page.Limit <= 0 || end > len(projects) {
		end = len(projects)
	}
	return projects[start:end], total, nil
}

func sortProjects(projects []*entity.Project, sortBy, order string) {
	asc := order != "desc"
	less := func(a, b *entity.Project) bool { return a.CreatedAt.Before(b.CreatedAt) }
	switch sortBy {
	case "updated_at":
		less = func(a, b *entity.Project) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case "name":
		less = func(a, b *entity.Project) bool { return a.Name < b.Name }
	case "slug":
		less = func(a, b *entity.Project) bool { return a.Slug < b.Slug }
	}
	sort.SliceStable(projects, func(i, j int) bool {
		if asc {
			return less(projects[i], projects[j])
		}
		return less(projects[j], projects[i])
	})
}

func (s *ProjectStore) Update(ctx context.Context, project *entity.Project) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		project.Name, project.Description, project.UpdatedAt, project.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *ProjectStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *ProjectStore) Counts(ctx context.Context, projectID string) (int64, int64, error) {
	var prompts, scenes int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM prompts WHERE project_id = ? AND deleted_at IS NULL`,
		projectID).Scan(&prompts)
	if err != nil {
		return 0, 0, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scenes WHERE project_id = ?`, projectID).Scan(&scenes)
	if err != nil {
		return 0, 0, err
	}
	return prompts, scenes, nil
}

func scanProject(row *sql.Row) (*entity.Project, error) {
	var p entity.Project
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.CreatedBy,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UserStore implements repo.UserRepository.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a UserStore over the shared handle.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db.SQL()}
}

func (s *UserStore) Create(ctx context.Context, user *entity.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, role, api_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, user.Role, user.APIKey, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return repo.ErrConflict
	}
	return err
}

func (s *UserStore) GetByAPIKey(ctx context.Context, apiKey string) (*entity.User, error) {
	var u entity.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, role, api_key, created_at FROM users WHERE api_key = ?`,
		apiKey).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.APIKey, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

var (
	_ repo.ProjectRepository = (*ProjectStore)(nil)
	_ repo.UserRepository    = (*UserStore)(nil)
)

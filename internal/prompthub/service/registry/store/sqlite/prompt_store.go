package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/repo"
	"github.com/prompthub/prompthub/pkg/utils/json"
)

// PromptStore implements repo.PromptRepository.
type PromptStore struct {
	db *sql.DB
}

// NewPromptStore creates a PromptStore over the shared handle.
func NewPromptStore(db *DB) *PromptStore {
	return &PromptStore{db: db.SQL()}
}

const promptColumns = `id, project_id, name, slug, description, content, format,
	template_engine, variables, tags, category, is_shared, current_version,
	created_by, created_at, updated_at, deleted_at`

func (s *PromptStore) Create(ctx context.Context, prompt *entity.Prompt, initial *entity.Version) error {
	variables, err := json.Marshal(prompt.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	tags, err := json.Marshal(prompt.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO prompts (id, project_id, name, slug, description, content,
			format, template_engine, variables, tags, category, is_shared,
			current_version, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		prompt.ID, prompt.ProjectID, prompt.Name, prompt.Slug, prompt.Description,
		prompt.Content, string(prompt.Format), string(prompt.TemplateEngine),
		string(variables), string(tags), prompt.Category, prompt.IsShared,
		prompt.CurrentVersion, prompt.CreatedBy, prompt.CreatedAt, prompt.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repo.ErrConflict
		}
		return err
	}

	if initial != nil {
		if err := insertVersion(ctx, tx, initial); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertVersion(ctx context.Context, tx *sql.Tx, v *entity.Version) error {
	variables, err := json.Marshal(v.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO prompt_versions (id, prompt_id, version, content, variables,
			changelog, status, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.PromptID, v.Version, v.Content, string(variables),
		v.Changelog, string(v.Status), v.CreatedBy, v.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return repo.ErrConflict
	}
	return err
}

func (s *PromptStore) Get(ctx context.Context, id string) (*entity.Prompt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+promptColumns+` FROM prompts WHERE id = ? AND deleted_at IS NULL`, id)
	return scanPrompt(row)
}

func (s *PromptStore) GetBySlug(ctx context.Context, projectID, slug string) (*entity.Prompt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+promptColumns+` FROM prompts
		 WHERE project_id = ? AND slug = ? AND deleted_at IS NULL`, projectID, slug)
	return scanPrompt(row)
}

func (s *PromptStore) GetByIDs(ctx context.Context, ids []string) (map[string]*entity.Prompt, error) {
	result := make(map[string]*entity.Prompt, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+promptColumns+` FROM prompts
		 WHERE id IN (`+placeholders+`) AND deleted_at IS NULL`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPromptRow(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	return result, rows.Err()
}

func (s *PromptStore) List(ctx context.Context, filter repo.PromptFilter, page repo.PageOpts) ([]*entity.Prompt, int64, error) {
	where := []string{"deleted_at IS NULL"}
	var args []any
	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.Slug != "" {
		where = append(where, "slug = ?")
		args = append(args, filter.Slug)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.IsShared != nil {
		where = append(where, "is_shared = ?")
		args = append(args, *filter.IsShared)
	}
	if filter.Search != "" {
		where = append(where, "(LOWER(name) LIKE ? OR LOWER(description) LIKE ?)")
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		args = append(args, pattern, pattern)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+promptColumns+` FROM prompts WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var prompts []*entity.Prompt
	for rows.Next() {
		p, err := scanPromptRow(rows)
		if err != nil {
			return nil, 0, err
		}
		prompts = append(prompts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// Tag overlap and semver ordering cannot be expressed over the JSON
	// columns in sqlite, so both run in memory.
	if len(filter.Tags) > 0 {
		prompts = filterByTags(prompts, filter.Tags)
	}
	sortPrompts(prompts, page.SortBy, page.Order)

	total := int64(len(prompts))
	start := page.Offset
	if start > len(prompts) {
		start = len(prompts)
	}
	end := start + page.Limit
	if page.Limit <= 0 || end > len(prompts) {
		end = len(prompts)
	}
	return prompts[start:end], total, nil
}

func filterByTags(prompts []*entity.Prompt, tags []string) []*entity.Prompt {
	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		want[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	out := prompts[:0]
	for _, p := range prompts {
		for _, t := range p.Tags {
			if _, ok := want[t]; ok {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func sortPrompts(prompts []*entity.Prompt, sortBy, order string) {
	asc := order != "desc"
	less := func(a, b *entity.Prompt) bool { return a.CreatedAt.Before(b.CreatedAt) }
	switch sortBy {
	case "updated_at":
		less = func(a, b *entity.Prompt) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case "name":
		less = func(a, b *entity.Prompt) bool { return a.Name < b.Name }
	case "slug":
		less = func(a, b *entity.Prompt) bool { return a.Slug < b.Slug }
	case "current_version":
		less = func(a, b *entity.Prompt) bool {
			va, ea := semver.NewVersion(a.CurrentVersion)
			vb, eb := semver.NewVersion(b.CurrentVersion)
			if ea != nil || eb != nil {
				return a.CurrentVersion < b.CurrentVersion
			}
			return va.LessThan(vb)
		}
	}
	sort.SliceStable(prompts, func(i, j int) bool {
		if asc {
			return less(prompts[i], prompts[j])
		}
		return less(prompts[j], prompts[i])
	})
}

func (s *PromptStore) Update(ctx context.Context, prompt *entity.Prompt) error {
	variables, err := json.Marshal(prompt.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	tags, err := json.Marshal(prompt.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE prompts SET name = ?, description = ?, content = ?, format = ?,
			template_engine = ?, variables = ?, tags = ?, category = ?,
			is_shared = ?, current_version = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		prompt.Name, prompt.Description, prompt.Content, string(prompt.Format),
		string(prompt.TemplateEngine), string(variables), string(tags),
		prompt.Category, prompt.IsShared, prompt.CurrentVersion,
		prompt.UpdatedAt, prompt.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return repo.ErrConflict
		}
		return err
	}
	return requireAffected(res)
}

func (s *PromptStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE prompts SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		at, at, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *PromptStore) ListVersions(ctx context.Context, promptID string) ([]*entity.Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, prompt_id, version, content, variables, changelog, status,
			created_by, created_at
		 FROM prompt_versions WHERE prompt_id = ? ORDER BY created_at DESC`, promptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*entity.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// created_at granularity can collide; semver descending is the contract.
	sort.SliceStable(versions, func(i, j int) bool {
		vi, ei := semver.NewVersion(versions[i].Version)
		vj, ej := semver.NewVersion(versions[j].Version)
		if ei != nil || ej != nil {
			return versions[i].Version > versions[j].Version
		}
		return vj.LessThan(vi)
	})
	return versions, nil
}

func (s *PromptStore) GetVersion(ctx context.Context, promptID, version string) (*entity.Version, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, prompt_id, version, content, variables, changelog, status,
			created_by, created_at
		 FROM prompt_versions WHERE prompt_id = ? AND version = ?`, promptID, version)
	v, err := scanVersion(row)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *PromptStore) Publish(ctx context.Context, promptID string, version *entity.Version) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertVersion(ctx, tx, version); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE prompts SET current_version = ?, content = ?, variables = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		version.Version, version.Content, mustJSON(version.Variables),
		version.CreatedAt, promptID)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPromptRow(r rowScanner) (*entity.Prompt, error) {
	var (
		p             entity.Prompt
		variables     string
		tags          string
		deletedAt     sql.NullTime
		format        string
		engine        string
	)
	err := r.Scan(&p.ID, &p.ProjectID, &p.Name, &p.Slug, &p.Description,
		&p.Content, &format, &engine, &variables, &tags, &p.Category,
		&p.IsShared, &p.CurrentVersion, &p.CreatedBy, &p.CreatedAt,
		&p.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	p.Format = entity.PromptFormat(format)
	p.TemplateEngine = entity.TemplateEngine(engine)
	if deletedAt.Valid {
		t := deletedAt.Time
		p.DeletedAt = &t
	}
	if err := json.UnmarshalString(variables, &p.Variables); err != nil {
		return nil, fmt.Errorf("unmarshal variables: %w", err)
	}
	if err := json.UnmarshalString(tags, &p.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	return &p, nil
}

func scanPrompt(row *sql.Row) (*entity.Prompt, error) {
	p, err := scanPromptRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

var _ repo.PromptRepository = (*PromptStore)(nil)

func scanVersion(r rowScanner) (*entity.Version, error) {
	var (
		v         entity.Version
		variables string
		status    string
	)
	err := r.Scan(&v.ID, &v.PromptID, &v.Version, &v.Content, &variables,
		&v.Changelog, &status, &v.CreatedBy, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	v.Status = entity.VersionStatus(status)
	if err := json.UnmarshalString(variables, &v.Variables); err != nil {
		return nil, fmt.Errorf("unmarshal variables: %w", err)
	}
	return &v, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/repo"
	"github.com/prompthub/prompthub/pkg/utils/json"
)

// SceneStore implements repo.SceneRepository. Scene writes that carry a
// re-derived edge set replace the scene's reference-index rows in the same
// transaction.
type SceneStore struct {
	db *sql.DB
}

// NewSceneStore creates a SceneStore over the shared handle.
func NewSceneStore(db *DB) *SceneStore {
	return &SceneStore{db: db.SQL()}
}

const sceneColumns = `id, project_id, name, slug, description, pipeline,
	merge_strategy, separator, output_format, created_by, created_at, updated_at`

func (s *SceneStore) Create(ctx context.Context, scene *entity.Scene, refs []*entity.PromptRef) error {
	pipeline, err := json.Marshal(scene.Pipeline)
	if err != nil {
		return fmt.Errorf("marshal pipeline: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO scenes (id, project_id, name, slug, description, pipeline,
			merge_strategy, separator, output_format, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scene.ID, scene.ProjectID, scene.Name, scene.Slug, scene.Description,
		string(pipeline), string(scene.MergeStrategy), scene.Separator,
		scene.OutputFormat, scene.CreatedBy, scene.CreatedAt, scene.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repo.ErrConflict
		}
		return err
	}
	if err := replaceSceneRefs(ctx, tx, scene.ID, refs); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SceneStore) Get(ctx context.Context, id string) (*entity.Scene, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sceneColumns+` FROM scenes WHERE id = ?`, id)
	return scanScene(row)
}

func (s *SceneStore) GetBySlug(ctx context.Context, projectID, slug string) (*entity.Scene, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sceneColumns+` FROM scenes WHERE project_id = ? AND slug = ?`,
		projectID, slug)
	return scanScene(row)
}

func (s *SceneStore) List(ctx context.Context, projectID string, page repo.PageOpts) ([]*entity.Scene, int64, error) {
	query := `SELECT ` + sceneColumns + ` FROM scenes`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var scenes []*entity.Scene
	for rows.Next() {
		sc, err := scanSceneRow(rows)
		if err != nil {
			return nil, 0, err
		}
		scenes = append(scenes, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	sortScenes(scenes, page.SortBy, page.Order)
	total := int64(len(scenes))
	start := page.Offset
	if start > len(scenes) {
		start = len(scenes)
	}
	end := start + page.Limit
	if page.Limit <= 0 || end > len(scenes) {
		end = len(scenes)
	}
	return scenes[start:end], total, nil
}

func sortScenes(scenes []*entity.Scene, sortBy, order string) {
	asc := order != "desc"
	less := func(a, b *entity.Scene) bool { return a.CreatedAt.Before(b.CreatedAt) }
	switch sortBy {
	case "updated_at":
		less = func(a, b *entity.Scene) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case "name":
		less = func(a, b *entity.Scene) bool { return a.Name < b.Name }
	case "slug":
		less = func(a, b *entity.Scene) bool { return a.Slug < b.Slug }
	}
	sort.SliceStable(scenes, func(i, j int) bool {
		if asc {
			return less(scenes[i], scenes[j])
		}
		return less(scenes[j], scenes[i])
	})
}

func (s *SceneStore) Update(ctx context.Context, scene *entity.Scene, refs []*entity.PromptRef) error {
	pipeline, err := json.Marshal(scene.Pipeline)
	if err != nil {
		return fmt.Errorf("marshal pipeline: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE scenes SET name = ?, description = ?, pipeline = ?,
			merge_strategy = ?, separator = ?, output_format = ?, updated_at = ?
		 WHERE id = ?`,
		scene.Name, scene.Description, string(pipeline),
		string(scene.MergeStrategy), scene.Separator, scene.OutputFormat,
		scene.UpdatedAt, scene.ID)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	if refs != nil {
		if err := replaceSceneRefs(ctx, tx, scene.ID, refs); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SceneStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM scenes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM prompt_refs WHERE source_type = ? AND source_id = ?`,
		string(entity.RefSourceScene), id)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func replaceSceneRefs(ctx context.Context, tx *sql.Tx, sceneID string, refs []*entity.PromptRef) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM prompt_refs WHERE source_type = ? AND source_id = ?`,
		string(entity.RefSourceScene), sceneID)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if err := insertRef(ctx, tx, ref); err != nil {
			return err
		}
	}
	return nil
}

func insertRef(ctx context.Context, execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, ref *entity.PromptRef) error {
	override, err := json.Marshal(ref.OverrideConfig)
	if err != nil {
		return fmt.Errorf("marshal override_config: %w", err)
	}
	_, err = execer.ExecContext(ctx,
		`INSERT INTO prompt_refs (id, source_type, source_id, step_id,
			target_prompt_id, ref_type, override_config, pinned_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ref.ID, string(ref.SourceType), ref.SourceID, ref.StepID,
		ref.TargetPromptID, string(ref.RefType), string(override),
		ref.PinnedVersion, ref.CreatedAt)
	return err
}

var _ repo.SceneRepository = (*SceneStore)(nil)

func scanSceneRow(r rowScanner) (*entity.Scene, error) {
	var (
		sc       entity.Scene
		pipeline string
		strategy string
	)
	err := r.Scan(&sc.ID, &sc.ProjectID, &sc.Name, &sc.Slug, &sc.Description,
		&pipeline, &strategy, &sc.Separator, &sc.OutputFormat, &sc.CreatedBy,
		&sc.CreatedAt, &sc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sc.MergeStrategy = entity.MergeStrategy(strategy)
	if err := json.UnmarshalString(pipeline, &sc.Pipeline); err != nil {
		return nil, fmt.Errorf("unmarshal pipeline: %w", err)
	}
	return &sc, nil
}

func scanScene(row *sql.Row) (*entity.Scene, error) {
	sc, err := scanSceneRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sc, nil
}

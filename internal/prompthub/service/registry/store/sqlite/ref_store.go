package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/repo"
	"github.com/prompthub/prompthub/pkg/utils/json"
)

// RefStore implements repo.RefRepository over the prompt_refs table.
type RefStore struct {
	db *sql.DB
}

// NewRefStore creates a RefStore over the shared handle.
func NewRefStore(db *DB) *RefStore {
	return &RefStore{db: db.SQL()}
}

const refColumns = `id, source_type, source_id, step_id, target_prompt_id,
	ref_type, override_config, pinned_version, created_at`

func (s *RefStore) Create(ctx context.Context, ref *entity.PromptRef) error {
	return insertRef(ctx, s.db, ref)
}

func (s *RefStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM prompt_refs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *RefStore) OutEdges(ctx context.Context, promptID string) ([]*entity.PromptRef, error) {
	return s.queryRefs(ctx,
		`SELECT `+refColumns+` FROM prompt_refs
		 WHERE source_type = ? AND source_id = ? ORDER BY created_at`,
		string(entity.RefSourcePrompt), promptID)
}

func (s *RefStore) InEdges(ctx context.Context, promptID string) ([]*entity.PromptRef, error) {
	return s.queryRefs(ctx,
		`SELECT `+refColumns+` FROM prompt_refs
		 WHERE target_prompt_id = ? ORDER BY created_at`, promptID)
}

func (s *RefStore) EdgesForScene(ctx context.Context, sceneID string) ([]*entity.PromptRef, error) {
	return s.queryRefs(ctx,
		`SELECT `+refColumns+` FROM prompt_refs
		 WHERE source_type = ? AND source_id = ? ORDER BY created_at`,
		string(entity.RefSourceScene), sceneID)
}

func (s *RefStore) ScenesReferencing(ctx context.Context, promptID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT source_id FROM prompt_refs
		 WHERE source_type = ? AND target_prompt_id = ?`,
		string(entity.RefSourceScene), promptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *RefStore) queryRefs(ctx context.Context, query string, args ...any) ([]*entity.PromptRef, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []*entity.PromptRef
	for rows.Next() {
		var (
			ref        entity.PromptRef
			sourceType string
			refType    string
			override   string
		)
		err := rows.Scan(&ref.ID, &sourceType, &ref.SourceID, &ref.StepID,
			&ref.TargetPromptID, &refType, &override, &ref.PinnedVersion,
			&ref.CreatedAt)
		if err != nil {
			return nil, err
		}
		ref.SourceType = entity.RefSourceType(sourceType)
		ref.RefType = entity.RefType(refType)
		if err := json.UnmarshalString(override, &ref.OverrideConfig); err != nil {
			return nil, fmt.Errorf("unmarshal override_config: %w", err)
		}
		refs = append(refs, &ref)
	}
	return refs, rows.Err()
}

var _ repo.RefRepository = (*RefStore)(nil)

package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/repo"
	"github.com/prompthub/prompthub/pkg/utils/json"
)

// CallLogStore implements repo.CallLogRepository.
type CallLogStore struct {
	db *sql.DB
}

// NewCallLogStore creates a CallLogStore over the shared handle.
func NewCallLogStore(db *DB) *CallLogStore {
	return &CallLogStore{db: db.SQL()}
}

func (s *CallLogStore) Append(ctx context.Context, log *entity.CallLog) error {
	variables, err := json.Marshal(log.InputVariables)
	if err != nil {
		return fmt.Errorf("marshal input_variables: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO call_logs (id, prompt_id, scene_id, version, caller_id,
			caller_ip, input_variables, rendered_content, token_count,
			elapsed_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.PromptID, log.SceneID, log.Version, log.CallerID,
		log.CallerIP, string(variables), log.RenderedContent, log.TokenCount,
		log.ElapsedMS, log.CreatedAt)
	return err
}

func (s *CallLogStore) ListByScene(ctx context.Context, sceneID string, limit int) ([]*entity.CallLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, prompt_id, scene_id, version, caller_id, caller_ip,
			input_variables, rendered_content, token_count, elapsed_ms, created_at
		 FROM call_logs WHERE scene_id = ? ORDER BY created_at DESC LIMIT ?`,
		sceneID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*entity.CallLog
	for rows.Next() {
		var (
			log       entity.CallLog
			variables string
		)
		err := rows.Scan(&log.ID, &log.PromptID, &log.SceneID, &log.Version,
			&log.CallerID, &log.CallerIP, &variables, &log.RenderedContent,
			&log.TokenCount, &log.ElapsedMS, &log.CreatedAt)
		if err != nil {
			return nil, err
		}
		if err := json.UnmarshalString(variables, &log.InputVariables); err != nil {
			return nil, fmt.Errorf("unmarshal input_variables: %w", err)
		}
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}

var _ repo.CallLogRepository = (*CallLogStore)(nil)

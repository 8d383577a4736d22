// Package sqlite implements the registry repositories over database/sql
// with the go-sqlite3 driver.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// DB wraps the sql handle and owns schema initialization.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema. Foreign keys are enforced and WAL mode is enabled.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_fk=1&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

// Close closes the underlying handle.
func (d *DB) Close() error { return d.db.Close() }

// SQL returns the underlying handle.
func (d *DB) SQL() *sql.DB { return d.db }

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			slug        TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			created_by  TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMP NOT NULL,
			updated_at  TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS prompts (
			id              TEXT PRIMARY KEY,
			project_id      TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			name            TEXT NOT NULL,
			slug            TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			content         TEXT NOT NULL,
			format          TEXT NOT NULL DEFAULT 'text',
			template_engine TEXT NOT NULL DEFAULT 'jinja2',
			variables       TEXT NOT NULL DEFAULT '[]',
			tags            TEXT NOT NULL DEFAULT '[]',
			category        TEXT NOT NULL DEFAULT '',
			is_shared       INTEGER NOT NULL DEFAULT 0,
			current_version TEXT NOT NULL DEFAULT '1.0.0',
			created_by      TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMP NOT NULL,
			updated_at      TIMESTAMP NOT NULL,
			deleted_at      TIMESTAMP
		)`,
		// Uniqueness applies to live rows only; a soft-deleted prompt frees
		// its slug.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_prompts_project_slug
			ON prompts(project_id, slug) WHERE deleted_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_prompts_project ON prompts(project_id)`,
		`CREATE TABLE IF NOT EXISTS prompt_versions (
			id         TEXT PRIMARY KEY,
			prompt_id  TEXT NOT NULL REFERENCES prompts(id) ON DELETE CASCADE,
			version    TEXT NOT NULL,
			content    TEXT NOT NULL,
			variables  TEXT NOT NULL DEFAULT '[]',
			changelog  TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL DEFAULT 'draft',
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			UNIQUE(prompt_id, version)
		)`,
		`CREATE TABLE IF NOT EXISTS scenes (
			id             TEXT PRIMARY KEY,
			project_id     TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			name           TEXT NOT NULL,
			slug           TEXT NOT NULL,
			description    TEXT NOT NULL DEFAULT '',
			pipeline       TEXT NOT NULL,
			merge_strategy TEXT NOT NULL DEFAULT 'concat',
			separator      TEXT NOT NULL DEFAULT '',
			output_format  TEXT NOT NULL DEFAULT '',
			created_by     TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMP NOT NULL,
			updated_at     TIMESTAMP NOT NULL,
			UNIQUE(project_id, slug)
		)`,
		`CREATE TABLE IF NOT EXISTS prompt_refs (
			id               TEXT PRIMARY KEY,
			source_type      TEXT NOT NULL,
			source_id        TEXT NOT NULL,
			step_id          TEXT NOT NULL DEFAULT '',
			target_prompt_id TEXT NOT NULL REFERENCES prompts(id) ON DELETE CASCADE,
			ref_type         TEXT NOT NULL,
			override_config  TEXT NOT NULL DEFAULT '{}',
			pinned_version   TEXT NOT NULL DEFAULT '',
			created_at       TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_refs_source ON prompt_refs(source_type, source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_refs_target ON prompt_refs(target_prompt_id)`,
		`CREATE TABLE IF NOT EXISTS call_logs (
			id               TEXT PRIMARY KEY,
			prompt_id        TEXT NOT NULL DEFAULT '',
			scene_id         TEXT NOT NULL DEFAULT '',
			version          TEXT NOT NULL DEFAULT '',
			caller_id        TEXT NOT NULL DEFAULT '',
			caller_ip        TEXT NOT NULL DEFAULT '',
			input_variables  TEXT NOT NULL DEFAULT '{}',
			rendered_content TEXT NOT NULL DEFAULT '',
			token_count      INTEGER NOT NULL DEFAULT 0,
			elapsed_ms       INTEGER NOT NULL DEFAULT 0,
			created_at       TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_call_logs_scene ON call_logs(scene_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			name       TEXT NOT NULL,
			role       TEXT NOT NULL DEFAULT 'editor',
			api_key    TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a sqlite uniqueness constraint
// failure.
func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrConstraint
	}
	return false
}

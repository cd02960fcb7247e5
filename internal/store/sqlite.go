// ABOUTME: SQLite implementation of PromptStore using modernc.org/sqlite
// ABOUTME: Provides tenant-scoped prompt persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements PromptStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS prompts (
			id          TEXT PRIMARY KEY,
			tenant_id   TEXT NOT NULL,
			user_id     TEXT NOT NULL,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			content     TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_prompts_tenant
			ON prompts(tenant_id, updated_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		check  string
		apply  string
		column string
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('prompts') WHERE name = 'tags_json'`,
			apply:  `ALTER TABLE prompts ADD COLUMN tags_json TEXT NOT NULL DEFAULT '[]'`,
			column: "tags_json",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking column %s: %w", m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding column %s: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreatePrompt inserts a new prompt.
// Returns ErrDuplicatePrompt if the ID is already taken.
func (s *SQLiteStore) CreatePrompt(ctx context.Context, p *Prompt) error {
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO prompts (id, tenant_id, user_id, title, description, content, tags_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		p.ID,
		p.TenantID,
		p.UserID,
		p.Title,
		p.Description,
		p.Content,
		tags,
		p.CreatedAt.UTC().Format(time.RFC3339),
		p.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicatePrompt
		}
		return fmt.Errorf("inserting prompt: %w", err)
	}

	s.logger.Debug("created prompt", "id", p.ID, "tenant", p.TenantID)
	return nil
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "constraint failed")
}

const promptColumns = `id, tenant_id, user_id, title, description, content, tags_json, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrompt(row rowScanner) (*Prompt, error) {
	var p Prompt
	var tagsJSON, createdAtStr, updatedAtStr string

	if err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.UserID,
		&p.Title,
		&p.Description,
		&p.Content,
		&tagsJSON,
		&createdAtStr,
		&updatedAtStr,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tagsJSON), &p.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}

	var err error
	p.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &p, nil
}

// GetPrompt retrieves a prompt by tenant and ID.
// Returns ErrNotFound if no such prompt exists in the tenant.
func (s *SQLiteStore) GetPrompt(ctx context.Context, tenantID, id string) (*Prompt, error) {
	query := `SELECT ` + promptColumns + ` FROM prompts WHERE tenant_id = ? AND id = ?`

	p, err := scanPrompt(s.db.QueryRowContext(ctx, query, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying prompt: %w", err)
	}
	return p, nil
}

// ListPrompts retrieves the tenant's prompts ordered by most recent update.
func (s *SQLiteStore) ListPrompts(ctx context.Context, tenantID string) ([]*Prompt, error) {
	query := `SELECT ` + promptColumns + `
		FROM prompts
		WHERE tenant_id = ?
		ORDER BY updated_at DESC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying prompts: %w", err)
	}
	defer rows.Close()

	prompts := []*Prompt{}
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning prompt row: %w", err)
		}
		prompts = append(prompts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating prompt rows: %w", err)
	}

	return prompts, nil
}

// UpdatePrompt updates the mutable fields of a prompt.
// Returns ErrNotFound if no such prompt exists in the tenant.
func (s *SQLiteStore) UpdatePrompt(ctx context.Context, p *Prompt) error {
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return err
	}

	query := `
		UPDATE prompts
		SET title = ?, description = ?, content = ?, tags_json = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		p.Title,
		p.Description,
		p.Content,
		tags,
		p.UpdatedAt.UTC().Format(time.RFC3339),
		p.TenantID,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating prompt: %w", err)
	}

	return requireAffected(result)
}

// DeletePrompt removes a prompt.
// Returns ErrNotFound if no such prompt exists in the tenant.
func (s *SQLiteStore) DeletePrompt(ctx context.Context, tenantID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM prompts WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return fmt.Errorf("deleting prompt: %w", err)
	}

	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encoding tags: %w", err)
	}
	return string(data), nil
}

// Ensure SQLiteStore implements PromptStore
var _ PromptStore = (*SQLiteStore)(nil)

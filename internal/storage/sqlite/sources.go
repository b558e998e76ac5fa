package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/crewdesk/crewdesk/internal/core"
	"github.com/google/uuid"
)

type SourceRepo struct {
	db *sql.DB
}

func NewSourceRepo(db *sql.DB) *SourceRepo {
	return &SourceRepo{db: db}
}

func (r *SourceRepo) Create(ctx context.Context, src *core.KnowledgeSource) error {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	if src.Status == "" {
		src.Status = core.SourceStatusPending
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}
	cfg, err := json.Marshal(src.Config)
	if err != nil {
		return fmt.Errorf("failed to encode source config: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO knowledge_sources (id, workspace_id, name, type, url, status, config_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.WorkspaceID, src.Name, src.Type, src.URL, src.Status, string(cfg), src.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert knowledge source: %w", err)
	}
	return nil
}

func (r *SourceRepo) Get(ctx context.Context, id string) (*core.KnowledgeSource, error) {
	var (
		src          core.KnowledgeSource
		configJSON   string
		lastSyncedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, name, type, url, status, config_json, last_error, last_synced_at, created_at
		FROM knowledge_sources WHERE id = ?`, id,
	).Scan(&src.ID, &src.WorkspaceID, &src.Name, &src.Type, &src.URL, &src.Status, &configJSON, &src.LastError, &lastSyncedAt, &src.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge source: %w", err)
	}

	if err := json.Unmarshal([]byte(configJSON), &src.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config for source %s: %w", id, err)
	}
	if lastSyncedAt.Valid {
		src.LastSyncedAt = &lastSyncedAt.Time
	}
	return &src, nil
}

func (r *SourceRepo) SetStatus(ctx context.Context, id string, status core.SourceStatus, lastError string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE knowledge_sources SET status = ?, last_error = ? WHERE id = ?`,
		status, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to update source status: %w", err)
	}
	return requireSourceRow(res)
}

func (r *SourceRepo) MarkSynced(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE knowledge_sources SET status = ?, last_error = '', last_synced_at = ? WHERE id = ?`,
		core.SourceStatusActive, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark source synced: %w", err)
	}
	return requireSourceRow(res)
}

// Delete removes the source; its chunks go with it via the cascade.
func (r *SourceRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM knowledge_sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	return requireSourceRow(res)
}

func requireSourceRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrSourceNotFound
	}
	return nil
}

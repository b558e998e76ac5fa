package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/crewdesk/crewdesk/internal/core"
)

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ReplaceForSource swaps the source's chunk set in one transaction, so a
// re-ingestion never leaves a mix of old and new chunks behind.
func (r *ChunkRepo) ReplaceForSource(ctx context.Context, sourceID string, chunks []core.KnowledgeChunk) error {
	var workspaceID string
	err := r.db.QueryRowContext(ctx,
		`SELECT workspace_id FROM knowledge_sources WHERE id = ?`, sourceID,
	).Scan(&workspaceID)
	if err == sql.ErrNoRows {
		return core.ErrSourceNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to resolve source workspace: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM knowledge_chunks WHERE source_id = ?`, sourceID); err != nil {
		return fmt.Errorf("failed to clear old chunks: %w", err)
	}

	now := time.Now().UTC()
	for _, c := range chunks {
		blob, err := serializeVector(c.Embedding)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO knowledge_chunks (id, source_id, workspace_id, content, embedding, token_size, source_name, source_type, chunk_index, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, sourceID, workspaceID, c.Content, blob, c.TokenSize,
			c.Metadata.SourceName, c.Metadata.SourceType, c.Metadata.ChunkIndex, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// ListByWorkspace loads the retrieval candidate set. Only chunks of ACTIVE
// sources participate in retrieval.
func (r *ChunkRepo) ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]core.KnowledgeChunk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.source_id, c.content, c.embedding, c.token_size, c.source_name, c.source_type, c.chunk_index
		FROM knowledge_chunks c
		JOIN knowledge_sources s ON s.id = c.source_id
		WHERE c.workspace_id = ? AND s.status = ?
		ORDER BY c.created_at DESC
		LIMIT ?`,
		workspaceID, core.SourceStatusActive, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []core.KnowledgeChunk
	for rows.Next() {
		var (
			c    core.KnowledgeChunk
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.Metadata.SourceID, &c.Content, &blob, &c.TokenSize,
			&c.Metadata.SourceName, &c.Metadata.SourceType, &c.Metadata.ChunkIndex); err != nil {
			return nil, err
		}
		if c.Embedding, err = deserializeVector(blob); err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

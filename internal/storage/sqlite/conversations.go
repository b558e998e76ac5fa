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

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) Create(ctx context.Context, conv *core.Conversation) error {
	now := time.Now().UTC()
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.Handler == "" {
		conv.Handler = core.HandlerAI
	}
	if conv.Priority == "" {
		conv.Priority = core.PriorityNormal
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, workspace_id, customer_id, channel, handler, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.WorkspaceID, conv.CustomerID, conv.Channel, conv.Handler, conv.Priority, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	conv.CreatedAt = now
	conv.UpdatedAt = now
	return nil
}

func (r *ConversationRepo) Get(ctx context.Context, id string) (*core.Conversation, error) {
	var conv core.Conversation
	err := r.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, customer_id, channel, handler, priority, created_at, updated_at
		FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &conv.WorkspaceID, &conv.CustomerID, &conv.Channel, &conv.Handler, &conv.Priority, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return &conv, nil
}

// RecentMessages returns the last limit messages in chronological order.
func (r *ConversationRepo) RecentMessages(ctx context.Context, conversationID string, limit int) ([]core.StoredMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender, content, ai_confidence, source_ids, delivery_id, created_at
		FROM (
			SELECT * FROM messages WHERE conversation_id = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at ASC, id ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []core.StoredMessage
	for rows.Next() {
		var m core.StoredMessage
		var sourceIDs string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Content, &m.AIConfidence, &sourceIDs, &m.DeliveryID, &m.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sourceIDs), &m.SourceIDs); err != nil {
			return nil, fmt.Errorf("failed to decode source ids for message %s: %w", m.ID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkEscalated hands the conversation to the human queue. The update is
// conditional on the conversation still being AI-handled, so a takeover that
// happened while the job ran is never overwritten. Returns whether the row
// changed.
func (r *ConversationRepo) MarkEscalated(ctx context.Context, id string, priority core.Priority) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET handler = ?, priority = ?, updated_at = ?
		WHERE id = ? AND handler = ?`,
		core.HandlerPending, priority, time.Now().UTC(), id, core.HandlerAI,
	)
	if err != nil {
		return false, fmt.Errorf("failed to escalate conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// TakeOver assigns the conversation to a human unconditionally.
func (r *ConversationRepo) TakeOver(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET handler = ?, updated_at = ? WHERE id = ?`,
		core.HandlerHuman, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to take over conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrConversationNotFound
	}
	return nil
}

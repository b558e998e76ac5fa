package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crewdesk/crewdesk/internal/core"
	"github.com/google/uuid"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) Add(ctx context.Context, msg *core.StoredMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	sourceIDs := msg.SourceIDs
	if sourceIDs == nil {
		sourceIDs = []string{}
	}
	encoded, err := json.Marshal(sourceIDs)
	if err != nil {
		return fmt.Errorf("failed to encode source ids: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender, content, ai_confidence, source_ids, delivery_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Sender, msg.Content, msg.AIConfidence, string(encoded), msg.DeliveryID, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	// Keep the conversation ordering fresh for inbox views.
	_, err = r.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		msg.CreatedAt, msg.ConversationID,
	)
	return err
}

func (r *MessageRepo) SetDeliveryID(ctx context.Context, messageID, deliveryID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET delivery_id = ? WHERE id = ?`, deliveryID, messageID)
	if err != nil {
		return fmt.Errorf("failed to set delivery id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("message %s not found", messageID)
	}
	return nil
}

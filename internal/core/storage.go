package core

import (
	"context"
	"time"
)

type Sender string

const (
	SenderCustomer Sender = "CUSTOMER"
	SenderAI       Sender = "AI"
	SenderAgent    Sender = "AGENT"
	SenderSystem   Sender = "SYSTEM"
)

type Conversation struct {
	ID          string
	WorkspaceID string
	CustomerID  string
	Channel     Channel
	Handler     Handler
	Priority    Priority
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type StoredMessage struct {
	ID             string
	ConversationID string
	Sender         Sender
	Content        string
	AIConfidence   *float64
	SourceIDs      []string
	DeliveryID     string
	CreatedAt      time.Time
}

type ConversationRepository interface {
	Get(ctx context.Context, id string) (*Conversation, error)
	// RecentMessages returns the last limit messages in chronological order.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]StoredMessage, error)
	// MarkEscalated flags the conversation for human handoff. The update is
	// conditional on the conversation still being AI-handled, so a concurrent
	// human takeover wins the race.
	MarkEscalated(ctx context.Context, id string, priority Priority) (bool, error)
	TakeOver(ctx context.Context, id string) error
}

type MessageRepository interface {
	Add(ctx context.Context, msg *StoredMessage) error
	SetDeliveryID(ctx context.Context, messageID, deliveryID string) error
}

type SourceRepository interface {
	Get(ctx context.Context, id string) (*KnowledgeSource, error)
	SetStatus(ctx context.Context, id string, status SourceStatus, lastError string) error
	MarkSynced(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type ChunkRepository interface {
	// ReplaceForSource atomically swaps the source's chunk set for a fresh
	// ingestion run. No partial persistence on failure.
	ReplaceForSource(ctx context.Context, sourceID string, chunks []KnowledgeChunk) error
	ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]KnowledgeChunk, error)
}

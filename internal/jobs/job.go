package jobs

import (
	"context"
	"time"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	// StatusDead means the job exhausted its attempts or failed
	// unrecoverably. Dead jobs are kept for inspection until swept.
	StatusDead Status = "dead"
)

// Queue names. One handler per queue.
const (
	QueueAIResponse  = "ai-response"
	QueueIngestion   = "knowledge-ingestion"
	QueueChannelSend = "channel-send"
)

const (
	DefaultMaxAttempts   = 3
	IngestionMaxAttempts = 2

	// Base delay for exponential retry backoff: base * 2^(attempts-1).
	retryBackoffBase = time.Second
)

type Job struct {
	ID          string
	Queue       string
	Key         string
	Payload     []byte
	Status      Status
	Attempts    int
	MaxAttempts int
	Progress    int
	LastError   string
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	FinishedAt  *time.Time
}

// EnqueueRequest describes a job to be scheduled. Key is the idempotency
// handle: at most one live job per (queue, key).
type EnqueueRequest struct {
	Queue       string
	Key         string
	Payload     any
	MaxAttempts int
	Delay       time.Duration
}

// Scheduler is the enqueue surface handed to producers. It hides the queue
// implementation so transports and CLI commands never touch job storage
// directly.
type Scheduler interface {
	// Enqueue schedules a job, collapsing duplicates by (queue, key).
	// Returns the job ID and whether a new job was created.
	Enqueue(ctx context.Context, req EnqueueRequest) (string, bool, error)
}

// ProgressFunc reports handler progress in percent. Regressions are ignored;
// progress only moves forward.
type ProgressFunc func(progress int)

// Handler processes one claimed job. A returned error wrapped with
// core.Unrecoverable kills the job immediately; any other error schedules a
// retry until attempts run out.
type Handler func(ctx context.Context, job *Job, report ProgressFunc) error

// AIResponsePayload asks for one assistant turn in a conversation.
type AIResponsePayload struct {
	ConversationID  string `json:"conversation_id"`
	WorkspaceID     string `json:"workspace_id"`
	CustomerMessage string `json:"customer_message"`
	MessageID       string `json:"message_id,omitempty"`
}

// IngestionPayload asks for a full (re-)ingestion of a knowledge source.
// Content carries inline payloads (QA JSON, CSV text, manual text); URL
// sources carry their address on the source row instead.
type IngestionPayload struct {
	SourceID string `json:"source_id"`
	Content  string `json:"content,omitempty"`
}

// ChannelSendPayload delivers a stored message to the customer's channel.
type ChannelSendPayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Recipient      string `json:"recipient"`
	Body           string `json:"body"`
}

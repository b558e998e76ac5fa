package core

import "time"

const (
	CrewDeskName      = "CrewDesk"
	CrewDeskUserAgent = "CrewDesk-Bot/0.1"
	CrewDeskVersion   = "0.1.0"
)

// Role of a turn inside a conversation, as seen by the AI pipeline.
const (
	RoleCustomer  = "customer"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// MessageContext is one turn of conversation history. Immutable once created;
// consumers read a sliding window of the most recent turns.
type MessageContext struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatMessage is the wire shape sent to the completion provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type EscalationReason string

const (
	ReasonCustomerRequest   EscalationReason = "customer_request"
	ReasonNegativeSentiment EscalationReason = "negative_sentiment"
	ReasonSensitiveTopic    EscalationReason = "sensitive_topic"
	ReasonActionRequired    EscalationReason = "action_required"
	ReasonComplexQuery      EscalationReason = "complex_query"
	ReasonLowConfidence     EscalationReason = "low_confidence"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// EscalationVerdict is the classifier output. Pure function result, never
// persisted directly.
type EscalationVerdict struct {
	ShouldEscalate bool             `json:"should_escalate"`
	Reason         EscalationReason `json:"reason,omitempty"`
	Priority       Priority         `json:"priority"`
}

type SourceType string

const (
	SourceTypeURL    SourceType = "URL"
	SourceTypeQA     SourceType = "QA"
	SourceTypeCSV    SourceType = "CSV"
	SourceTypeManual SourceType = "MANUAL"
)

type SourceStatus string

const (
	SourceStatusPending    SourceStatus = "PENDING"
	SourceStatusProcessing SourceStatus = "PROCESSING"
	SourceStatusActive     SourceStatus = "ACTIVE"
	SourceStatusFailed     SourceStatus = "FAILED"
)

// SourceConfig holds per-source ingestion options, e.g. CSV column mapping.
type SourceConfig struct {
	QuestionColumn string `json:"question_column,omitempty"`
	AnswerColumn   string `json:"answer_column,omitempty"`
	ContentColumn  string `json:"content_column,omitempty"`
}

type KnowledgeSource struct {
	ID           string
	WorkspaceID  string
	Name         string
	Type         SourceType
	URL          string
	Status       SourceStatus
	Config       SourceConfig
	LastError    string
	LastSyncedAt *time.Time
	CreatedAt    time.Time
}

type ChunkMetadata struct {
	SourceID   string     `json:"source_id"`
	SourceName string     `json:"source_name"`
	SourceType SourceType `json:"source_type"`
	ChunkIndex int        `json:"chunk_index"`
}

// KnowledgeChunk is the retrieval granularity: a bounded text segment paired
// with its embedding vector. Created once per ingestion run, immutable, owned
// by its source.
type KnowledgeChunk struct {
	ID        string
	Content   string
	Embedding []float32
	TokenSize int
	Metadata  ChunkMetadata
}

// RetrievedChunk is a knowledge chunk scored against a query.
type RetrievedChunk struct {
	ID         string  `json:"id"`
	SourceName string  `json:"source_name"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// AIResponse is the orchestrator output for one turn. Ephemeral; persisted
// only as a message plus conversation-state side effects.
type AIResponse struct {
	Content            string
	Confidence         float64
	Sources            []RetrievedChunk
	ShouldEscalate     bool
	EscalationReason   EscalationReason
	EscalationPriority Priority
}

type Channel string

const (
	ChannelLiveChat Channel = "LIVE_CHAT"
	ChannelEmail    Channel = "EMAIL"
	ChannelWhatsApp Channel = "WHATSAPP"
)

type Handler string

const (
	HandlerAI      Handler = "AI"
	HandlerHuman   Handler = "HUMAN"
	HandlerPending Handler = "PENDING"
)

// ConversationContext is what the orchestrator sees of a conversation.
type ConversationContext struct {
	WorkspaceID    string
	ConversationID string
	CustomerID     string
	Channel        Channel
	History        []MessageContext
}

package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crewdesk/crewdesk/internal/config"
	"github.com/crewdesk/crewdesk/internal/core"
	"github.com/crewdesk/crewdesk/internal/orchestrator"
	"github.com/crewdesk/crewdesk/internal/retrieval"
	"github.com/crewdesk/crewdesk/pkg/log"
)

const (
	// How much history the responder loads; the orchestrator applies its own
	// narrower prompt window on top.
	historyLoadLimit = 20

	// Retrieval candidate cap per workspace.
	retrievalCandidateLimit = 100
)

const fallbackMessage = "I apologize, but I'm having trouble right now. Let me connect you with a team member."

// AIResponder handles ai-response jobs: retrieve, generate, persist, and
// queue the reply for delivery.
type AIResponder struct {
	conversations core.ConversationRepository
	messages      core.MessageRepository
	chunks        core.ChunkRepository
	embedder      core.Embedder
	orch          *orchestrator.Orchestrator
	producers     *Producers

	topK          int
	minSimilarity float64
}

func NewAIResponder(
	conversations core.ConversationRepository,
	messages core.MessageRepository,
	chunks core.ChunkRepository,
	embedder core.Embedder,
	orch *orchestrator.Orchestrator,
	producers *Producers,
	cfg *config.AIConfig,
) *AIResponder {
	return &AIResponder{
		conversations: conversations,
		messages:      messages,
		chunks:        chunks,
		embedder:      embedder,
		orch:          orch,
		producers:     producers,
		topK:          cfg.TopK,
		minSimilarity: cfg.MinChunkSimilarity,
	}
}

func (p *AIResponder) Process(ctx context.Context, job *Job, report ProgressFunc) error {
	var payload AIResponsePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return core.Unrecoverable(fmt.Errorf("invalid ai-response payload: %w", err))
	}

	report(10)

	conv, err := p.conversations.Get(ctx, payload.ConversationID)
	if err != nil {
		if err == core.ErrConversationNotFound {
			return core.Unrecoverable(err)
		}
		return err
	}

	// A human already owns the conversation; the AI stays silent.
	if conv.Handler == core.HandlerHuman {
		log.FromCtx(ctx).Debug().
			Str("conversation_id", conv.ID).
			Msg("conversation is human-handled, skipping")
		return nil
	}

	report(30)

	resp, err := p.respond(ctx, conv, payload, report)
	if err != nil {
		p.fallback(ctx, conv.ID)
		return err
	}

	report(90)

	confidence := resp.Confidence
	msg := &core.StoredMessage{
		ConversationID: conv.ID,
		Sender:         core.SenderAI,
		Content:        resp.Content,
		AIConfidence:   &confidence,
		SourceIDs:      sourceIDs(resp.Sources),
	}
	if err := p.messages.Add(ctx, msg); err != nil {
		p.fallback(ctx, conv.ID)
		return fmt.Errorf("failed to store ai message: %w", err)
	}

	if resp.ShouldEscalate {
		priority := resp.EscalationPriority
		if priority == "" {
			priority = core.PriorityNormal
		}
		changed, err := p.conversations.MarkEscalated(ctx, conv.ID, priority)
		if err != nil {
			return fmt.Errorf("failed to escalate conversation: %w", err)
		}
		if !changed {
			log.FromCtx(ctx).Info().
				Str("conversation_id", conv.ID).
				Msg("escalation skipped, human already took over")
		}
	}

	if _, _, err := p.producers.EnqueueChannelSend(ctx, ChannelSendPayload{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		Recipient:      conv.CustomerID,
		Body:           resp.Content,
	}); err != nil {
		return fmt.Errorf("failed to queue delivery: %w", err)
	}

	report(100)
	return nil
}

func (p *AIResponder) respond(ctx context.Context, conv *core.Conversation, payload AIResponsePayload, report ProgressFunc) (*core.AIResponse, error) {
	queryVec, err := p.embedder.Embed(ctx, payload.CustomerMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidates, err := p.chunks.ListByWorkspace(ctx, conv.WorkspaceID, retrievalCandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge chunks: %w", err)
	}

	report(50)

	relevant, err := retrieval.TopK(queryVec, candidates, p.topK, p.minSimilarity)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	report(70)

	stored, err := p.conversations.RecentMessages(ctx, conv.ID, historyLoadLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	convCtx := &core.ConversationContext{
		WorkspaceID:    conv.WorkspaceID,
		ConversationID: conv.ID,
		CustomerID:     conv.CustomerID,
		Channel:        conv.Channel,
		History:        toHistory(stored),
	}
	return p.orch.Respond(ctx, convCtx, payload.CustomerMessage, relevant), nil
}

// fallback leaves an apology and flags the conversation when processing
// breaks before a response could be generated. Best effort; the job error is
// what the caller reports.
func (p *AIResponder) fallback(ctx context.Context, conversationID string) {
	logger := log.FromCtx(ctx)
	zero := 0.0
	if err := p.messages.Add(ctx, &core.StoredMessage{
		ConversationID: conversationID,
		Sender:         core.SenderAI,
		Content:        fallbackMessage,
		AIConfidence:   &zero,
	}); err != nil {
		logger.Error().Err(err).Msg("failed to store fallback message")
	}
	if _, err := p.conversations.MarkEscalated(ctx, conversationID, core.PriorityNormal); err != nil {
		logger.Error().Err(err).Msg("failed to escalate after failure")
	}
}

func toHistory(stored []core.StoredMessage) []core.MessageContext {
	history := make([]core.MessageContext, 0, len(stored))
	for _, m := range stored {
		role := core.RoleAssistant
		if m.Sender == core.SenderCustomer {
			role = core.RoleCustomer
		}
		history = append(history, core.MessageContext{
			Role:      role,
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		})
	}
	return history
}

func sourceIDs(sources []core.RetrievedChunk) []string {
	ids := make([]string, len(sources))
	for i, s := range sources {
		ids[i] = s.ID
	}
	return ids
}

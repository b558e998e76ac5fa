package jobs

import (
	"context"
	"fmt"
	"time"
)

// Producers wraps the Scheduler with the well-known job shapes and their
// idempotency keys.
type Producers struct {
	scheduler Scheduler
}

func NewProducers(scheduler Scheduler) *Producers {
	return &Producers{scheduler: scheduler}
}

// EnqueueAIResponse schedules an assistant turn. The key carries a timestamp
// so each customer message gets its own job while rapid duplicates collapse.
func (p *Producers) EnqueueAIResponse(ctx context.Context, payload AIResponsePayload) (string, bool, error) {
	return p.scheduler.Enqueue(ctx, EnqueueRequest{
		Queue:   QueueAIResponse,
		Key:     fmt.Sprintf("ai-%s-%d", payload.ConversationID, time.Now().UnixMilli()),
		Payload: payload,
	})
}

// EnqueueKnowledgeIngestion schedules a source (re-)ingestion. One live job
// per source: re-submitting while an ingestion is pending is a no-op.
func (p *Producers) EnqueueKnowledgeIngestion(ctx context.Context, payload IngestionPayload) (string, bool, error) {
	return p.scheduler.Enqueue(ctx, EnqueueRequest{
		Queue:       QueueIngestion,
		Key:         "ingest-" + payload.SourceID,
		Payload:     payload,
		MaxAttempts: IngestionMaxAttempts,
	})
}

// EnqueueChannelSend schedules outbound delivery of a stored message.
func (p *Producers) EnqueueChannelSend(ctx context.Context, payload ChannelSendPayload) (string, bool, error) {
	return p.scheduler.Enqueue(ctx, EnqueueRequest{
		Queue:   QueueChannelSend,
		Key:     "send-" + payload.MessageID,
		Payload: payload,
	})
}

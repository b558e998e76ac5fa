package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crewdesk/crewdesk/internal/core"
	"github.com/crewdesk/crewdesk/pkg/log"
)

// ChannelSendProcessor delivers stored messages over the outbound channel
// and records the delivery receipt.
type ChannelSendProcessor struct {
	messages core.MessageRepository
	sender   core.ChannelSender
}

func NewChannelSendProcessor(messages core.MessageRepository, sender core.ChannelSender) *ChannelSendProcessor {
	return &ChannelSendProcessor{messages: messages, sender: sender}
}

func (p *ChannelSendProcessor) Process(ctx context.Context, job *Job, report ProgressFunc) error {
	var payload ChannelSendPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return core.Unrecoverable(fmt.Errorf("invalid channel-send payload: %w", err))
	}

	report(50)

	deliveryID, err := p.sender.Send(ctx, payload.Recipient, payload.Body)
	if err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}

	if err := p.messages.SetDeliveryID(ctx, payload.MessageID, deliveryID); err != nil {
		// The message went out; a missing receipt must not retry the send.
		log.FromCtx(ctx).Warn().Err(err).
			Str("message_id", payload.MessageID).
			Msg("failed to record delivery id")
	}

	report(100)
	return nil
}

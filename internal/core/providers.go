package core

import "context"

// CompletionProvider is the generation service. One call, no internal retry;
// retries belong to the job layer.
type CompletionProvider interface {
	Complete(ctx context.Context, messages []ChatMessage, maxTokens int, temperature float64) (string, error)
}

// Embedder is the vector-embedding service.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChannelSender delivers an outbound message on an external channel
// (email/WhatsApp gateway). Invoked by queued jobs, never by the
// orchestrator directly.
type ChannelSender interface {
	Send(ctx context.Context, recipient, body string) (deliveryID string, err error)
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/crewdesk/crewdesk/internal/config"
	"github.com/crewdesk/crewdesk/internal/core"
	"github.com/crewdesk/crewdesk/internal/escalation"
	"github.com/crewdesk/crewdesk/internal/ingest"
	"github.com/crewdesk/crewdesk/internal/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeConvRepo struct {
	conv      *core.Conversation
	history   []core.StoredMessage
	escalated []core.Priority
	tookOver  bool
}

func (f *fakeConvRepo) Get(ctx context.Context, id string) (*core.Conversation, error) {
	if f.conv == nil || f.conv.ID != id {
		return nil, core.ErrConversationNotFound
	}
	return f.conv, nil
}

func (f *fakeConvRepo) RecentMessages(ctx context.Context, conversationID string, limit int) ([]core.StoredMessage, error) {
	return f.history, nil
}

func (f *fakeConvRepo) MarkEscalated(ctx context.Context, id string, priority core.Priority) (bool, error) {
	f.escalated = append(f.escalated, priority)
	return !f.tookOver, nil
}

func (f *fakeConvRepo) TakeOver(ctx context.Context, id string) error {
	f.tookOver = true
	return nil
}

type fakeMsgRepo struct {
	added       []*core.StoredMessage
	deliveryIDs map[string]string
}

func (f *fakeMsgRepo) Add(ctx context.Context, msg *core.StoredMessage) error {
	if msg.ID == "" {
		msg.ID = "msg-" + string(rune('1'+len(f.added)))
	}
	f.added = append(f.added, msg)
	return nil
}

func (f *fakeMsgRepo) SetDeliveryID(ctx context.Context, messageID, deliveryID string) error {
	if f.deliveryIDs == nil {
		f.deliveryIDs = map[string]string{}
	}
	f.deliveryIDs[messageID] = deliveryID
	return nil
}

type fakeChunkRepo struct {
	chunks   []core.KnowledgeChunk
	replaced map[string][]core.KnowledgeChunk
}

func (f *fakeChunkRepo) ReplaceForSource(ctx context.Context, sourceID string, chunks []core.KnowledgeChunk) error {
	if f.replaced == nil {
		f.replaced = map[string][]core.KnowledgeChunk{}
	}
	f.replaced[sourceID] = chunks
	return nil
}

func (f *fakeChunkRepo) ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]core.KnowledgeChunk, error) {
	return f.chunks, nil
}

type fakeSourceRepo struct {
	source   *core.KnowledgeSource
	statuses []core.SourceStatus
	lastErr  string
	synced   bool
}

func (f *fakeSourceRepo) Get(ctx context.Context, id string) (*core.KnowledgeSource, error) {
	if f.source == nil || f.source.ID != id {
		return nil, core.ErrSourceNotFound
	}
	return f.source, nil
}

func (f *fakeSourceRepo) SetStatus(ctx context.Context, id string, status core.SourceStatus, lastError string) error {
	f.statuses = append(f.statuses, status)
	f.lastErr = lastError
	return nil
}

func (f *fakeSourceRepo) MarkSynced(ctx context.Context, id string) error {
	f.synced = true
	f.statuses = append(f.statuses, core.SourceStatusActive)
	return nil
}

func (f *fakeSourceRepo) Delete(ctx context.Context, id string) error { return nil }

type procEmbedder struct {
	vec []float32
	err error
}

func (f *procEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func (f *procEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

type procProvider struct {
	reply string
	err   error
}

func (f *procProvider) Complete(ctx context.Context, messages []core.ChatMessage, maxTokens int, temperature float64) (string, error) {
	return f.reply, f.err
}

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(ctx context.Context, recipient, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, body)
	return "delivery-1", nil
}

type fakeScheduler struct {
	requests []EnqueueRequest
}

func (f *fakeScheduler) Enqueue(ctx context.Context, req EnqueueRequest) (string, bool, error) {
	f.requests = append(f.requests, req)
	return "job-1", true, nil
}

// --- helpers ---

func aiJob(t *testing.T, payload any) *Job {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &Job{ID: "job-1", Queue: QueueAIResponse, Payload: data, Attempts: 1, MaxAttempts: 3}
}

func noProgress(int) {}

func newResponder(convs *fakeConvRepo, msgs *fakeMsgRepo, chunks *fakeChunkRepo, emb *procEmbedder, provider *procProvider, sched *fakeScheduler) *AIResponder {
	cfg := &config.AIConfig{
		MaxTokens:           500,
		Temperature:         0.7,
		ConfidenceThreshold: 0.7,
		HistoryWindow:       10,
		TopK:                5,
		MinChunkSimilarity:  0.7,
	}
	orch := orchestrator.New(provider, escalation.NewClassifier(escalation.DefaultConfig()), cfg)
	return NewAIResponder(convs, msgs, chunks, emb, orch, NewProducers(sched), cfg)
}

func liveConversation() *core.Conversation {
	return &core.Conversation{
		ID:          "conv-1",
		WorkspaceID: "ws-1",
		CustomerID:  "cust-1",
		Channel:     core.ChannelLiveChat,
		Handler:     core.HandlerAI,
	}
}

func knowledge(vec []float32) []core.KnowledgeChunk {
	return []core.KnowledgeChunk{{
		ID:        "chunk-1",
		Content:   "The Team plan includes five seats and priority support.",
		Embedding: vec,
		Metadata:  core.ChunkMetadata{SourceName: "Plans"},
	}}
}

// --- AIResponder ---

func TestAIResponder_HappyPath(t *testing.T) {
	convs := &fakeConvRepo{conv: liveConversation()}
	msgs := &fakeMsgRepo{}
	chunks := &fakeChunkRepo{chunks: knowledge([]float32{1, 0})}
	sched := &fakeScheduler{}
	provider := &procProvider{reply: "We offer Starter and Team plans; the Team plan includes five seats."}
	p := newResponder(convs, msgs, chunks, &procEmbedder{vec: []float32{1, 0}}, provider, sched)

	err := p.Process(context.Background(), aiJob(t, AIResponsePayload{
		ConversationID:  "conv-1",
		WorkspaceID:     "ws-1",
		CustomerMessage: "What plans do you offer?",
	}), noProgress)
	require.NoError(t, err)

	require.Len(t, msgs.added, 1)
	stored := msgs.added[0]
	assert.Equal(t, core.SenderAI, stored.Sender)
	assert.Equal(t, provider.reply, stored.Content)
	require.NotNil(t, stored.AIConfidence)
	assert.Greater(t, *stored.AIConfidence, 0.7)
	assert.Equal(t, []string{"chunk-1"}, stored.SourceIDs)

	// High confidence: no escalation.
	assert.Empty(t, convs.escalated)

	// Delivery queued for the customer.
	require.Len(t, sched.requests, 1)
	assert.Equal(t, QueueChannelSend, sched.requests[0].Queue)
	assert.Equal(t, "send-"+stored.ID, sched.requests[0].Key)
}

func TestAIResponder_SkipsHumanHandled(t *testing.T) {
	conv := liveConversation()
	conv.Handler = core.HandlerHuman
	convs := &fakeConvRepo{conv: conv}
	msgs := &fakeMsgRepo{}
	sched := &fakeScheduler{}
	p := newResponder(convs, msgs, &fakeChunkRepo{}, &procEmbedder{vec: []float32{1}}, &procProvider{reply: "x"}, sched)

	err := p.Process(context.Background(), aiJob(t, AIResponsePayload{ConversationID: "conv-1"}), noProgress)
	require.NoError(t, err)
	assert.Empty(t, msgs.added)
	assert.Empty(t, sched.requests)
}

func TestAIResponder_MissingConversationIsUnrecoverable(t *testing.T) {
	p := newResponder(&fakeConvRepo{}, &fakeMsgRepo{}, &fakeChunkRepo{}, &procEmbedder{vec: []float32{1}}, &procProvider{}, &fakeScheduler{})

	err := p.Process(context.Background(), aiJob(t, AIResponsePayload{ConversationID: "ghost"}), noProgress)
	require.Error(t, err)
	assert.True(t, core.IsUnrecoverable(err))
}

func TestAIResponder_MalformedPayloadIsUnrecoverable(t *testing.T) {
	p := newResponder(&fakeConvRepo{}, &fakeMsgRepo{}, &fakeChunkRepo{}, &procEmbedder{}, &procProvider{}, &fakeScheduler{})

	err := p.Process(context.Background(), &Job{Payload: []byte("{broken")}, noProgress)
	require.Error(t, err)
	assert.True(t, core.IsUnrecoverable(err))
}

func TestAIResponder_EscalatesOnCustomerRequest(t *testing.T) {
	convs := &fakeConvRepo{conv: liveConversation()}
	msgs := &fakeMsgRepo{}
	sched := &fakeScheduler{}
	p := newResponder(convs, msgs, &fakeChunkRepo{}, &procEmbedder{vec: []float32{1, 0}}, &procProvider{reply: "unused"}, sched)

	err := p.Process(context.Background(), aiJob(t, AIResponsePayload{
		ConversationID:  "conv-1",
		CustomerMessage: "I want to talk to a real person",
	}), noProgress)
	require.NoError(t, err)

	require.Len(t, convs.escalated, 1)
	assert.Equal(t, core.PriorityHigh, convs.escalated[0])
	// The canned deflection is still delivered.
	require.Len(t, msgs.added, 1)
	assert.Equal(t, orchestrator.EscalationMessage(core.ReasonCustomerRequest), msgs.added[0].Content)
	require.Len(t, sched.requests, 1)
}

func TestAIResponder_EmbedFailureLeavesFallback(t *testing.T) {
	convs := &fakeConvRepo{conv: liveConversation()}
	msgs := &fakeMsgRepo{}
	p := newResponder(convs, msgs, &fakeChunkRepo{}, &procEmbedder{err: errors.New("embedding down")}, &procProvider{}, &fakeScheduler{})

	err := p.Process(context.Background(), aiJob(t, AIResponsePayload{
		ConversationID:  "conv-1",
		CustomerMessage: "What plans do you offer for teams?",
	}), noProgress)
	require.Error(t, err)
	assert.False(t, core.IsUnrecoverable(err))

	require.Len(t, msgs.added, 1)
	assert.Equal(t, fallbackMessage, msgs.added[0].Content)
	require.Len(t, convs.escalated, 1)
}

// --- IngestionProcessor ---

func ingestJob(t *testing.T, payload IngestionPayload) *Job {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &Job{ID: "job-2", Queue: QueueIngestion, Payload: data, Attempts: 1, MaxAttempts: 2}
}

func TestIngestionProcessor_HappyPath(t *testing.T) {
	src := &core.KnowledgeSource{
		ID:          "src-1",
		WorkspaceID: "ws-1",
		Name:        "Policies",
		Type:        core.SourceTypeManual,
		Status:      core.SourceStatusPending,
	}
	sources := &fakeSourceRepo{source: src}
	chunks := &fakeChunkRepo{}
	ing := ingest.New(nil, &procEmbedder{vec: []float32{1, 2}})
	p := NewIngestionProcessor(sources, chunks, ing)

	content := "Our refund policy allows returns within thirty days of purchase for any reason."
	err := p.Process(context.Background(), ingestJob(t, IngestionPayload{SourceID: "src-1", Content: content}), noProgress)
	require.NoError(t, err)

	assert.True(t, sources.synced)
	assert.Equal(t, []core.SourceStatus{core.SourceStatusProcessing, core.SourceStatusActive}, sources.statuses)
	require.Len(t, chunks.replaced["src-1"], 1)
	assert.Contains(t, chunks.replaced["src-1"][0].Content, "refund policy")
}

func TestIngestionProcessor_MissingSourceIsUnrecoverable(t *testing.T) {
	p := NewIngestionProcessor(&fakeSourceRepo{}, &fakeChunkRepo{}, ingest.New(nil, &procEmbedder{}))

	err := p.Process(context.Background(), ingestJob(t, IngestionPayload{SourceID: "ghost"}), noProgress)
	require.Error(t, err)
	assert.True(t, core.IsUnrecoverable(err))
}

func TestIngestionProcessor_FailureMarksSourceFailed(t *testing.T) {
	src := &core.KnowledgeSource{
		ID:     "src-1",
		Name:   "Broken QA",
		Type:   core.SourceTypeQA,
		Status: core.SourceStatusPending,
	}
	sources := &fakeSourceRepo{source: src}
	p := NewIngestionProcessor(sources, &fakeChunkRepo{}, ingest.New(nil, &procEmbedder{}))

	err := p.Process(context.Background(), ingestJob(t, IngestionPayload{SourceID: "src-1", Content: "{not json"}), noProgress)
	require.Error(t, err)
	assert.True(t, core.IsUnrecoverable(err))

	require.NotEmpty(t, sources.statuses)
	assert.Equal(t, core.SourceStatusFailed, sources.statuses[len(sources.statuses)-1])
	assert.Contains(t, sources.lastErr, "q&a payload")
	assert.False(t, sources.synced)
}

// --- ChannelSendProcessor ---

func TestChannelSendProcessor_Delivers(t *testing.T) {
	msgs := &fakeMsgRepo{}
	sender := &fakeSender{}
	p := NewChannelSendProcessor(msgs, sender)

	data, err := json.Marshal(ChannelSendPayload{
		MessageID: "msg-1", ConversationID: "conv-1", Recipient: "cust-1", Body: "Hello!",
	})
	require.NoError(t, err)

	err = p.Process(context.Background(), &Job{Payload: data}, noProgress)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello!"}, sender.sent)
	assert.Equal(t, "delivery-1", msgs.deliveryIDs["msg-1"])
}

func TestChannelSendProcessor_SendFailureRetries(t *testing.T) {
	p := NewChannelSendProcessor(&fakeMsgRepo{}, &fakeSender{err: errors.New("webhook 503")})

	data, _ := json.Marshal(ChannelSendPayload{MessageID: "msg-1", Body: "Hello!"})
	err := p.Process(context.Background(), &Job{Payload: data}, noProgress)
	require.Error(t, err)
	assert.False(t, core.IsUnrecoverable(err))
}

package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/crewdesk/crewdesk/internal/config"
	"github.com/crewdesk/crewdesk/internal/core"
	"github.com/crewdesk/crewdesk/internal/escalation"
	"github.com/crewdesk/crewdesk/pkg/log"
)

const systemPrompt = `You are a helpful customer support AI assistant. Your role is to:
1. Answer customer questions accurately and helpfully
2. Use ONLY the provided knowledge base context to answer questions
3. If you're not confident about an answer, say so honestly
4. Be concise but thorough
5. Maintain a friendly, professional tone
6. If the customer seems frustrated or the question is complex, suggest escalating to a human agent

IMPORTANT: Never make up information. Only use facts from the provided context.
If you cannot answer from the context, politely say you'll need to connect them with a team member.`

const apologyMessage = "I apologize, but I'm having trouble processing your request. Let me connect you with a team member who can help."

// Phrases that signal a hedged answer; each occurrence class lowers the
// confidence score once.
var uncertainPhrases = []string{
	"i'm not sure",
	"i don't know",
	"i cannot",
	"i'm unable",
	"might be",
	"could be",
	"perhaps",
	"maybe",
}

var escalationMessages = map[core.EscalationReason]string{
	core.ReasonCustomerRequest:   "Of course! I'll connect you with a team member right away. They'll be with you shortly.",
	core.ReasonNegativeSentiment: "I understand this is frustrating. Let me connect you with a team member who can help resolve this for you.",
	core.ReasonSensitiveTopic:    "I'd like to make sure you get the best possible help with this. Let me connect you with a team member.",
	core.ReasonLowConfidence:     "That's a great question! To make sure you get accurate information, let me connect you with a team member.",
	core.ReasonComplexQuery:      "This requires some detailed attention. Let me connect you with a specialist who can help.",
	core.ReasonActionRequired:    "To complete this request, I'll need to connect you with a team member who can take action on your behalf.",
}

// EscalationMessage returns the canned deflection for a reason.
func EscalationMessage(reason core.EscalationReason) string {
	if msg, ok := escalationMessages[reason]; ok {
		return msg
	}
	return "Let me connect you with a team member who can assist you further."
}

// Orchestrator produces one assistant turn: it deflects messages the
// classifier flags, otherwise grounds a completion in the retrieved chunks
// and scores its own confidence.
type Orchestrator struct {
	provider   core.CompletionProvider
	classifier *escalation.Classifier

	maxTokens           int
	temperature         float64
	confidenceThreshold float64
	historyWindow       int
}

func New(provider core.CompletionProvider, classifier *escalation.Classifier, cfg *config.AIConfig) *Orchestrator {
	return &Orchestrator{
		provider:            provider,
		classifier:          classifier,
		maxTokens:           cfg.MaxTokens,
		temperature:         cfg.Temperature,
		confidenceThreshold: cfg.ConfidenceThreshold,
		historyWindow:       cfg.HistoryWindow,
	}
}

// Respond never returns an error for a generation failure; the customer gets
// an apology and the conversation escalates instead.
func (o *Orchestrator) Respond(ctx context.Context, conv *core.ConversationContext, userMessage string, sources []core.RetrievedChunk) *core.AIResponse {
	logger := log.FromCtx(ctx)

	if verdict := o.classifier.Classify(userMessage, conv.History); verdict.ShouldEscalate {
		logger.Info().
			Str("conversation_id", conv.ConversationID).
			Str("reason", string(verdict.Reason)).
			Msg("pre-generation escalation")
		return &core.AIResponse{
			Content:            EscalationMessage(verdict.Reason),
			Confidence:         0,
			ShouldEscalate:     true,
			EscalationReason:   verdict.Reason,
			EscalationPriority: verdict.Priority,
		}
	}

	messages := o.buildMessages(conv, userMessage, sources)
	content, err := o.provider.Complete(ctx, messages, o.maxTokens, o.temperature)
	if err != nil {
		logger.Error().Err(err).
			Str("conversation_id", conv.ConversationID).
			Msg("completion failed")
		return &core.AIResponse{
			Content:            apologyMessage,
			Confidence:         0,
			ShouldEscalate:     true,
			EscalationReason:   core.ReasonComplexQuery,
			EscalationPriority: core.PriorityNormal,
		}
	}

	confidence := scoreConfidence(sources, content)
	resp := &core.AIResponse{
		Content:    content,
		Confidence: confidence,
		Sources:    sources,
	}
	// A low-confidence answer is still delivered; escalation happens in
	// parallel so a human can follow up.
	if confidence < o.confidenceThreshold {
		resp.ShouldEscalate = true
		resp.EscalationReason = core.ReasonLowConfidence
		resp.EscalationPriority = core.PriorityNormal
	}
	return resp
}

func (o *Orchestrator) buildMessages(conv *core.ConversationContext, userMessage string, sources []core.RetrievedChunk) []core.ChatMessage {
	knowledgeContext := "No relevant context found."
	if len(sources) > 0 {
		blocks := make([]string, len(sources))
		for i, s := range sources {
			blocks[i] = fmt.Sprintf("[Source %d: %s]\n%s", i+1, s.SourceName, s.Content)
		}
		knowledgeContext = strings.Join(blocks, "\n\n")
	}

	messages := []core.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "system", Content: "KNOWLEDGE BASE CONTEXT:\n" + knowledgeContext},
	}

	history := conv.History
	if len(history) > o.historyWindow {
		history = history[len(history)-o.historyWindow:]
	}
	for _, m := range history {
		role := m.Role
		if role == core.RoleCustomer {
			role = "user"
		}
		messages = append(messages, core.ChatMessage{Role: role, Content: m.Content})
	}

	return append(messages, core.ChatMessage{Role: "user", Content: userMessage})
}

// scoreConfidence starts from a 0.5 base, rewards similar sources and longer
// grounded answers, and penalizes hedged language. Clamped to [0, 1].
func scoreConfidence(sources []core.RetrievedChunk, response string) float64 {
	confidence := 0.5

	if len(sources) > 0 {
		var sum float64
		for _, s := range sources {
			sum += s.Similarity
		}
		confidence += (sum / float64(len(sources))) * 0.3
	}

	lower := strings.ToLower(response)
	for _, phrase := range uncertainPhrases {
		if strings.Contains(lower, phrase) {
			confidence -= 0.2
			break
		}
	}

	if len(response) > 50 && len(sources) > 0 {
		confidence += 0.1
	}

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

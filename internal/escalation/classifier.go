package escalation

import (
	"strings"

	"github.com/crewdesk/crewdesk/internal/core"
)

// Config exposes the heuristic knobs as tunables. The defaults match the
// behavior the product shipped with; there is no stronger rationale behind
// them yet.
type Config struct {
	// RecentFrustrationWindow is how many trailing history turns are scanned
	// for earlier negative sentiment before raising priority to urgent.
	RecentFrustrationWindow int
	// RepeatOverlapRatio is the word-overlap share of the smaller message
	// above which two messages count as similar.
	RepeatOverlapRatio float64
	// RepeatThreshold is how many prior similar customer messages trigger the
	// repeated-question rule.
	RepeatThreshold int
}

func DefaultConfig() Config {
	return Config{
		RecentFrustrationWindow: 5,
		RepeatOverlapRatio:      0.5,
		RepeatThreshold:         2,
	}
}

// rule is one escalation trigger. Rules are evaluated in order and the first
// match wins, so earlier rules pre-empt later ones.
type rule struct {
	reason   core.EscalationReason
	match    func(c *Classifier, message string, history []core.MessageContext) bool
	priority func(c *Classifier, message string, history []core.MessageContext) core.Priority
}

// Classifier decides whether a message should be handed to a human. Pure and
// deterministic; no I/O.
type Classifier struct {
	cfg   Config
	rules []rule
}

func NewClassifier(cfg Config) *Classifier {
	c := &Classifier{cfg: cfg}
	c.rules = []rule{
		{
			reason: core.ReasonCustomerRequest,
			match: func(_ *Classifier, msg string, _ []core.MessageContext) bool {
				return matchesAny(msg, humanRequestPatterns)
			},
			priority: fixedPriority(core.PriorityHigh),
		},
		{
			reason: core.ReasonNegativeSentiment,
			match: func(_ *Classifier, msg string, _ []core.MessageContext) bool {
				return matchesAny(msg, negativeSentimentPatterns)
			},
			priority: func(c *Classifier, _ string, history []core.MessageContext) core.Priority {
				if c.hasRecentFrustration(history) {
					return core.PriorityUrgent
				}
				return core.PriorityHigh
			},
		},
		{
			reason: core.ReasonSensitiveTopic,
			match: func(_ *Classifier, msg string, _ []core.MessageContext) bool {
				return matchesAny(msg, sensitiveTopicPatterns)
			},
			priority: fixedPriority(core.PriorityHigh),
		},
		{
			reason: core.ReasonActionRequired,
			match: func(_ *Classifier, msg string, _ []core.MessageContext) bool {
				return matchesAny(msg, actionRequiredPatterns)
			},
			priority: fixedPriority(core.PriorityNormal),
		},
		{
			reason: core.ReasonComplexQuery,
			match: func(c *Classifier, msg string, history []core.MessageContext) bool {
				return c.hasRepeatedQuestions(msg, history)
			},
			priority: fixedPriority(core.PriorityNormal),
		},
	}
	return c
}

// Classify runs the ordered rule list against the current message and recent
// history and returns the first matching verdict.
func (c *Classifier) Classify(message string, history []core.MessageContext) core.EscalationVerdict {
	for _, r := range c.rules {
		if r.match(c, message, history) {
			return core.EscalationVerdict{
				ShouldEscalate: true,
				Reason:         r.reason,
				Priority:       r.priority(c, message, history),
			}
		}
	}
	return core.EscalationVerdict{
		ShouldEscalate: false,
		Priority:       core.PriorityNormal,
	}
}

func fixedPriority(p core.Priority) func(*Classifier, string, []core.MessageContext) core.Priority {
	return func(*Classifier, string, []core.MessageContext) core.Priority {
		return p
	}
}

// hasRecentFrustration reports whether any of the trailing customer turns
// also matched negative-sentiment phrasing.
func (c *Classifier) hasRecentFrustration(history []core.MessageContext) bool {
	window := history
	if len(window) > c.cfg.RecentFrustrationWindow {
		window = window[len(window)-c.cfg.RecentFrustrationWindow:]
	}
	for _, m := range window {
		if m.Role != core.RoleCustomer {
			continue
		}
		if matchesAny(m.Content, negativeSentimentPatterns) {
			return true
		}
	}
	return false
}

// hasRepeatedQuestions checks whether the customer has already asked
// something close to the current message multiple times.
func (c *Classifier) hasRepeatedQuestions(message string, history []core.MessageContext) bool {
	currentWords := wordSet(strings.ToLower(message))
	if len(currentWords) == 0 {
		return false
	}

	similar := 0
	for _, m := range history {
		if m.Role != core.RoleCustomer {
			continue
		}
		msgWords := strings.Fields(strings.ToLower(m.Content))
		if len(msgWords) == 0 {
			continue
		}

		overlap := 0
		for _, w := range msgWords {
			if _, ok := currentWords[w]; ok {
				overlap++
			}
		}

		smaller := len(currentWords)
		if len(msgWords) < smaller {
			smaller = len(msgWords)
		}
		if float64(overlap) > float64(smaller)*c.cfg.RepeatOverlapRatio {
			similar++
		}
	}
	return similar >= c.cfg.RepeatThreshold
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(text) {
		set[w] = struct{}{}
	}
	return set
}

package escalation

import "strings"

var negativeWords = []string{
	"bad", "terrible", "awful", "horrible", "hate", "angry", "frustrated",
	"disappointed", "upset", "annoyed", "problem", "issue", "broken", "wrong",
}

var positiveWords = []string{
	"good", "great", "excellent", "amazing", "love", "happy", "pleased",
	"satisfied", "helpful", "thanks", "thank you", "appreciate", "perfect",
}

// Sentiment scores text in [-1, 1] from fixed keyword lists, each hit worth
// ±0.2. A secondary signal only; escalation gating runs on the rule list.
func Sentiment(text string) float64 {
	score := 0.0
	lower := strings.ToLower(text)

	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			score -= 0.2
		}
	}
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			score += 0.2
		}
	}

	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}

package escalation

import "regexp"

var humanRequestPatterns = compileAll(
	`speak (to|with) (a |an )?human`,
	`talk to (a |an )?(real |actual )?person`,
	`speak (to |with )?(a |an )?(real |actual )?person`,
	`human (agent|support|representative)`,
	`real person`,
	`not a bot`,
	`connect me (to|with)`,
	`transfer me`,
	`escalate`,
	`manager`,
	`supervisor`,
)

var negativeSentimentPatterns = compileAll(
	`frustrated`,
	`angry`,
	`furious`,
	`unacceptable`,
	`terrible`,
	`worst`,
	`horrible`,
	`disgusted`,
	`hate`,
	`ridiculous`,
	`absurd`,
	`incompetent`,
	`useless`,
	`waste of time`,
	`never (again|buying|using)`,
	`cancel (my |the )?(account|subscription|order)`,
)

var sensitiveTopicPatterns = compileAll(
	`refund`,
	`money back`,
	`legal`,
	`lawyer`,
	`sue`,
	`lawsuit`,
	`complaint`,
	`report`,
	`fraud`,
	`scam`,
	`unauthorized`,
	`stolen`,
	`hacked`,
	`security (breach|issue|concern)`,
	`privacy`,
	`data (breach|leak)`,
)

var actionRequiredPatterns = compileAll(
	`cancel (my |the )?order`,
	`process (my |the |a )?refund`,
	`change (my |the )?address`,
	`update (my |the )?payment`,
	`delete (my |the )?account`,
	`close (my |the )?account`,
	`modify (my |the )?subscription`,
	`change (my |the )?plan`,
)

func compileAll(exprs ...string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		patterns = append(patterns, regexp.MustCompile(`(?i)`+expr))
	}
	return patterns
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

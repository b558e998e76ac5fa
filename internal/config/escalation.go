package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/crewdesk/crewdesk/pkg/log"
)

// EscalationConfig tunes the classifier heuristics. Defaults match the
// shipped behavior.
type EscalationConfig struct {
	RecentFrustrationWindow int     `env:"ESCALATION_FRUSTRATION_WINDOW" envDefault:"5"`
	RepeatOverlapRatio      float64 `env:"ESCALATION_REPEAT_OVERLAP" envDefault:"0.5"`
	RepeatThreshold         int     `env:"ESCALATION_REPEAT_THRESHOLD" envDefault:"2"`
}

func NewEscalationConfig(ctx context.Context) *EscalationConfig {
	c := &EscalationConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Escalation config")
	}
	return c
}

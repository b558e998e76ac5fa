package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/crewdesk/crewdesk/pkg/log"
)

type AIConfig struct {
	APIKey  string `env:"OPENAI_API_KEY,required,notEmpty"`
	BaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com"`

	Model          string `env:"OPENAI_MODEL" envDefault:"gpt-4o"`
	EmbeddingModel string `env:"OPENAI_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`

	MaxTokens   int     `env:"AI_MAX_TOKENS" envDefault:"500"`
	Temperature float64 `env:"AI_TEMPERATURE" envDefault:"0.7"`

	// Responses scoring below the threshold are delivered but flagged for
	// human handoff.
	ConfidenceThreshold float64 `env:"AI_CONFIDENCE_THRESHOLD" envDefault:"0.7"`

	// Embedding inputs are truncated to this many tokens before the upstream
	// call (approximated as 4 chars per token).
	MaxEmbeddingTokens int `env:"AI_MAX_EMBEDDING_TOKENS" envDefault:"8000"`

	TopK               int     `env:"AI_TOP_K" envDefault:"5"`
	MinChunkSimilarity float64 `env:"AI_MIN_CHUNK_SIMILARITY" envDefault:"0.7"`
	HistoryWindow      int     `env:"AI_HISTORY_WINDOW" envDefault:"10"`
}

func NewAIConfig(ctx context.Context) *AIConfig {
	c := &AIConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse AI config")
	}
	return c
}

package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/crewdesk/crewdesk/pkg/log"
)

type JobsConfig struct {
	PollInterval time.Duration `env:"JOBS_POLL_INTERVAL" envDefault:"500ms"`

	AIResponseConcurrency int `env:"JOBS_AI_CONCURRENCY" envDefault:"5"`
	IngestionConcurrency  int `env:"JOBS_INGESTION_CONCURRENCY" envDefault:"2"`
	ChannelConcurrency    int `env:"JOBS_CHANNEL_CONCURRENCY" envDefault:"5"`

	// AI-response starts are capped per second to protect the upstream model.
	AIResponseRatePerSec float64 `env:"JOBS_AI_RATE_PER_SEC" envDefault:"10"`

	// Retention windows for inspecting finished jobs.
	CompletedRetention time.Duration `env:"JOBS_COMPLETED_RETENTION" envDefault:"24h"`
	DeadRetention      time.Duration `env:"JOBS_DEAD_RETENTION" envDefault:"168h"`
	SweepInterval      time.Duration `env:"JOBS_SWEEP_INTERVAL" envDefault:"1h"`
}

func NewJobsConfig(ctx context.Context) *JobsConfig {
	c := &JobsConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Jobs config")
	}
	return c
}

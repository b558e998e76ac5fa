package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/crewdesk/crewdesk/pkg/log"
)

type CrawlerConfig struct {
	MaxPages     int           `env:"CRAWLER_MAX_PAGES" envDefault:"60"`
	FetchTimeout time.Duration `env:"CRAWLER_FETCH_TIMEOUT" envDefault:"15s"`
}

func NewCrawlerConfig(ctx context.Context) *CrawlerConfig {
	c := &CrawlerConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Crawler config")
	}
	return c
}

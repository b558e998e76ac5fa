package config

import (
	"context"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/crewdesk/crewdesk/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"CREWDESK_RUNTIME_PATH" envDefault:".crewdesk"`

	// Outbound delivery webhook for email/WhatsApp gateways. Empty disables
	// the channel-send queue.
	DeliveryWebhookURL string `env:"DELIVERY_WEBHOOK_URL"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "crewdesk.db")
}

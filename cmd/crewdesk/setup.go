package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/crewdesk/crewdesk/internal/config"
	"github.com/crewdesk/crewdesk/internal/crawler"
	"github.com/crewdesk/crewdesk/internal/escalation"
	"github.com/crewdesk/crewdesk/internal/ingest"
	"github.com/crewdesk/crewdesk/internal/jobs"
	"github.com/crewdesk/crewdesk/internal/orchestrator"
	"github.com/crewdesk/crewdesk/internal/providers/llm"
	"github.com/crewdesk/crewdesk/internal/retrieval"
	"github.com/crewdesk/crewdesk/internal/storage/sqlite"
	"github.com/crewdesk/crewdesk/internal/transport/outbound"
	"github.com/crewdesk/crewdesk/pkg/log"
	"github.com/crewdesk/crewdesk/pkg/srv"
	"github.com/joho/godotenv"
)

func NewServices(ctx context.Context) []srv.Service {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	// init env
	err := initEnv(ctx, config.GetRuntimePath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	// 1. Configuration
	appCfg := config.NewAppConfig(ctx)
	aiCfg := config.NewAIConfig(ctx)
	crawlerCfg := config.NewCrawlerConfig(ctx)
	jobsCfg := config.NewJobsConfig(ctx)
	escCfg := config.NewEscalationConfig(ctx)

	// 2. Storage
	db, err := sqlite.NewDB(ctx, appCfg.GetDatabasePath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	services = append(services, srv.NewCleanup(db.Close))

	conversations := sqlite.NewConversationRepo(db)
	messages := sqlite.NewMessageRepo(db)
	sources := sqlite.NewSourceRepo(db)
	chunks := sqlite.NewChunkRepo(db)

	// 3. AI Providers
	provider := llm.NewOpenAI(aiCfg)
	embedder := retrieval.NewClient(aiCfg)

	// 4. Knowledge Ingestion
	ingester := ingest.New(crawler.New(crawlerCfg), embedder)

	// 5. Orchestrator
	classifier := escalation.NewClassifier(escalation.Config{
		RecentFrustrationWindow: escCfg.RecentFrustrationWindow,
		RepeatOverlapRatio:      escCfg.RepeatOverlapRatio,
		RepeatThreshold:         escCfg.RepeatThreshold,
	})
	orch := orchestrator.New(provider, classifier, aiCfg)

	// 6. Job Queue
	store := jobs.NewStore(db)
	producers := jobs.NewProducers(store)

	responder := jobs.NewAIResponder(conversations, messages, chunks, embedder, orch, producers, aiCfg)
	ingestion := jobs.NewIngestionProcessor(sources, chunks, ingester)
	sender := jobs.NewChannelSendProcessor(messages, outbound.NewWebhookSender(appCfg.DeliveryWebhookURL))

	runner := jobs.NewRunner(store, jobsCfg.PollInterval)
	runner.Register(jobs.QueueAIResponse, responder.Process)
	runner.Register(jobs.QueueIngestion, ingestion.Process)
	runner.Register(jobs.QueueChannelSend, sender.Process)
	runner.SetConcurrency(jobs.QueueAIResponse, jobsCfg.AIResponseConcurrency)
	runner.SetConcurrency(jobs.QueueIngestion, jobsCfg.IngestionConcurrency)
	runner.SetConcurrency(jobs.QueueChannelSend, jobsCfg.ChannelConcurrency)
	runner.SetRateLimit(jobs.QueueAIResponse, jobsCfg.AIResponseRatePerSec)
	services = append(services, runner)

	// 7. Retention
	services = append(services, jobs.NewSweeper(store, jobsCfg))

	return services
}

// initQueue opens storage and the job store for the one-shot commands, which
// enqueue work and exit without starting the runner.
func initQueue(ctx context.Context) (*sql.DB, *jobs.Producers, error) {
	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		return nil, nil, err
	}

	appCfg := config.NewAppConfig(ctx)
	db, err := sqlite.NewDB(ctx, appCfg.GetDatabasePath())
	if err != nil {
		return nil, nil, err
	}

	return db, jobs.NewProducers(jobs.NewStore(db)), nil
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}

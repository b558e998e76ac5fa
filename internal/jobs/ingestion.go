package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crewdesk/crewdesk/internal/core"
	"github.com/crewdesk/crewdesk/internal/ingest"
	"github.com/crewdesk/crewdesk/pkg/log"
)

// IngestionProcessor handles knowledge-ingestion jobs: it drives the source
// through PROCESSING to ACTIVE or FAILED and swaps its chunk set atomically.
type IngestionProcessor struct {
	sources  core.SourceRepository
	chunks   core.ChunkRepository
	ingester *ingest.Ingester
}

func NewIngestionProcessor(sources core.SourceRepository, chunks core.ChunkRepository, ingester *ingest.Ingester) *IngestionProcessor {
	return &IngestionProcessor{
		sources:  sources,
		chunks:   chunks,
		ingester: ingester,
	}
}

func (p *IngestionProcessor) Process(ctx context.Context, job *Job, report ProgressFunc) error {
	var payload IngestionPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return core.Unrecoverable(fmt.Errorf("invalid ingestion payload: %w", err))
	}

	report(10)

	source, err := p.sources.Get(ctx, payload.SourceID)
	if err != nil {
		if err == core.ErrSourceNotFound {
			return core.Unrecoverable(err)
		}
		return err
	}

	if err := p.sources.SetStatus(ctx, source.ID, core.SourceStatusProcessing, ""); err != nil {
		return fmt.Errorf("failed to mark source processing: %w", err)
	}

	report(30)

	chunks, err := p.ingester.Ingest(ctx, source, payload.Content)
	if err != nil {
		p.markFailed(ctx, source.ID, err)
		return err
	}

	report(70)

	if err := p.chunks.ReplaceForSource(ctx, source.ID, chunks); err != nil {
		p.markFailed(ctx, source.ID, err)
		return fmt.Errorf("failed to store chunks: %w", err)
	}

	report(90)

	if err := p.sources.MarkSynced(ctx, source.ID); err != nil {
		return fmt.Errorf("failed to mark source synced: %w", err)
	}

	report(100)

	log.FromCtx(ctx).Info().
		Str("source_id", source.ID).
		Int("chunks", len(chunks)).
		Msg("knowledge source synced")
	return nil
}

func (p *IngestionProcessor) markFailed(ctx context.Context, sourceID string, cause error) {
	if err := p.sources.SetStatus(ctx, sourceID, core.SourceStatusFailed, cause.Error()); err != nil {
		log.FromCtx(ctx).Error().Err(err).
			Str("source_id", sourceID).
			Msg("failed to mark source failed")
	}
}

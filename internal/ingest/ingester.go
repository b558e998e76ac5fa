package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/crewdesk/crewdesk/internal/core"
	"github.com/crewdesk/crewdesk/internal/crawler"
	"github.com/crewdesk/crewdesk/pkg/log"
	"github.com/google/uuid"
)

// SiteCrawler walks a site and returns its readable pages.
type SiteCrawler interface {
	Crawl(ctx context.Context, startURL string) ([]crawler.Page, error)
}

// QAPair is one question/answer entry of a QA source payload.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Ingester turns source material into embedded knowledge chunks. Malformed
// payloads fail unrecoverably; embedding failures propagate as-is so the job
// layer can retry the whole run.
type Ingester struct {
	crawler  SiteCrawler
	embedder core.Embedder
}

func New(c SiteCrawler, e core.Embedder) *Ingester {
	return &Ingester{crawler: c, embedder: e}
}

// candidate is a chunk awaiting its embedding.
type candidate struct {
	content    string
	sourceName string
	index      int
}

// Ingest dispatches on the source type and returns the full chunk set for the
// source. Either every chunk is embedded or the run fails; no partial result.
func (in *Ingester) Ingest(ctx context.Context, source *core.KnowledgeSource, content string) ([]core.KnowledgeChunk, error) {
	var (
		candidates []candidate
		err        error
	)

	switch source.Type {
	case core.SourceTypeURL:
		candidates, err = in.fromURL(ctx, source)
	case core.SourceTypeQA:
		candidates, err = fromQA(source, content)
	case core.SourceTypeCSV:
		candidates, err = fromCSV(source, content)
	case core.SourceTypeManual:
		candidates, err = fromText(source, content)
	default:
		return nil, core.Unrecoverable(fmt.Errorf("unknown source type: %s", source.Type))
	}
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.content
	}
	vectors, err := in.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	chunks := make([]core.KnowledgeChunk, len(candidates))
	for i, c := range candidates {
		chunks[i] = core.KnowledgeChunk{
			ID:        uuid.NewString(),
			Content:   c.content,
			Embedding: vectors[i],
			TokenSize: tokenCount(c.content),
			Metadata: core.ChunkMetadata{
				SourceID:   source.ID,
				SourceName: c.sourceName,
				SourceType: source.Type,
				ChunkIndex: c.index,
			},
		}
	}

	log.FromCtx(ctx).Info().
		Str("source_id", source.ID).
		Str("source_type", string(source.Type)).
		Int("chunks", len(chunks)).
		Msg("source ingested")
	return chunks, nil
}

func (in *Ingester) fromURL(ctx context.Context, source *core.KnowledgeSource) ([]candidate, error) {
	if source.URL == "" {
		return nil, core.Unrecoverable(fmt.Errorf("source %s has no url", source.ID))
	}

	pages, err := in.crawler.Crawl(ctx, source.URL)
	if err != nil {
		return nil, fmt.Errorf("crawl %s: %w", source.URL, err)
	}

	var candidates []candidate
	for _, page := range pages {
		index := 0
		for _, text := range chunkBySentence(page.Content) {
			if len(text) < minProseChunk {
				continue
			}
			candidates = append(candidates, candidate{
				content:    text,
				sourceName: source.Name + " - " + page.Title,
				index:      index,
			})
			index++
		}
	}
	return candidates, nil
}

func fromQA(source *core.KnowledgeSource, content string) ([]candidate, error) {
	var pairs []QAPair
	if err := json.Unmarshal([]byte(content), &pairs); err != nil {
		return nil, core.Unrecoverable(fmt.Errorf("invalid q&a payload: %w", err))
	}

	candidates := make([]candidate, 0, len(pairs))
	for i, p := range pairs {
		candidates = append(candidates, candidate{
			content:    "Question: " + p.Question + "\n\nAnswer: " + p.Answer,
			sourceName: source.Name,
			index:      i,
		})
	}
	return candidates, nil
}

func fromCSV(source *core.KnowledgeSource, content string) ([]candidate, error) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, core.Unrecoverable(fmt.Errorf("invalid csv payload: %w", err))
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	column := make(map[string]int, len(header))
	for i, name := range header {
		column[strings.TrimSpace(name)] = i
	}

	cfg := source.Config
	var candidates []candidate
	for i, record := range records[1:] {
		text := rowContent(header, column, record, cfg)
		if len(text) < minTableChunk {
			continue
		}
		candidates = append(candidates, candidate{
			content:    text,
			sourceName: source.Name,
			index:      i,
		})
	}
	return candidates, nil
}

// rowContent formats one CSV row: a Q&A pair when both mapped columns are
// present, a single content column when mapped, otherwise every column as
// "name: value" lines.
func rowContent(header []string, column map[string]int, record []string, cfg core.SourceConfig) string {
	cell := func(name string) string {
		idx, ok := column[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	if cfg.QuestionColumn != "" && cfg.AnswerColumn != "" {
		q, a := cell(cfg.QuestionColumn), cell(cfg.AnswerColumn)
		if q != "" && a != "" {
			return "Question: " + q + "\n\nAnswer: " + a
		}
	}
	if cfg.ContentColumn != "" {
		if c := cell(cfg.ContentColumn); c != "" {
			return c
		}
	}

	lines := make([]string, 0, len(header))
	for i, name := range header {
		if i < len(record) {
			lines = append(lines, strings.TrimSpace(name)+": "+strings.TrimSpace(record[i]))
		}
	}
	return strings.Join(lines, "\n")
}

func fromText(source *core.KnowledgeSource, content string) ([]candidate, error) {
	if strings.TrimSpace(content) == "" {
		return nil, core.Unrecoverable(fmt.Errorf("source %s has no text content", source.ID))
	}

	var candidates []candidate
	index := 0
	for _, text := range chunkByParagraph(content) {
		if len(text) < minProseChunk {
			continue
		}
		candidates = append(candidates, candidate{
			content:    text,
			sourceName: source.Name,
			index:      index,
		})
		index++
	}
	return candidates, nil
}

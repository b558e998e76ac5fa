package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/crewdesk/crewdesk/internal/core"
	"github.com/crewdesk/crewdesk/internal/crawler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCrawler struct {
	pages []crawler.Page
	err   error
}

func (f *fakeCrawler) Crawl(ctx context.Context, startURL string) ([]crawler.Page, error) {
	return f.pages, f.err
}

type fakeEmbedder struct {
	calls [][]string
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, texts)
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i])), 1, 2}
	}
	return vectors, nil
}

func source(typ core.SourceType, cfg core.SourceConfig) *core.KnowledgeSource {
	return &core.KnowledgeSource{
		ID:          "src-1",
		WorkspaceID: "ws-1",
		Name:        "Help Center",
		Type:        typ,
		URL:         "https://docs.example.com",
		Config:      cfg,
	}
}

func TestIngest_QA(t *testing.T) {
	ing := New(&fakeCrawler{}, &fakeEmbedder{})

	payload := `[
		{"question": "How do I reset my password?", "answer": "Use the forgot password link on the sign-in page."},
		{"question": "Can I change my plan?", "answer": "Yes, from the billing page at any time."}
	]`
	chunks, err := ing.Ingest(context.Background(), source(core.SourceTypeQA, core.SourceConfig{}), payload)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "Question: How do I reset my password?\n\nAnswer: Use the forgot password link on the sign-in page.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Metadata.ChunkIndex)
	assert.Equal(t, 1, chunks[1].Metadata.ChunkIndex)
	for _, c := range chunks {
		assert.NotEmpty(t, c.ID)
		assert.NotEmpty(t, c.Embedding)
		assert.Greater(t, c.TokenSize, 0)
		assert.Equal(t, "src-1", c.Metadata.SourceID)
		assert.Equal(t, "Help Center", c.Metadata.SourceName)
		assert.Equal(t, core.SourceTypeQA, c.Metadata.SourceType)
	}
}

func TestIngest_QA_MalformedPayload(t *testing.T) {
	ing := New(&fakeCrawler{}, &fakeEmbedder{})

	_, err := ing.Ingest(context.Background(), source(core.SourceTypeQA, core.SourceConfig{}), "{not json")
	require.Error(t, err)
	assert.True(t, core.IsUnrecoverable(err))
}

func TestIngest_CSV_MappedColumns(t *testing.T) {
	ing := New(&fakeCrawler{}, &fakeEmbedder{})

	csvContent := strings.Join([]string{
		"q,a,notes",
		"How do refunds work?,Refunds are issued within 5 business days.,internal",
		"Where is my invoice?,Invoices are emailed on the first of the month.,internal",
		"Do you ship abroad?,We ship to most countries worldwide.,internal",
	}, "\n")

	cfg := core.SourceConfig{QuestionColumn: "q", AnswerColumn: "a"}
	chunks, err := ing.Ingest(context.Background(), source(core.SourceTypeCSV, cfg), csvContent)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "Question: How do refunds work?\n\nAnswer: Refunds are issued within 5 business days.", chunks[0].Content)
	assert.NotContains(t, chunks[0].Content, "internal")
	for i, c := range chunks {
		assert.Equal(t, i, c.Metadata.ChunkIndex)
		assert.Equal(t, core.SourceTypeCSV, c.Metadata.SourceType)
	}
}

func TestIngest_CSV_FallbackCombinesColumns(t *testing.T) {
	ing := New(&fakeCrawler{}, &fakeEmbedder{})

	csvContent := "name,description\nStarter,Good for small teams with basic needs\n"
	chunks, err := ing.Ingest(context.Background(), source(core.SourceTypeCSV, core.SourceConfig{}), csvContent)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "name: Starter\ndescription: Good for small teams with basic needs", chunks[0].Content)
}

func TestIngest_CSV_SkipsShortRows(t *testing.T) {
	ing := New(&fakeCrawler{}, &fakeEmbedder{})

	csvContent := "content\nshort\nThis row is comfortably long enough to keep around.\n"
	cfg := core.SourceConfig{ContentColumn: "content"}
	chunks, err := ing.Ingest(context.Background(), source(core.SourceTypeCSV, cfg), csvContent)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "comfortably long")
}

func TestIngest_CSV_Malformed(t *testing.T) {
	ing := New(&fakeCrawler{}, &fakeEmbedder{})

	_, err := ing.Ingest(context.Background(), source(core.SourceTypeCSV, core.SourceConfig{}), "a,b\n\"unterminated\n")
	require.Error(t, err)
	assert.True(t, core.IsUnrecoverable(err))
}

func TestIngest_URL(t *testing.T) {
	longText := strings.Repeat("Customers can upgrade from the billing screen at any time. ", 30)
	fc := &fakeCrawler{pages: []crawler.Page{
		{URL: "https://docs.example.com/", Title: "Billing", Content: longText},
		{URL: "https://docs.example.com/tiny", Title: "Tiny", Content: "too short"},
	}}
	emb := &fakeEmbedder{}
	ing := New(fc, emb)

	chunks, err := ing.Ingest(context.Background(), source(core.SourceTypeURL, core.SourceConfig{}), "")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.GreaterOrEqual(t, len(c.Content), minProseChunk)
		assert.Equal(t, "Help Center - Billing", c.Metadata.SourceName)
	}
	// All chunks embedded in one batch call.
	assert.Len(t, emb.calls, 1)
}

func TestIngest_URL_MissingURL(t *testing.T) {
	ing := New(&fakeCrawler{}, &fakeEmbedder{})

	src := source(core.SourceTypeURL, core.SourceConfig{})
	src.URL = ""
	_, err := ing.Ingest(context.Background(), src, "")
	require.Error(t, err)
	assert.True(t, core.IsUnrecoverable(err))
}

func TestIngest_URL_CrawlFailureIsRetryable(t *testing.T) {
	ing := New(&fakeCrawler{err: errors.New("network down")}, &fakeEmbedder{})

	_, err := ing.Ingest(context.Background(), source(core.SourceTypeURL, core.SourceConfig{}), "")
	require.Error(t, err)
	assert.False(t, core.IsUnrecoverable(err))
}

func TestIngest_Manual(t *testing.T) {
	ing := New(&fakeCrawler{}, &fakeEmbedder{})

	text := "Our support team answers within one business day on weekdays.\n\nshort\n\n" +
		"Enterprise customers get a dedicated account manager and priority queue."
	chunks, err := ing.Ingest(context.Background(), source(core.SourceTypeManual, core.SourceConfig{}), text)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, core.SourceTypeManual, chunks[0].Metadata.SourceType)
}

func TestIngest_Manual_EmptyContent(t *testing.T) {
	ing := New(&fakeCrawler{}, &fakeEmbedder{})

	_, err := ing.Ingest(context.Background(), source(core.SourceTypeManual, core.SourceConfig{}), "   ")
	require.Error(t, err)
	assert.True(t, core.IsUnrecoverable(err))
}

func TestIngest_EmbedFailureAbortsRun(t *testing.T) {
	ing := New(&fakeCrawler{}, &fakeEmbedder{err: errors.New("upstream down")})

	payload := `[{"question": "Q", "answer": "A"}]`
	chunks, err := ing.Ingest(context.Background(), source(core.SourceTypeQA, core.SourceConfig{}), payload)
	require.Error(t, err)
	assert.Nil(t, chunks)
	assert.False(t, core.IsUnrecoverable(err))
}

func TestIngest_UnknownType(t *testing.T) {
	ing := New(&fakeCrawler{}, &fakeEmbedder{})

	_, err := ing.Ingest(context.Background(), source(core.SourceType("AUDIO"), core.SourceConfig{}), "")
	require.Error(t, err)
	assert.True(t, core.IsUnrecoverable(err))
}

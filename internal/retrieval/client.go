package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/crewdesk/crewdesk/internal/config"
	"github.com/crewdesk/crewdesk/internal/core"
	"golang.org/x/sync/errgroup"
)

// ErrEmbeddingUpstream marks a failure of the embedding service itself.
// There is no local fallback; callers propagate it for the job layer to
// retry.
var ErrEmbeddingUpstream = errors.New("embedding service failure")

// Inputs above the model token budget are truncated before the upstream
// call, approximating 4 characters per token.
const charsPerToken = 4

// Upstream accepts large batches; we split above this and fan out.
const maxBatchSize = 100

// Client wraps an OpenAI-compatible embeddings endpoint.
type Client struct {
	client        *http.Client
	baseURL       string
	apiKey        string
	model         string
	maxInputChars int
}

func NewClient(cfg *config.AIConfig) *Client {
	return &Client{
		client:        &http.Client{Timeout: 60 * time.Second},
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		model:         cfg.EmbeddingModel,
		maxInputChars: cfg.MaxEmbeddingTokens * charsPerToken,
	}
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.request(ctx, []string{c.truncate(text)})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns embedding vectors for multiple texts, batching upstream
// calls to reduce round trips. Returns nil for empty input.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	truncated := make([]string, len(texts))
	for i, t := range texts {
		truncated[i] = c.truncate(t)
	}

	if len(truncated) <= maxBatchSize {
		return c.request(ctx, truncated)
	}

	results := make([][]float32, len(truncated))
	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid overwhelming the upstream.

	for start := 0; start < len(truncated); start += maxBatchSize {
		start := start
		end := start + maxBatchSize
		if end > len(truncated) {
			end = len(truncated)
		}
		g.Go(func() error {
			vectors, err := c.request(gCtx, truncated[start:end])
			if err != nil {
				return err
			}
			mu.Lock()
			copy(results[start:end], vectors)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) request(ctx context.Context, input []string) ([][]float32, error) {
	payload := map[string]any{
		"model": c.model,
		"input": input,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", core.CrewDeskUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http %d: %s", ErrEmbeddingUpstream, resp.StatusCode, string(body))
	}

	var result struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(result.Data) != len(input) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrEmbeddingUpstream, len(result.Data), len(input))
	}

	vectors := make([][]float32, len(input))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrEmbeddingUpstream, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (c *Client) truncate(text string) string {
	if c.maxInputChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= c.maxInputChars {
		return text
	}
	return string(runes[:c.maxInputChars])
}

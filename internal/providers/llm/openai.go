package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/crewdesk/crewdesk/internal/config"
	"github.com/crewdesk/crewdesk/internal/core"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint. It
// implements core.CompletionProvider.
type OpenAI struct {
	baseProvider
}

func NewOpenAI(cfg *config.AIConfig) *OpenAI {
	return &OpenAI{
		baseProvider: newBaseProvider(cfg.BaseURL, cfg.APIKey, cfg.Model),
	}
}

func (o *OpenAI) Complete(ctx context.Context, messages []core.ChatMessage, maxTokens int, temperature float64) (string, error) {
	payload := map[string]any{
		"model":       o.model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}

	resp, err := o.doRequest(ctx, http.MethodPost, "/v1/chat/completions", payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	return parseCompletion(resp)
}

func parseCompletion(resp *http.Response) (string, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("empty choices: %s", string(data))
	}
	return result.Choices[0].Message.Content, nil
}

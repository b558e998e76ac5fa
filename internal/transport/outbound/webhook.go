package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/crewdesk/crewdesk/internal/core"
	"github.com/crewdesk/crewdesk/pkg/retry"
)

// ErrNoWebhook is returned when delivery is attempted without a configured
// webhook URL.
var ErrNoWebhook = errors.New("no delivery webhook configured")

// WebhookSender posts outbound messages to the channel gateway webhook. It
// implements core.ChannelSender. Transient gateway errors are retried
// in-process; the job layer handles anything beyond that.
type WebhookSender struct {
	client  *http.Client
	url     string
	retrier *retry.Retrier
}

func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		client:  &http.Client{Timeout: 30 * time.Second},
		url:     url,
		retrier: retry.NewDefaultRetrier(),
	}
}

func (s *WebhookSender) Send(ctx context.Context, recipient, body string) (string, error) {
	if s.url == "" {
		return "", ErrNoWebhook
	}

	payload, err := json.Marshal(map[string]string{
		"recipient": recipient,
		"body":      body,
	})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	var deliveryID string
	err = s.retrier.Do(ctx, func(ctx context.Context) error {
		id, err := s.post(ctx, payload)
		if err != nil {
			return err
		}
		deliveryID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	return deliveryID, nil
}

func (s *WebhookSender) post(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", core.CrewDeskUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deliver: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("gateway http %d: %s", resp.StatusCode, string(data))
	}

	var result struct {
		DeliveryID string `json:"delivery_id"`
	}
	if err := json.Unmarshal(data, &result); err != nil || result.DeliveryID == "" {
		// Gateways without receipts still count as delivered.
		return "", nil
	}
	return result.DeliveryID, nil
}

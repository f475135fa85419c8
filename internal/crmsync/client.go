package crmsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookClient delivers payloads to the CRM's inbound webhook.
type WebhookClient struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewWebhookClient creates a client for the given webhook URL. The token is
// sent as a bearer credential when non-empty.
func NewWebhookClient(url, token string) *WebhookClient {
	return &WebhookClient{
		url:   url,
		token: token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Send posts one payload. Non-2xx responses are errors; the caller decides
// whether to retry.
func (c *WebhookClient) Send(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal crm payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build crm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send crm payload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("crm webhook returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

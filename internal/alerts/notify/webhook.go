package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Channel delivers a rendered alert somewhere.
type Channel interface {
	Send(ctx context.Context, content string) error
}

// WebhookChannel posts alert text to a webhook URL.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(url string) (*WebhookChannel, error) {
	if url == "" {
		return nil, errors.New("notify: empty webhook url")
	}
	return &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}, nil
}

type webhookPayload struct {
	MsgType string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
}

// Send posts the content as a text payload.
func (c *WebhookChannel) Send(ctx context.Context, content string) error {
	if c == nil {
		return errors.New("notify: nil channel")
	}
	payload := webhookPayload{MsgType: "text"}
	payload.Text.Content = content

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook http %d", resp.StatusCode)
	}
	return nil
}

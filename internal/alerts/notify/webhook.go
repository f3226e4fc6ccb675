package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	alerts "plantwatch/internal/alerts/domain"
)

// Channel delivers rendered content.
type Channel interface {
	Send(ctx context.Context, content string) error
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// WebhookChannel sends notifications to a webhook endpoint.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// WebhookOption configures the webhook channel.
type WebhookOption func(*WebhookChannel)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(ch *WebhookChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(url string, opts ...WebhookOption) (*WebhookChannel, error) {
	if url == "" {
		return nil, errors.New("webhook channel: empty url")
	}
	channel := &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel, nil
}

// Send posts the content as a text message.
func (w *WebhookChannel) Send(ctx context.Context, content string) error {
	body, err := json.Marshal(webhookPayload{MsgType: "text", Text: webhookText{Content: content}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook channel: non-2xx response %d", resp.StatusCode)
	}
	return nil
}

// ChannelNotifier renders records and sends them through a channel.
type ChannelNotifier struct {
	channel  Channel
	template *Template
	logger   *log.Logger
	timeout  time.Duration
}

// NewChannelNotifier constructs a notifier; a nil template uses DefaultTemplate.
func NewChannelNotifier(channel Channel, tpl *Template, logger *log.Logger) (*ChannelNotifier, error) {
	if channel == nil {
		return nil, errors.New("channel notifier: nil channel")
	}
	if tpl == nil {
		var err error
		if tpl, err = NewTemplate(""); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ChannelNotifier{channel: channel, template: tpl, logger: logger, timeout: 10 * time.Second}, nil
}

// Notify renders and sends the record; failures are logged.
func (n *ChannelNotifier) Notify(ctx context.Context, record alerts.Record) {
	content, err := n.template.Render(record)
	if err != nil {
		n.logger.Printf("alert notify render error: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.channel.Send(ctx, content); err != nil {
		n.logger.Printf("alert notify send error: id=%s err=%v", record.ID, err)
	}
}

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookSink 以 JSON POST 发送告警
type WebhookSink struct {
	httpClient *resty.Client
	url        string
}

// NewWebhookSink 创建 Webhook 通知渠道
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json")

	return &WebhookSink{
		httpClient: client,
		url:        url,
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

// Notify 发送告警
func (s *WebhookSink) Notify(ctx context.Context, alert Alert) error {
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(alert).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

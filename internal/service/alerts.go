package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/haywardj/lotline/internal/logger"
)

// Alerter delivers operator alerts. Delivery is always best-effort: a lost
// alert is strictly less bad than an aborted financial operation, so
// implementations log failures and return nothing.
type Alerter interface {
	Critical(ctx context.Context, subject, detail string)
	Warn(ctx context.Context, subject, detail string)
}

// WebhookAlerter posts Slack-style block payloads to a webhook URL.
type WebhookAlerter struct {
	client *resty.Client
	url    string
}

// NewWebhookAlerter creates a webhook-backed alerter.
// Parameters:
//   - url: webhook endpoint.
// Returns:
//   - *WebhookAlerter: initialized alerter.
func NewWebhookAlerter(url string) *WebhookAlerter {
	client := resty.New()
	client.SetTimeout(10 * time.Second)
	return &WebhookAlerter{client: client, url: url}
}

func (a *WebhookAlerter) post(ctx context.Context, level, subject, detail string) {
	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]interface{}{"type": "plain_text", "text": fmt.Sprintf("[%s] %s", level, subject)},
			},
			{
				"type": "section",
				"text": map[string]interface{}{"type": "mrkdwn", "text": detail + "\n_" + time.Now().UTC().Format(time.RFC822) + "_"},
			},
		},
	}
	resp, err := a.client.R().SetContext(ctx).SetBody(payload).Post(a.url)
	if err != nil {
		logger.CtxWarn(ctx, "alert delivery failed: %v", err)
		return
	}
	if resp.IsError() {
		logger.CtxWarn(ctx, "alert delivery failed: %s", resp.Status())
	}
}

// Critical delivers a critical alert.
func (a *WebhookAlerter) Critical(ctx context.Context, subject, detail string) {
	a.post(ctx, "CRITICAL", subject, detail)
}

// Warn delivers a warning alert.
func (a *WebhookAlerter) Warn(ctx context.Context, subject, detail string) {
	a.post(ctx, "WARN", subject, detail)
}

// NopAlerter drops all alerts. Used when alerting is disabled in config.
type NopAlerter struct{}

func (NopAlerter) Critical(ctx context.Context, subject, detail string) {}
func (NopAlerter) Warn(ctx context.Context, subject, detail string)     {}

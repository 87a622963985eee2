package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/electro-tech/pricewatch/internal/resilience"
)

var webhookClient = &http.Client{Timeout: 10 * time.Second}

// WebhookChannel posts messages as JSON to a messaging gateway
// webhook. Gateways fronting personal messaging numbers throttle hard,
// so every send waits on a rate limiter first.
type WebhookChannel struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewWebhookChannel creates a webhook channel sending at most
// perMinute messages per minute.
func NewWebhookChannel(url string, perMinute int) *WebhookChannel {
	if perMinute <= 0 {
		perMinute = 6
	}
	return &WebhookChannel{
		url:     url,
		client:  webhookClient,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

// Send posts the message. Gateway-side failures that are worth
// retrying (5xx, 429) are marked transient.
func (c *WebhookChannel) Send(ctx context.Context, msg Message) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "delivery: rate limit wait")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return eris.Wrap(err, "delivery: marshal message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "delivery: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "delivery: webhook request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := eris.Errorf("delivery: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return statusErr
	}

	return nil
}
